package utils

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var urlRegex = regexp.MustCompile(`https?://[^\s<>]+|\bwww\.[^\s<>]+`)

func ExtractURLs(content string) []string {
	return urlRegex.FindAllString(content, -1)
}

// NormalizeHost parses a raw URL and returns its lowercase, punycoded hostname.
func NormalizeHost(raw string) (string, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	host := strings.ToLower(parsed.Hostname())
	asciiHost, err := idna.ToASCII(host)
	if err == nil {
		host = asciiHost
	}
	return host, nil
}

// DomainMatch reports whether host is one of the listed domains.
// With subdomains enabled, a host also matches any listed parent domain.
func DomainMatch(host string, domains []string, subdomains bool) bool {
	host = strings.ToLower(host)
	for _, domain := range domains {
		domain = strings.ToLower(domain)
		if host == domain {
			return true
		}
		if subdomains && strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
