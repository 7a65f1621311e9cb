package utils

import "regexp"

var inviteRegex = regexp.MustCompile(`(?i)(?:discord\.gg|discord(?:app)?\.com/invite)/([a-zA-Z0-9-]+)`)

// ExtractInviteCodes returns the unique invite codes found in content,
// in order of first appearance.
func ExtractInviteCodes(content string) []string {
	matches := inviteRegex.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	codes := make([]string, 0, len(matches))
	for _, match := range matches {
		code := match[1]
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}
