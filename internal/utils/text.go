package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var customEmojiRegex = regexp.MustCompile(`<a?:\w+:\d+>`)

const zeroWidthJoiner = 0x200D

// CountEmojis counts custom guild emojis plus unicode emojis in content.
// A ZWJ-joined sequence (family, profession) counts as one emoji, and skin
// tone modifiers never count on their own.
func CountEmojis(content string) int {
	custom := customEmojiRegex.FindAllStringIndex(content, -1)
	count := len(custom)

	stripped := customEmojiRegex.ReplaceAllString(content, "")
	prev := rune(0)
	for _, r := range stripped {
		if isEmojiRune(r) && prev != zeroWidthJoiner {
			count++
		}
		prev = r
	}
	return count
}

func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF: // skin tone modifiers
		return false
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, transport, supplemental
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	default:
		return false
	}
}

func CountLines(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}

func CountCharacters(content string) int {
	return utf8.RuneCountInString(content)
}
