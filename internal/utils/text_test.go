package utils

import "testing"

func TestCountEmojis(t *testing.T) {
	cases := []struct {
		content string
		want    int
	}{
		{"no emojis here", 0},
		{"<:pepe:123456789> plus \U0001F600", 2},
		{"\U0001F600\U0001F601\U0001F602", 3},
		// ZWJ family sequence is a single emoji.
		{"\U0001F468‍\U0001F469‍\U0001F467", 1},
		// Skin tone modifier does not count on its own.
		{"\U0001F44D\U0001F3FD", 1},
		{"\U0001F469\U0001F3FB‍\U0001F4BB", 1},
	}
	for _, tc := range cases {
		if got := CountEmojis(tc.content); got != tc.want {
			t.Fatalf("CountEmojis(%q) = %d, want %d", tc.content, got, tc.want)
		}
	}
}

func TestCountLines(t *testing.T) {
	if got := CountLines(""); got != 0 {
		t.Fatalf("empty content should have 0 lines, got %d", got)
	}
	if got := CountLines("one\ntwo\nthree"); got != 3 {
		t.Fatalf("expected 3 lines, got %d", got)
	}
}
