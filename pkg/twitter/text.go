package twitter

import (
	"regexp"
	"unicode/utf8"
)

// The platform appends a shortened link to the media when a tweet has
// attachments. Only a trailing one is removed.
var trailingShortLinkRegex = regexp.MustCompile(`(?:^|\s+)https?://t\.co/\w+\s*$`)

// CleanTweetText strips the auto-appended t.co link from the end of text.
func CleanTweetText(text string) string {
	return trailingShortLinkRegex.ReplaceAllString(text, "")
}

// Truncate shortens s to at most max bytes for logging, backing off to a
// rune boundary, and marks the cut with "...".
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max < 0 {
		max = 0
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
