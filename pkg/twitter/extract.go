package twitter

import "regexp"

// Matches https://x.com/user/status/1234567890, the twitter.com equivalent,
// and either with trailing query strings, fragments or path segments.
var tweetURLRegex = regexp.MustCompile(`(?:twitter\.com|x\.com)/\w+/status/(\d+)`)

// ExtractTweetID extracts the tweet ID from various URL formats.
// It returns "" when the input is not a tweet link.
func ExtractTweetID(url string) string {
	matches := tweetURLRegex.FindStringSubmatch(url)
	if len(matches) > 1 {
		return matches[1]
	}
	return ""
}
