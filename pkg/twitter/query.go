package twitter

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// BuildTweetResultURL returns the TweetResultByRestId URL for a tweet ID.
// Parameters are emitted as variables, features, fieldToggles in that order.
func BuildTweetResultURL(graphQLURL, tweetID string) string {
	idJSON, _ := json.Marshal(tweetID)

	var vars strings.Builder
	vars.WriteString(`{"tweetId":`)
	vars.Write(idJSON)
	for _, f := range tweetResultVariables {
		vars.WriteString(",")
		writeFlag(&vars, f)
	}
	vars.WriteString("}")

	return strings.TrimRight(graphQLURL, "/") + "/" + tweetResultOperation +
		"?variables=" + url.QueryEscape(vars.String()) +
		"&features=" + url.QueryEscape(encodeFlags(tweetResultFeatures)) +
		"&fieldToggles=" + url.QueryEscape(encodeFlags(tweetResultFieldToggles))
}

// encodeFlags renders flags as a compact JSON object in table order.
func encodeFlags(flags []flag) string {
	var b strings.Builder
	b.WriteString("{")
	for i, f := range flags {
		if i > 0 {
			b.WriteString(",")
		}
		writeFlag(&b, f)
	}
	b.WriteString("}")
	return b.String()
}

func writeFlag(b *strings.Builder, f flag) {
	b.WriteString(strconv.Quote(f.Name))
	b.WriteString(":")
	b.WriteString(strconv.FormatBool(f.Value))
}
