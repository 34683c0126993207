package twitter

import (
	"net/http"
	"regexp"
)

// QueryContractVersion identifies the flag tables below. Bump it whenever the
// tables change so the golden fixture diff is reviewed together with it.
const QueryContractVersion = "TweetResultByRestId/OoJd6A50cv8GsifjoOHGfg/2024-11"

const tweetResultOperation = "TweetResultByRestId"

// Endpoints are the three upstream URLs the client talks to.
type Endpoints struct {
	ScriptURL   string // versioned web client bundle carrying the bearer token
	ActivateURL string // guest session activation
	GraphQLURL  string // base of the GraphQL operation, without the operation name
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		ScriptURL:   "https://abs.twimg.com/responsive-web/client-web/main.165ee22a.js",
		ActivateURL: "https://api.twitter.com/1.1/guest/activate.json",
		GraphQLURL:  "https://api.x.com/graphql/OoJd6A50cv8GsifjoOHGfg",
	}
}

// DefaultUserAgent is the browser the upstream expects to talk to.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:84.0) Gecko/20100101 Firefox/84.0"

// DefaultAcceptLanguage matches the impersonated browser profile.
const DefaultAcceptLanguage = "de,en-US;q=0.7,en;q=0.3"

// browserHeaders returns the header set sent on every upstream call.
// Accept-Encoding is left to the transport so responses are decoded for us.
func browserHeaders(userAgent, acceptLanguage string) http.Header {
	return http.Header{
		"User-Agent":      []string{userAgent},
		"Accept":          []string{"*/*"},
		"Accept-Language": []string{acceptLanguage},
		"Te":              []string{"trailers"},
	}
}

// bearerPattern is one way the token may be embedded in the script bundle.
type bearerPattern struct {
	name  string
	re    *regexp.Regexp
	group int // capture group holding the token, 0 for the whole match
}

// bearerPatterns are tried in order. The bundle format is unversioned and
// has used both forms.
var bearerPatterns = []bearerPattern{
	{name: "prefix", re: regexp.MustCompile(`AAAAAAAAA[^"]+`), group: 0},
	{name: "quoted", re: regexp.MustCompile(`"Bearer ([^"]+)"`), group: 1},
}

// flag is one named boolean of a GraphQL parameter object. Order matters:
// the objects are encoded in table order, not sorted.
type flag struct {
	Name  string
	Value bool
}

// tweetResultVariables follow the tweetId key in the variables object.
var tweetResultVariables = []flag{
	{"withCommunity", false},
	{"includePromotedContent", false},
	{"withVoice", false},
}

var tweetResultFeatures = []flag{
	{"creator_subscriptions_tweet_preview_api_enabled", true},
	{"communities_web_enable_tweet_community_results_fetch", true},
	{"c9s_tweet_anatomy_moderator_badge_enabled", true},
	{"articles_preview_enabled", true},
	{"responsive_web_edit_tweet_api_enabled", true},
	{"graphql_is_translatable_rweb_tweet_is_translatable_enabled", true},
	{"view_counts_everywhere_api_enabled", true},
	{"longform_notetweets_consumption_enabled", true},
	{"responsive_web_twitter_article_tweet_consumption_enabled", true},
	{"tweet_awards_web_tipping_enabled", false},
	{"creator_subscriptions_quote_tweet_preview_enabled", false},
	{"freedom_of_speech_not_reach_fetch_enabled", true},
	{"standardized_nudges_misinfo", true},
	{"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled", true},
	{"rweb_video_timestamps_enabled", true},
	{"longform_notetweets_rich_text_read_enabled", true},
	{"longform_notetweets_inline_media_enabled", true},
	{"rweb_tipjar_consumption_enabled", true},
	{"responsive_web_graphql_exclude_directive_enabled", true},
	{"verified_phone_label_enabled", false},
	{"responsive_web_graphql_skip_user_profile_image_extensions_enabled", false},
	{"responsive_web_graphql_timeline_navigation_enabled", true},
	{"responsive_web_enhance_cards_enabled", false},
}

var tweetResultFieldToggles = []flag{
	{"withArticleRichContentState", true},
	{"withArticlePlainText", false},
	{"withGrokAnalyze", false},
	{"withDisallowedReplyControls", false},
}
