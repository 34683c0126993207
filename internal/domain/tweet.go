package domain

import (
	"time"
)

// TweetID is a unique identifier for a tweet. Snowflake IDs exceed the
// float64-safe integer range so they are always carried as strings.
type TweetID string

// String returns the string representation of the TweetID.
func (id TweetID) String() string {
	return string(id)
}

// MediaType is the presentation type of a media item or of a whole response.
type MediaType string

const (
	MediaTypePhoto MediaType = "photo"
	MediaTypeVideo MediaType = "video"
	// MediaTypeMixed is only valid on a MediaResponse.
	MediaTypeMixed MediaType = "mixed"
)

// VideoVariant is one encoding of a video.
type VideoVariant struct {
	Bitrate     *int   `json:"bitrate,omitempty"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// BitrateOrZero returns the bitrate, treating an absent one as 0.
func (v VideoVariant) BitrateOrZero() int {
	if v.Bitrate == nil {
		return 0
	}
	return *v.Bitrate
}

// MediaSize is a named rendition of an image.
type MediaSize struct {
	W      int    `json:"w"`
	H      int    `json:"h"`
	Resize string `json:"resize"`
}

// MediaItem is a photo or a video attached to a tweet.
type MediaItem struct {
	Type          MediaType            `json:"type"`
	Kind          string               `json:"kind,omitempty"` // upstream kind: photo, video, animated_gif
	URL           string               `json:"url"`
	MediaURLHTTPS string               `json:"media_url_https,omitempty"`
	Sizes         map[string]MediaSize `json:"sizes,omitempty"`

	// Video only. Variants are sorted by bitrate, highest first.
	Variants       []VideoVariant `json:"variants,omitempty"`
	DurationMillis *int           `json:"duration_millis,omitempty"`
	AspectRatio    []int          `json:"aspect_ratio,omitempty"`
}

// IsVideo returns true for video and animated GIF items.
func (m MediaItem) IsVideo() bool {
	return m.Type == MediaTypeVideo
}

// BestVariant returns the default (highest bitrate) variant of a video.
func (m MediaItem) BestVariant() (VideoVariant, bool) {
	if len(m.Variants) == 0 {
		return VideoVariant{}, false
	}
	return m.Variants[0], true
}

// User is the tweet author as captured at fetch time.
type User struct {
	Name            string  `json:"name"`
	ScreenName      string  `json:"screen_name"`
	ProfileImageURL string  `json:"profile_image_url"`
	IsBlueVerified  bool    `json:"is_blue_verified"`
	Description     *string `json:"description,omitempty"`
	FollowersCount  *int    `json:"followers_count,omitempty"`
	FollowingCount  *int    `json:"following_count,omitempty"`
}

// TweetInfo is the post summary shown next to the media.
type TweetInfo struct {
	ID            string     `json:"id"`
	Text          string     `json:"text"`
	CreatedAt     string     `json:"created_at"`
	PostedAt      *time.Time `json:"posted_at,omitempty"`
	User          User       `json:"user"`
	ReplyCount    int        `json:"reply_count"`
	RetweetCount  int        `json:"retweet_count"`
	QuoteCount    int        `json:"quote_count"`
	FavoriteCount int        `json:"favorite_count"`
	ViewCount     *int64     `json:"view_count,omitempty"`
}

// MediaResponse is the normalized result of resolving a tweet URL.
type MediaResponse struct {
	Type       MediaType   `json:"type"`
	MediaItems []MediaItem `json:"media_items"`
	Tweet      TweetInfo   `json:"tweet"`
}

// NewMediaResponse builds a response and derives its type tag.
// An empty item list is never a valid response.
func NewMediaResponse(items []MediaItem, tweet TweetInfo) (*MediaResponse, error) {
	if len(items) == 0 {
		return nil, NewError(KindNoSupportedMedia, "build media response", nil)
	}
	return &MediaResponse{
		Type:       DetermineMediaType(items),
		MediaItems: items,
		Tweet:      tweet,
	}, nil
}

// DetermineMediaType returns mixed when both photos and videos are present,
// otherwise the single type present.
func DetermineMediaType(items []MediaItem) MediaType {
	hasVideo, hasPhoto := false, false
	for _, item := range items {
		switch item.Type {
		case MediaTypeVideo:
			hasVideo = true
		case MediaTypePhoto:
			hasPhoto = true
		}
	}
	if hasVideo && hasPhoto {
		return MediaTypeMixed
	}
	if hasVideo {
		return MediaTypeVideo
	}
	return MediaTypePhoto
}

// HasVideo returns true if the response contains video.
func (r *MediaResponse) HasVideo() bool {
	for _, m := range r.MediaItems {
		if m.IsVideo() {
			return true
		}
	}
	return false
}

// HasPhotos returns true if the response contains photos.
func (r *MediaResponse) HasPhotos() bool {
	for _, m := range r.MediaItems {
		if m.Type == MediaTypePhoto {
			return true
		}
	}
	return false
}
