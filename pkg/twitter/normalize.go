package twitter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/iconidentify/xgrab/internal/domain"
)

// Reasons a media entity is left out of the response.
const (
	DropUnsupportedKind = "unsupported_kind"
	DropNoMP4Variants   = "no_mp4_variants"
)

// Media entity lists, in probe order. The schema differs between plain,
// quoted, long-form and note tweets.
const (
	pathLegacyExtendedEntities = "result.legacy.extended_entities.media"
	pathExtendedEntities       = "result.extended_entities.media"
	pathLegacyEntities         = "result.legacy.entities.media"
)

const mp4ContentType = "video/mp4"

// NormalizeReport describes what the normalizer saw. Repeated drops usually
// mean the upstream schema moved.
type NormalizeReport struct {
	MediaPath string          // path the media list was read from, "" if none
	Entities  int             // raw media entities found
	Dropped   []DroppedEntity // entities left out, in upstream order
}

// DroppedEntity is one media entity that produced no media item.
type DroppedEntity struct {
	Index  int
	Kind   string
	Reason string
}

// tweetResultPayload is the TweetResultByRestId response. Only the fields
// we read are declared.
type tweetResultPayload struct {
	Data struct {
		TweetResult struct {
			Result *tweetResult `json:"result"`
		} `json:"tweetResult"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type tweetResult struct {
	TypeName string `json:"__typename"`
	RestID   string `json:"rest_id"`
	Reason   string `json:"reason"`
	Core     *struct {
		UserResults struct {
			Result *userResult `json:"result"`
		} `json:"user_results"`
	} `json:"core"`
	Legacy           *tweetLegacy   `json:"legacy"`
	ExtendedEntities *mediaEntities `json:"extended_entities"`
	NoteTweet        *struct {
		NoteTweetResults struct {
			Result *struct {
				Text string `json:"text"`
			} `json:"result"`
		} `json:"note_tweet_results"`
	} `json:"note_tweet"`
	Views *struct {
		Count string `json:"count"`
	} `json:"views"`
	// Set on TweetWithVisibilityResults wrappers.
	Tweet *tweetResult `json:"tweet"`
}

type tweetLegacy struct {
	IDStr            string         `json:"id_str"`
	FullText         *string        `json:"full_text"`
	CreatedAt        string         `json:"created_at"`
	ReplyCount       int            `json:"reply_count"`
	RetweetCount     int            `json:"retweet_count"`
	QuoteCount       int            `json:"quote_count"`
	FavoriteCount    int            `json:"favorite_count"`
	Entities         *mediaEntities `json:"entities"`
	ExtendedEntities *mediaEntities `json:"extended_entities"`
}

type userResult struct {
	IsBlueVerified bool `json:"is_blue_verified"`
	Legacy         *struct {
		Name                 string  `json:"name"`
		ScreenName           string  `json:"screen_name"`
		ProfileImageURLHTTPS string  `json:"profile_image_url_https"`
		Description          *string `json:"description"`
		FollowersCount       *int    `json:"followers_count"`
		FriendsCount         *int    `json:"friends_count"`
	} `json:"legacy"`
	// Newer responses moved identity fields out of legacy.
	Core *struct {
		Name       string `json:"name"`
		ScreenName string `json:"screen_name"`
	} `json:"core"`
	Avatar *struct {
		ImageURL string `json:"image_url"`
	} `json:"avatar"`
}

type mediaEntities struct {
	Media []mediaEntity `json:"media"`
}

type mediaEntity struct {
	Type           string                      `json:"type"`
	URL            string                      `json:"url"`
	MediaURLHTTPS  string                      `json:"media_url_https"`
	Sizes          map[string]domain.MediaSize `json:"sizes"`
	VideoInfo      *videoInfo                  `json:"video_info"`
	Variants       []domain.VideoVariant       `json:"variants"`
	DurationMillis *int                        `json:"duration_millis"`
	AspectRatio    []int                       `json:"aspect_ratio"`
}

type videoInfo struct {
	Variants       []domain.VideoVariant `json:"variants"`
	DurationMillis *int                  `json:"duration_millis"`
	AspectRatio    []int                 `json:"aspect_ratio"`
}

// Normalize turns a raw TweetResultByRestId payload into a MediaResponse.
func Normalize(payload []byte) (*domain.MediaResponse, NormalizeReport, error) {
	const op = "normalize tweet result"
	var report NormalizeReport

	var p tweetResultPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, report, domain.NewError(domain.KindUpstreamFetchFailed, op,
			fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err))
	}

	result := p.Data.TweetResult.Result
	if result != nil && result.TypeName == "TweetWithVisibilityResults" && result.Tweet != nil {
		result = result.Tweet
	}
	if result == nil {
		e := domain.NewError(domain.KindPostNotFound, op, nil)
		if len(p.Errors) > 0 {
			return nil, report, e.WithDetail("data.tweetResult.result absent; upstream error: %s", p.Errors[0].Message)
		}
		return nil, report, e.WithDetail("data.tweetResult.result absent")
	}
	switch result.TypeName {
	case "TweetTombstone", "TweetUnavailable":
		return nil, report, domain.NewError(domain.KindPostNotFound, op, nil).
			WithDetail("__typename=%s reason=%q", result.TypeName, result.Reason)
	}

	entities, path := probeMedia(result)
	report.MediaPath = path
	report.Entities = len(entities)
	if len(entities) == 0 {
		return nil, report, domain.NewError(domain.KindNoMediaFound, op, nil).
			WithDetail("probed %s", strings.Join([]string{pathLegacyExtendedEntities, pathExtendedEntities, pathLegacyEntities}, ", "))
	}

	items := make([]domain.MediaItem, 0, len(entities))
	for i, entity := range entities {
		item, reason := normalizeEntity(entity)
		if reason != "" {
			report.Dropped = append(report.Dropped, DroppedEntity{Index: i, Kind: entity.Type, Reason: reason})
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, report, domain.NewError(domain.KindNoSupportedMedia, op, nil).
			WithDetail("%d entities at %s, all dropped", len(entities), path)
	}

	tweet, err := normalizeTweetInfo(result)
	if err != nil {
		return nil, report, err
	}

	resp, err := domain.NewMediaResponse(items, tweet)
	if err != nil {
		return nil, report, err
	}
	return resp, report, nil
}

// probeMedia returns the first non-empty media list and its path.
func probeMedia(r *tweetResult) ([]mediaEntity, string) {
	if r.Legacy != nil && r.Legacy.ExtendedEntities != nil && len(r.Legacy.ExtendedEntities.Media) > 0 {
		return r.Legacy.ExtendedEntities.Media, pathLegacyExtendedEntities
	}
	if r.ExtendedEntities != nil && len(r.ExtendedEntities.Media) > 0 {
		return r.ExtendedEntities.Media, pathExtendedEntities
	}
	if r.Legacy != nil && r.Legacy.Entities != nil && len(r.Legacy.Entities.Media) > 0 {
		return r.Legacy.Entities.Media, pathLegacyEntities
	}
	return nil, ""
}

// normalizeEntity converts one raw entity. A non-empty reason means the
// entity was dropped.
func normalizeEntity(m mediaEntity) (domain.MediaItem, string) {
	switch m.Type {
	case "video", "animated_gif":
		raw := m.Variants
		duration, aspect := m.DurationMillis, m.AspectRatio
		if m.VideoInfo != nil {
			if len(m.VideoInfo.Variants) > 0 {
				raw = m.VideoInfo.Variants
			}
			if m.VideoInfo.DurationMillis != nil {
				duration = m.VideoInfo.DurationMillis
			}
			if len(m.VideoInfo.AspectRatio) > 0 {
				aspect = m.VideoInfo.AspectRatio
			}
		}

		variants := mp4Variants(raw)
		if len(variants) == 0 {
			return domain.MediaItem{}, DropNoMP4Variants
		}
		return domain.MediaItem{
			Type:           domain.MediaTypeVideo,
			Kind:           m.Type,
			URL:            m.URL,
			MediaURLHTTPS:  m.MediaURLHTTPS,
			Sizes:          m.Sizes,
			Variants:       variants,
			DurationMillis: duration,
			AspectRatio:    aspect,
		}, ""

	case "photo":
		return domain.MediaItem{
			Type:          domain.MediaTypePhoto,
			Kind:          m.Type,
			URL:           m.URL,
			MediaURLHTTPS: m.MediaURLHTTPS,
			Sizes:         m.Sizes,
		}, ""
	}
	return domain.MediaItem{}, DropUnsupportedKind
}

// mp4Variants keeps the mp4 variants sorted by bitrate, highest first.
// Variants of equal bitrate keep their upstream order.
func mp4Variants(raw []domain.VideoVariant) []domain.VideoVariant {
	out := make([]domain.VideoVariant, 0, len(raw))
	for _, v := range raw {
		if v.ContentType == mp4ContentType {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].BitrateOrZero() > out[j].BitrateOrZero()
	})
	return out
}

func normalizeTweetInfo(r *tweetResult) (domain.TweetInfo, error) {
	const op = "normalize tweet info"

	legacy := r.Legacy
	if legacy == nil {
		return domain.TweetInfo{}, domain.NewError(domain.KindPostNotFound, op, nil).
			WithDetail("result.legacy absent")
	}

	id := legacy.IDStr
	if id == "" {
		id = r.RestID
	}

	var text string
	hasText := false
	if r.NoteTweet != nil && r.NoteTweet.NoteTweetResults.Result != nil && r.NoteTweet.NoteTweetResults.Result.Text != "" {
		text, hasText = r.NoteTweet.NoteTweetResults.Result.Text, true
	} else if legacy.FullText != nil {
		text, hasText = CleanTweetText(*legacy.FullText), true
	}

	var missing []string
	if id == "" {
		missing = append(missing, "id_str")
	}
	if !hasText {
		missing = append(missing, "full_text")
	}
	if legacy.CreatedAt == "" {
		missing = append(missing, "created_at")
	}
	if len(missing) > 0 {
		return domain.TweetInfo{}, domain.NewError(domain.KindPostNotFound, op, nil).
			WithDetail("missing result.legacy fields: %s", strings.Join(missing, ", "))
	}

	info := domain.TweetInfo{
		ID:            id,
		Text:          text,
		CreatedAt:     legacy.CreatedAt,
		User:          normalizeUser(r),
		ReplyCount:    legacy.ReplyCount,
		RetweetCount:  legacy.RetweetCount,
		QuoteCount:    legacy.QuoteCount,
		FavoriteCount: legacy.FavoriteCount,
	}
	if postedAt, err := time.Parse(time.RubyDate, legacy.CreatedAt); err == nil {
		postedAt = postedAt.UTC()
		info.PostedAt = &postedAt
	}
	if r.Views != nil && r.Views.Count != "" {
		if views, err := strconv.ParseInt(r.Views.Count, 10, 64); err == nil {
			info.ViewCount = &views
		}
	}
	return info, nil
}

// normalizeUser reads the author. Every field is optional.
func normalizeUser(r *tweetResult) domain.User {
	var u domain.User
	if r.Core == nil || r.Core.UserResults.Result == nil {
		return u
	}
	ur := r.Core.UserResults.Result
	u.IsBlueVerified = ur.IsBlueVerified

	if ur.Legacy != nil {
		u.Name = ur.Legacy.Name
		u.ScreenName = ur.Legacy.ScreenName
		u.ProfileImageURL = ur.Legacy.ProfileImageURLHTTPS
		u.Description = ur.Legacy.Description
		u.FollowersCount = ur.Legacy.FollowersCount
		u.FollowingCount = ur.Legacy.FriendsCount
	}
	if ur.Core != nil {
		if u.Name == "" {
			u.Name = ur.Core.Name
		}
		if u.ScreenName == "" {
			u.ScreenName = ur.Core.ScreenName
		}
	}
	if u.ProfileImageURL == "" && ur.Avatar != nil {
		u.ProfileImageURL = ur.Avatar.ImageURL
	}
	return u
}
