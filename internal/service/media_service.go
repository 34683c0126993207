package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iconidentify/xgrab/internal/domain"
	"github.com/iconidentify/xgrab/pkg/twitter"
)

var leadingSchemeRegex = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9+.-]*)://`)

// MediaClient is the upstream client used by MediaService.
type MediaClient interface {
	FetchMedia(ctx context.Context, tweetID string) (*domain.MediaResponse, twitter.NormalizeReport, error)
	FetchRaw(ctx context.Context, tweetID string) (json.RawMessage, error)
	GuestToken(ctx context.Context) (string, error)
	CredentialStatus() twitter.CredentialStatus
}

// OutcomeOK is the outcome passed to Recorder.Resolve on success. Failures
// pass their error kind.
const OutcomeOK = "ok"

// Recorder receives resolution metrics. *metrics.Metrics implements it.
type Recorder interface {
	Resolve(outcome string, elapsed time.Duration)
	DroppedEntity(kind, reason string)
}

// MediaService resolves post URLs to downloadable media.
type MediaService struct {
	client         MediaClient
	recorder       Recorder
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewMediaService creates a new media service. recorder may be nil.
// requestTimeout bounds a whole resolution, 0 disables the deadline.
func NewMediaService(client MediaClient, recorder Recorder, requestTimeout time.Duration, logger *slog.Logger) *MediaService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaService{
		client:         client,
		recorder:       recorder,
		requestTimeout: requestTimeout,
		logger:         logger,
	}
}

// Resolve extracts the post ID from rawURL, fetches the post and returns its
// normalized media. Input errors are returned before any upstream call.
func (s *MediaService) Resolve(ctx context.Context, rawURL string) (*domain.MediaResponse, error) {
	start := time.Now()

	tweetID, err := parseTweetURL(rawURL)
	if err != nil {
		s.record(err, start)
		return nil, err
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("tweet.id", tweetID.String()))

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	resp, report, err := s.client.FetchMedia(ctx, tweetID.String())
	s.recordDropped(tweetID, report)
	s.record(err, start)
	if err != nil {
		s.logFailure("resolve media failed", tweetID, err, start)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("media.type", string(resp.Type)),
		attribute.Int("media.items", len(resp.MediaItems)),
		attribute.Bool("media.has_video", resp.HasVideo()),
	)
	s.logger.Info("media resolved",
		"tweet_id", tweetID,
		"type", resp.Type,
		"items", len(resp.MediaItems),
		"media_path", report.MediaPath,
		"duration", time.Since(start),
	)
	return resp, nil
}

// Raw returns the unnormalized upstream payload for rawURL.
func (s *MediaService) Raw(ctx context.Context, rawURL string) (json.RawMessage, error) {
	start := time.Now()

	tweetID, err := parseTweetURL(rawURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	raw, err := s.client.FetchRaw(ctx, tweetID.String())
	if err != nil {
		s.logFailure("raw fetch failed", tweetID, err, start)
		return nil, err
	}
	s.logger.Debug("raw payload fetched", "tweet_id", tweetID, "bytes", len(raw))
	return raw, nil
}

// GuestToken runs the bearer and guest session steps only.
func (s *MediaService) GuestToken(ctx context.Context) (string, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	token, err := s.client.GuestToken(ctx)
	if err != nil {
		s.logger.Error("guest token failed", "kind", domain.KindOf(err), "error", err)
		return "", err
	}
	return token, nil
}

// CredentialStatus reports the credential cache state.
func (s *MediaService) CredentialStatus() twitter.CredentialStatus {
	return s.client.CredentialStatus()
}

func (s *MediaService) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.requestTimeout)
}

func (s *MediaService) record(err error, start time.Time) {
	if s.recorder == nil {
		return
	}
	s.recorder.Resolve(outcome(err), time.Since(start))
}

func (s *MediaService) recordDropped(tweetID domain.TweetID, report twitter.NormalizeReport) {
	for _, d := range report.Dropped {
		s.logger.Warn("media entity dropped",
			"tweet_id", tweetID,
			"index", d.Index,
			"kind", d.Kind,
			"reason", d.Reason,
			"media_path", report.MediaPath,
		)
		if s.recorder != nil {
			s.recorder.DroppedEntity(d.Kind, d.Reason)
		}
	}
}

// logFailure logs expected outcomes (no media, bad input) at info and
// upstream failures at error.
func (s *MediaService) logFailure(msg string, tweetID domain.TweetID, err error, start time.Time) {
	level := slog.LevelError
	if domain.HTTPStatus(err) < 500 {
		level = slog.LevelInfo
	}
	s.logger.Log(context.Background(), level, msg,
		"tweet_id", tweetID,
		"kind", domain.KindOf(err),
		"status", domain.HTTPStatus(err),
		"duration", time.Since(start),
		"error", err,
	)
}

func outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if kind := domain.KindOf(err); kind != "" {
		return string(kind)
	}
	return "Internal"
}

// parseTweetURL extracts the post ID from rawURL, which may be a bare link
// or free text containing one. A leading scheme other than http(s) is
// rejected.
func parseTweetURL(rawURL string) (domain.TweetID, error) {
	const op = "parse tweet url"

	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", domain.NewError(domain.KindInvalidInput, op, nil).WithDetail("empty url")
	}

	if m := leadingSchemeRegex.FindStringSubmatch(rawURL); m != nil {
		if scheme := strings.ToLower(m[1]); scheme != "http" && scheme != "https" {
			return "", domain.NewError(domain.KindInvalidInput, op, nil).
				WithDetail("scheme=%q", scheme)
		}
	}

	id := twitter.ExtractTweetID(rawURL)
	if id == "" {
		return "", domain.NewError(domain.KindUnsupportedURL, op, nil).
			WithDetail("no <host>/<user>/status/<digits> segment in %q", twitter.Truncate(rawURL, 200))
	}
	return domain.TweetID(id), nil
}
