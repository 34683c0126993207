package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iconidentify/xgrab/internal/domain"
	"github.com/iconidentify/xgrab/pkg/twitter"
)

type fakeMediaClient struct {
	resp   *domain.MediaResponse
	report twitter.NormalizeReport
	raw    json.RawMessage
	guest  string
	err    error
	block  bool

	mu       sync.Mutex
	fetched  []string
	deadline bool
}

func (f *fakeMediaClient) FetchMedia(ctx context.Context, tweetID string) (*domain.MediaResponse, twitter.NormalizeReport, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, tweetID)
	_, f.deadline = ctx.Deadline()
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, twitter.NormalizeReport{}, domain.NewError(domain.KindUpstreamFetchFailed, "fetch tweet result", ctx.Err())
	}
	if f.err != nil {
		return nil, f.report, f.err
	}
	return f.resp, f.report, nil
}

func (f *fakeMediaClient) FetchRaw(_ context.Context, tweetID string) (json.RawMessage, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, tweetID)
	f.mu.Unlock()
	return f.raw, f.err
}

func (f *fakeMediaClient) GuestToken(context.Context) (string, error) {
	return f.guest, f.err
}

func (f *fakeMediaClient) CredentialStatus() twitter.CredentialStatus {
	return twitter.CredentialStatus{CacheEnabled: true, Fetches: 3}
}

type recordedDrop struct{ kind, reason string }

type fakeRecorder struct {
	outcomes []string
	drops    []recordedDrop
}

func (r *fakeRecorder) Resolve(outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeRecorder) DroppedEntity(kind, reason string) {
	r.drops = append(r.drops, recordedDrop{kind, reason})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func photoResponse(t *testing.T) *domain.MediaResponse {
	t.Helper()
	resp, err := domain.NewMediaResponse(
		[]domain.MediaItem{{Type: domain.MediaTypePhoto, URL: "https://t.co/x", MediaURLHTTPS: "https://pbs.twimg.com/media/x.jpg"}},
		domain.TweetInfo{ID: "1234567890123456789", Text: "hi", CreatedAt: "Wed Oct 10 20:19:24 +0000 2018"},
	)
	require.NoError(t, err)
	return resp
}

func TestParseTweetURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantID   domain.TweetID
		wantKind domain.ErrorKind
	}{
		{"x.com", "https://x.com/user/status/1234567890123456789", "1234567890123456789", ""},
		{"twitter.com with query", "https://twitter.com/u/status/42?s=20", "42", ""},
		{"no scheme", "x.com/u/status/7", "7", ""},
		{"surrounding whitespace", "  https://x.com/u/status/8  ", "8", ""},
		{"empty", "", "", domain.KindInvalidInput},
		{"whitespace only", "   ", "", domain.KindInvalidInput},
		{"ftp scheme", "ftp://x.com/u/status/1", "", domain.KindInvalidInput},
		{"uppercase scheme", "HTTPS://x.com/u/status/9", "9", ""},
		{"no scheme with url in query", "x.com/user/status/123?ref=https://example.com", "123", ""},
		{"link inside free text", "Check this https://x.com/user/status/123", "123", ""},
		{"bare link inside free text", "look: twitter.com/user/status/55 wow", "55", ""},
		{"javascript scheme", "javascript://x.com/u/status/1", "", domain.KindInvalidInput},
		{"escaped user segment", "https://x.com/%zz/status/1", "", domain.KindUnsupportedURL},
		{"profile url", "https://x.com/user", "", domain.KindUnsupportedURL},
		{"other host", "https://example.com/user/status/1", "", domain.KindUnsupportedURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := parseTweetURL(tt.input)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, domain.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestMediaService_Resolve(t *testing.T) {
	client := &fakeMediaClient{resp: photoResponse(t)}
	rec := &fakeRecorder{}
	svc := NewMediaService(client, rec, time.Minute, testLogger())

	resp, err := svc.Resolve(context.Background(), "https://x.com/user/status/1234567890123456789")
	require.NoError(t, err)

	assert.Equal(t, "1234567890123456789", resp.Tweet.ID)
	assert.Equal(t, []string{"1234567890123456789"}, client.fetched)
	assert.True(t, client.deadline, "resolve should run under a deadline")
	assert.Equal(t, []string{OutcomeOK}, rec.outcomes)
}

func TestMediaService_Resolve_InputErrorsSkipUpstream(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind domain.ErrorKind
	}{
		{"empty", "", domain.KindInvalidInput},
		{"unsupported", "https://x.com/explore", domain.KindUnsupportedURL},
		{"ftp scheme", "ftp://x.com/u/status/1", domain.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeMediaClient{resp: photoResponse(t)}
			rec := &fakeRecorder{}
			svc := NewMediaService(client, rec, time.Minute, testLogger())

			_, err := svc.Resolve(context.Background(), tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, domain.KindOf(err))
			assert.Equal(t, 400, domain.HTTPStatus(err))
			assert.Empty(t, client.fetched)
			assert.Equal(t, []string{string(tt.wantKind)}, rec.outcomes)
		})
	}
}

func TestMediaService_Resolve_RecordsDroppedEntities(t *testing.T) {
	client := &fakeMediaClient{
		err: domain.NewError(domain.KindNoSupportedMedia, "normalize tweet result", nil),
		report: twitter.NormalizeReport{
			MediaPath: "result.legacy.extended_entities.media",
			Entities:  2,
			Dropped: []twitter.DroppedEntity{
				{Index: 0, Kind: "video", Reason: twitter.DropNoMP4Variants},
				{Index: 1, Kind: "card", Reason: twitter.DropUnsupportedKind},
			},
		},
	}
	rec := &fakeRecorder{}
	svc := NewMediaService(client, rec, 0, testLogger())

	_, err := svc.Resolve(context.Background(), "https://x.com/u/status/5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNoSupportedMedia))
	assert.Equal(t, []recordedDrop{
		{"video", twitter.DropNoMP4Variants},
		{"card", twitter.DropUnsupportedKind},
	}, rec.drops)
	assert.Equal(t, []string{"NoSupportedMedia"}, rec.outcomes)
	assert.False(t, client.deadline, "zero timeout disables the deadline")
}

func TestMediaService_Resolve_Deadline(t *testing.T) {
	client := &fakeMediaClient{block: true}
	svc := NewMediaService(client, nil, 20*time.Millisecond, testLogger())

	_, err := svc.Resolve(context.Background(), "https://x.com/u/status/5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 504, domain.HTTPStatus(err))
}

func TestMediaService_Raw(t *testing.T) {
	client := &fakeMediaClient{raw: json.RawMessage(`{"data":{}}`)}
	svc := NewMediaService(client, nil, time.Minute, testLogger())

	raw, err := svc.Raw(context.Background(), "https://twitter.com/u/status/99")
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{}}`, string(raw))
	assert.Equal(t, []string{"99"}, client.fetched)

	_, err = svc.Raw(context.Background(), "https://x.com/home")
	assert.Equal(t, domain.KindUnsupportedURL, domain.KindOf(err))
}

func TestMediaService_GuestToken(t *testing.T) {
	svc := NewMediaService(&fakeMediaClient{guest: "g-1"}, nil, time.Minute, testLogger())
	token, err := svc.GuestToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "g-1", token)

	failing := NewMediaService(&fakeMediaClient{
		err: domain.NewError(domain.KindSessionExchangeFailed, "activate guest session", nil).WithStatus(403),
	}, nil, time.Minute, testLogger())
	_, err = failing.GuestToken(context.Background())
	assert.Equal(t, domain.KindSessionExchangeFailed, domain.KindOf(err))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeOK, outcome(nil))
	assert.Equal(t, "PostNotFound", outcome(domain.NewError(domain.KindPostNotFound, "op", nil)))
	assert.Equal(t, "Internal", outcome(errors.New("boom")))
}
