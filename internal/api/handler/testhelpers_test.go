package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/iconidentify/xgrab/internal/domain"
	"github.com/iconidentify/xgrab/pkg/twitter"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockMediaClient is a test implementation of service.MediaClient.
type mockMediaClient struct {
	resp   *domain.MediaResponse
	raw    json.RawMessage
	guest  string
	err    error
	status twitter.CredentialStatus
	calls  int
}

func (m *mockMediaClient) FetchMedia(ctx context.Context, tweetID string) (*domain.MediaResponse, twitter.NormalizeReport, error) {
	m.calls++
	if m.err != nil {
		return nil, twitter.NormalizeReport{}, m.err
	}
	return m.resp, twitter.NormalizeReport{MediaPath: "result.legacy.extended_entities.media"}, nil
}

func (m *mockMediaClient) FetchRaw(ctx context.Context, tweetID string) (json.RawMessage, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.raw, nil
}

func (m *mockMediaClient) GuestToken(ctx context.Context) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.guest, nil
}

func (m *mockMediaClient) CredentialStatus() twitter.CredentialStatus {
	return m.status
}
