package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/proxy"

	"github.com/iconidentify/xgrab/internal/domain"
)

// Upstream call steps, used in logs and by CallObserver.
const (
	StepScript      = "script"
	StepActivate    = "activate"
	StepTweetResult = "tweet_result"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxScriptBytes = 8 << 20
	maxPayloadBytes       = 16 << 20
	maxLoggedBodyBytes    = 2048
)

// CallObserver is notified after every upstream HTTP call.
// status is 0 when no response was received.
type CallObserver interface {
	UpstreamCall(step string, status int, elapsed time.Duration)
}

// ClientConfig configures a Client. Zero values fall back to defaults.
type ClientConfig struct {
	Endpoints      Endpoints
	Timeout        time.Duration // per upstream call
	UserAgent      string
	AcceptLanguage string
	ProxyURL       string // http, https or socks5
	MaxScriptBytes int64
	CredentialTTL  time.Duration // 0 fetches fresh credentials for every request

	// Transport replaces the pooled default transport. Proxy settings are
	// ignored when it is set.
	Transport http.RoundTripper
	Observer  CallObserver
}

// Client fetches tweet media from X.com as a logged-out guest.
type Client struct {
	httpClient     *http.Client
	endpoints      Endpoints
	headers        http.Header
	maxScriptBytes int64
	creds          *CachingCredentialSource
	observer       CallObserver
	logger         *slog.Logger
}

// NewClient creates a new Twitter client.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	defaults := DefaultEndpoints()
	if cfg.Endpoints.ScriptURL == "" {
		cfg.Endpoints.ScriptURL = defaults.ScriptURL
	}
	if cfg.Endpoints.ActivateURL == "" {
		cfg.Endpoints.ActivateURL = defaults.ActivateURL
	}
	if cfg.Endpoints.GraphQLURL == "" {
		cfg.Endpoints.GraphQLURL = defaults.GraphQLURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = DefaultAcceptLanguage
	}
	if cfg.MaxScriptBytes <= 0 {
		cfg.MaxScriptBytes = defaultMaxScriptBytes
	}
	if logger == nil {
		logger = slog.Default()
	}

	base := cfg.Transport
	if base == nil {
		t, err := newTransport(cfg.ProxyURL)
		if err != nil {
			return nil, err
		}
		base = t
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(base),
		},
		endpoints:      cfg.Endpoints,
		headers:        browserHeaders(cfg.UserAgent, cfg.AcceptLanguage),
		maxScriptBytes: cfg.MaxScriptBytes,
		observer:       cfg.Observer,
		logger:         logger,
	}
	c.creds = NewCachingCredentialSource(c.fetchCredentials, cfg.CredentialTTL)
	return c, nil
}

// newTransport returns a pooled transport, optionally routed through an
// HTTP/HTTPS or SOCKS5 proxy.
func newTransport(proxyAddr string) (*http.Transport, error) {
	t := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	if proxyAddr == "" {
		return t, nil
	}

	u, err := url.Parse(proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		t.Proxy = http.ProxyURL(u)
	case "socks5":
		var auth *proxy.Auth
		if u.User != nil {
			pass, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: pass}
		}
		dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socks5 proxy: %w", err)
		}
		dc, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks5: context dialer not supported")
		}
		t.DialContext = dc.DialContext
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", u.Scheme)
	}
	return t, nil
}

// Credentials returns a bearer/guest token pair, from cache when enabled.
func (c *Client) Credentials(ctx context.Context) (Credentials, error) {
	return c.creds.Credentials(ctx)
}

// CredentialStatus reports the state of the credential cache.
func (c *Client) CredentialStatus() CredentialStatus {
	return c.creds.Status()
}

func (c *Client) fetchCredentials(ctx context.Context) (Credentials, error) {
	bearer, err := c.ResolveBearerToken(ctx)
	if err != nil {
		return Credentials{}, err
	}
	c.logger.Debug("bearer token obtained", "token_prefix", tokenPrefix(bearer))

	guest, err := c.ActivateGuestSession(ctx, bearer)
	if err != nil {
		return Credentials{}, err
	}
	c.logger.Debug("guest token obtained", "token_prefix", tokenPrefix(guest))

	return Credentials{
		BearerToken: bearer,
		GuestToken:  guest,
		IssuedAt:    time.Now(),
	}, nil
}

// ResolveBearerToken downloads the web client bundle and extracts the
// bearer token embedded in it.
func (c *Client) ResolveBearerToken(ctx context.Context) (string, error) {
	const op = "resolve bearer token"

	resp, err := c.do(ctx, StepScript, http.MethodGet, c.endpoints.ScriptURL, nil)
	if err != nil {
		return "", domain.NewError(domain.KindTokenResolutionFailed, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", domain.NewError(domain.KindTokenResolutionFailed, op,
			fmt.Errorf("script error: %s", resp.Status)).
			WithStatus(resp.StatusCode).
			WithDetail("url=%s", c.endpoints.ScriptURL)
	}

	script, err := io.ReadAll(io.LimitReader(resp.Body, c.maxScriptBytes))
	if err != nil {
		return "", domain.NewError(domain.KindTokenResolutionFailed, op,
			fmt.Errorf("read script: %w", err)).WithStatus(resp.StatusCode)
	}

	token, pattern, ok := findBearerToken(string(script))
	if !ok {
		return "", domain.NewError(domain.KindTokenResolutionFailed, op, nil).
			WithStatus(resp.StatusCode).
			WithDetail("no pattern matched (tried %s) in %d bytes", bearerPatternNames(), len(script))
	}
	c.logger.Debug("bearer token pattern matched", "pattern", pattern)
	return token, nil
}

// findBearerToken scans script with each pattern in order and returns the
// first token found and the name of the pattern that matched.
func findBearerToken(script string) (token, pattern string, ok bool) {
	for _, p := range bearerPatterns {
		m := p.re.FindStringSubmatch(script)
		if len(m) > p.group && m[p.group] != "" {
			return m[p.group], p.name, true
		}
	}
	return "", "", false
}

func bearerPatternNames() string {
	names := make([]string, 0, len(bearerPatterns))
	for _, p := range bearerPatterns {
		names = append(names, p.name)
	}
	return strings.Join(names, ",")
}

type activateResponse struct {
	GuestToken string `json:"guest_token"`
}

// ActivateGuestSession exchanges a bearer token for a guest session token.
func (c *Client) ActivateGuestSession(ctx context.Context, bearerToken string) (string, error) {
	const op = "activate guest session"

	resp, err := c.do(ctx, StepActivate, http.MethodPost, c.endpoints.ActivateURL, http.Header{
		"Authorization": []string{"Bearer " + bearerToken},
	})
	if err != nil {
		return "", domain.NewError(domain.KindSessionExchangeFailed, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := readForLog(resp.Body)
		c.logger.Debug("guest activation rejected", "status", resp.StatusCode, "body", body)
		return "", domain.NewError(domain.KindSessionExchangeFailed, op,
			fmt.Errorf("activate error: %s", resp.Status)).WithStatus(resp.StatusCode)
	}

	var ar activateResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", domain.NewError(domain.KindSessionExchangeFailed, op,
			fmt.Errorf("decode response: %w", err)).WithStatus(resp.StatusCode)
	}
	if ar.GuestToken == "" {
		return "", domain.NewError(domain.KindSessionExchangeFailed, op, nil).
			WithStatus(resp.StatusCode).
			WithDetail("field guest_token missing from response")
	}
	return ar.GuestToken, nil
}

// FetchTweetResult runs the TweetResultByRestId query and returns the raw
// JSON payload. The payload is guaranteed to be well-formed JSON.
func (c *Client) FetchTweetResult(ctx context.Context, tweetID string, creds Credentials) ([]byte, error) {
	const op = "fetch tweet result"

	reqURL := BuildTweetResultURL(c.endpoints.GraphQLURL, tweetID)
	resp, err := c.do(ctx, StepTweetResult, http.MethodGet, reqURL, http.Header{
		"Authorization": []string{"Bearer " + creds.BearerToken},
		"X-Guest-Token": []string{creds.GuestToken},
	})
	if err != nil {
		return nil, domain.NewError(domain.KindUpstreamFetchFailed, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := readForLog(resp.Body)
		c.logger.Debug("tweet result rejected", "tweet_id", tweetID, "status", resp.StatusCode, "body", body)
		return nil, domain.NewError(domain.KindUpstreamFetchFailed, op,
			fmt.Errorf("API error: %s", resp.Status)).
			WithStatus(resp.StatusCode).
			WithDetail("tweet_id=%s", tweetID)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, domain.NewError(domain.KindUpstreamFetchFailed, op,
			fmt.Errorf("read response: %w", err)).WithStatus(resp.StatusCode)
	}

	var probe json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		c.logger.Debug("tweet result is not JSON", "tweet_id", tweetID, "body", Truncate(string(body), maxLoggedBodyBytes))
		return nil, domain.NewError(domain.KindUpstreamFetchFailed, op,
			fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)).
			WithStatus(resp.StatusCode).
			WithDetail("tweet_id=%s bytes=%d", tweetID, len(body))
	}
	return body, nil
}

// FetchRaw returns the raw upstream payload for a tweet.
func (c *Client) FetchRaw(ctx context.Context, tweetID string) (json.RawMessage, error) {
	creds, err := c.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	body, err := c.fetchWithCredentials(ctx, tweetID, creds)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// FetchMedia resolves, fetches and normalizes the media of a tweet.
// The report is populated even when normalization fails.
func (c *Client) FetchMedia(ctx context.Context, tweetID string) (*domain.MediaResponse, NormalizeReport, error) {
	creds, err := c.Credentials(ctx)
	if err != nil {
		return nil, NormalizeReport{}, err
	}
	body, err := c.fetchWithCredentials(ctx, tweetID, creds)
	if err != nil {
		return nil, NormalizeReport{}, err
	}
	return Normalize(body)
}

// GuestToken runs the token and session steps only.
func (c *Client) GuestToken(ctx context.Context) (string, error) {
	creds, err := c.Credentials(ctx)
	if err != nil {
		return "", err
	}
	return creds.GuestToken, nil
}

// fetchWithCredentials drops cached credentials the upstream has rejected so
// the next request starts a fresh session. The current request still fails.
func (c *Client) fetchWithCredentials(ctx context.Context, tweetID string, creds Credentials) ([]byte, error) {
	body, err := c.FetchTweetResult(ctx, tweetID, creds)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) && (de.UpstreamStatus == http.StatusUnauthorized || de.UpstreamStatus == http.StatusForbidden) {
			c.creds.Invalidate()
		}
		return nil, err
	}
	return body, nil
}

// do sends a request with the browser header set plus extra headers.
func (c *Client) do(ctx context.Context, step, method, reqURL string, extra http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	for k, v := range extra {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.observe(step, 0, elapsed)
		return nil, fmt.Errorf("send request: %w", err)
	}
	c.observe(step, resp.StatusCode, elapsed)
	c.logger.Debug("upstream call", "step", step, "status", resp.StatusCode, "duration", elapsed)
	return resp, nil
}

func (c *Client) observe(step string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.UpstreamCall(step, status, elapsed)
	}
}

func readForLog(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, maxLoggedBodyBytes+1))
	return Truncate(strings.TrimSpace(string(body)), maxLoggedBodyBytes)
}

func tokenPrefix(token string) string {
	if len(token) <= 10 {
		return token
	}
	return token[:10] + "..."
}
