package twitter

import (
	"context"
	"sync"
	"time"
)

// Credentials are the two tokens a guest GraphQL call needs.
type Credentials struct {
	BearerToken string
	GuestToken  string
	IssuedAt    time.Time
}

// CredentialSource provides guest credentials for API calls.
type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
	Invalidate()
	Status() CredentialStatus
}

// CredentialStatus returns information about the current credential state.
type CredentialStatus struct {
	CacheEnabled bool       `json:"cache_enabled"`
	Cached       bool       `json:"cached"`
	IssuedAt     *time.Time `json:"issued_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Fetches      int64      `json:"fetches"`
}

// CachingCredentialSource keeps one process-wide credential pair until its
// TTL runs out. With a zero TTL every call fetches a fresh pair.
type CachingCredentialSource struct {
	fetch func(ctx context.Context) (Credentials, error)
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	creds     Credentials
	expiresAt time.Time
	fetches   int64
}

var _ CredentialSource = (*CachingCredentialSource)(nil)

// NewCachingCredentialSource creates a source around fetch.
func NewCachingCredentialSource(fetch func(ctx context.Context) (Credentials, error), ttl time.Duration) *CachingCredentialSource {
	return &CachingCredentialSource{
		fetch: fetch,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Credentials returns cached credentials while they are fresh, otherwise
// fetches a new pair. The lock is not held during the fetch, so concurrent
// callers racing an expiry may each fetch once.
func (s *CachingCredentialSource) Credentials(ctx context.Context) (Credentials, error) {
	if s.ttl > 0 {
		s.mu.Lock()
		creds, exp := s.creds, s.expiresAt
		s.mu.Unlock()
		if creds.GuestToken != "" && s.now().Before(exp) {
			return creds, nil
		}
	}

	creds, err := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if err != nil {
		return Credentials{}, err
	}
	if s.ttl > 0 {
		s.creds = creds
		s.expiresAt = s.now().Add(s.ttl)
	}
	return creds, nil
}

// Invalidate drops the cached pair.
func (s *CachingCredentialSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{}
	s.expiresAt = time.Time{}
}

// Status reports the cache state.
func (s *CachingCredentialSource) Status() CredentialStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := CredentialStatus{
		CacheEnabled: s.ttl > 0,
		Fetches:      s.fetches,
	}
	if s.creds.GuestToken != "" && s.now().Before(s.expiresAt) {
		issued, expires := s.creds.IssuedAt, s.expiresAt
		st.Cached = true
		st.IssuedAt = &issued
		st.ExpiresAt = &expires
	}
	return st
}
