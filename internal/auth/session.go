package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNoSession indicates there is no access token to refresh or use.
	ErrNoSession = errors.New("no active session")
	// ErrRefreshRejected indicates the refresh endpoint did not return a
	// new token. Network failures during refresh map here too, the caller
	// only needs to know that refresh did not produce a token.
	ErrRefreshRejected = errors.New("token refresh rejected")
)

// Session owns the client's credential state: the access token, the minimal
// user profile, and the refresh flow. It is injected into whatever performs
// network calls, never read from ambient globals. Token writes are
// last-writer-wins under the mutex.
type Session struct {
	mu    sync.RWMutex
	cred  Credentials
	store *Store

	http       *http.Client
	refreshURL string
	group      singleflight.Group
	logger     *zap.Logger
}

// NewSession loads persisted credentials and primes the shared cookie jar
// with any saved cookies (the httpOnly refresh cookie in particular).
func NewSession(store *Store, httpClient *http.Client, refreshURL string, logger *zap.Logger) (*Session, error) {
	s := &Session{
		store:      store,
		http:       httpClient,
		refreshURL: refreshURL,
		logger:     logger,
	}

	cred, err := store.Load()
	if err != nil {
		return nil, err
	}
	if cred != nil {
		s.cred = *cred
		s.restoreCookies(cred.Cookies)
	}
	return s, nil
}

// Token returns the current access token, empty if logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.AccessToken
}

// User returns the current profile, nil if logged out.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.User
}

// Authenticated reports whether an access token is present.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// SetCredentials installs a new token and profile (login, registration,
// OAuth exchange or phone verification success) and persists them.
func (s *Session) SetCredentials(token string, user *User) error {
	s.mu.Lock()
	s.cred.AccessToken = token
	if user != nil {
		s.cred.User = user
	}
	s.cred.Cookies = s.snapshotCookies()
	cred := s.cred
	s.mu.Unlock()

	return s.store.Save(&cred)
}

// Refresh performs a single silent token refresh: POST to the refresh
// endpoint with cookies only, no body. On success the new token replaces
// the old one in place and is persisted. Concurrent callers share one
// in-flight refresh.
func (s *Session) Refresh(ctx context.Context) (string, error) {
	v, err, _ := s.group.Do("refresh", func() (any, error) {
		return s.doRefresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Session) doRefresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.refreshURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshRejected, err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		s.logger.Warn("refresh request failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrRefreshRejected, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		s.logger.Info("refresh rejected", zap.Int("status", resp.StatusCode))
		return "", fmt.Errorf("%w: status %d", ErrRefreshRejected, resp.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrRefreshRejected, err)
	}
	if body.Token == "" {
		return "", fmt.Errorf("%w: empty token", ErrRefreshRejected)
	}

	s.mu.Lock()
	s.cred.AccessToken = body.Token
	s.cred.Cookies = s.snapshotCookies()
	cred := s.cred
	s.mu.Unlock()

	if err := s.store.Save(&cred); err != nil {
		s.logger.Warn("failed to persist refreshed token", zap.Error(err))
	}
	s.logger.Info("access token refreshed")
	return body.Token, nil
}

// Clear wipes all credential state, in memory and on disk. Downstream
// components interpret this as "logged out".
func (s *Session) Clear() error {
	s.mu.Lock()
	s.cred = Credentials{}
	s.mu.Unlock()
	return s.store.Clear()
}

// ExpiresAt returns the access token's exp claim, parsed without signature
// verification (the client holds no signing key and only needs the time).
func (s *Session) ExpiresAt() (time.Time, bool) {
	return TokenExpiry(s.Token())
}

// ExpiresWithin reports whether the token expires inside the given window.
// A missing or unparsable token counts as expiring, which biases toward a
// proactive refresh instead of a guaranteed 401.
func (s *Session) ExpiresWithin(window time.Duration) bool {
	exp, ok := s.ExpiresAt()
	if !ok {
		return true
	}
	return time.Until(exp) < window
}

func (s *Session) restoreCookies(saved []SavedCookie) {
	if s.http.Jar == nil || len(saved) == 0 {
		return
	}
	u, err := url.Parse(s.refreshURL)
	if err != nil {
		return
	}
	cookies := make([]*http.Cookie, 0, len(saved))
	for _, c := range saved {
		cookies = append(cookies, &http.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  c.Domain,
			Path:    c.Path,
			Expires: c.Expires,
		})
	}
	s.http.Jar.SetCookies(u, cookies)
}

// snapshotCookies captures the jar's cookies for the API host so the
// refresh cookie survives restarts. Called with s.mu held.
func (s *Session) snapshotCookies() []SavedCookie {
	if s.http.Jar == nil {
		return nil
	}
	u, err := url.Parse(s.refreshURL)
	if err != nil {
		return nil
	}
	var saved []SavedCookie
	for _, c := range s.http.Jar.Cookies(u) {
		saved = append(saved, SavedCookie{
			Name:  c.Name,
			Value: c.Value,
			Path:  "/",
		})
	}
	return saved
}
