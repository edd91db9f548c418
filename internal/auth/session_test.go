package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "credentials.json"))
}

func testSession(t *testing.T, refreshURL string) *Session {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSession(testStore(t), &http.Client{Jar: jar}, refreshURL, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	st := testStore(t)

	cred := &Credentials{
		AccessToken: "tok-1",
		User:        &User{ID: "u1", Name: "Ana", Email: "ana@example.com"},
	}
	if err := st.Save(cred); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := st.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.AccessToken != "tok-1" {
		t.Errorf("AccessToken = %q, want tok-1", loaded.AccessToken)
	}
	if loaded.User == nil || loaded.User.ID != "u1" {
		t.Errorf("User = %+v, want ID u1", loaded.User)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	st := testStore(t)
	cred, err := st.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cred != nil {
		t.Errorf("Load() = %+v, want nil for missing file", cred)
	}
}

func TestStoreClear(t *testing.T) {
	st := testStore(t)
	if err := st.Save(&Credentials{AccessToken: "tok"}); err != nil {
		t.Fatal(err)
	}
	if err := st.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	cred, err := st.Load()
	if err != nil || cred != nil {
		t.Errorf("after Clear: cred = %+v, err = %v, want nil, nil", cred, err)
	}
	// Clearing twice is fine.
	if err := st.Clear(); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
}

func TestRefreshSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("refresh method = %s, want POST", r.Method)
		}
		if r.ContentLength > 0 {
			t.Error("refresh carried a body, want cookie-only request")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"tok-new"}`))
	}))
	defer srv.Close()

	s := testSession(t, srv.URL+"/auth/refresh")
	if err := s.SetCredentials("tok-old", &User{ID: "u1"}); err != nil {
		t.Fatal(err)
	}

	tok, err := s.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if tok != "tok-new" {
		t.Errorf("Refresh() = %q, want tok-new", tok)
	}
	if s.Token() != "tok-new" {
		t.Errorf("Token() = %q, want tok-new (in-place replacement)", s.Token())
	}
}

func TestRefreshRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := testSession(t, srv.URL+"/auth/refresh")
	_, err := s.Refresh(context.Background())
	if !errors.Is(err, ErrRefreshRejected) {
		t.Errorf("Refresh() error = %v, want ErrRefreshRejected", err)
	}
}

func TestRefreshNetworkFailure(t *testing.T) {
	// Unroutable target: the network error is mapped to ErrRefreshRejected,
	// never propagated raw.
	s := testSession(t, "http://127.0.0.1:1/auth/refresh")
	_, err := s.Refresh(context.Background())
	if !errors.Is(err, ErrRefreshRejected) {
		t.Errorf("Refresh() error = %v, want ErrRefreshRejected", err)
	}
}

func TestRefreshSingleFlight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"token":"tok-shared"}`))
	}))
	defer srv.Close()

	s := testSession(t, srv.URL+"/auth/refresh")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := s.Refresh(context.Background())
			if err != nil || tok != "tok-shared" {
				t.Errorf("Refresh() = %q, %v", tok, err)
			}
		}()
	}

	// Let the goroutines pile up on the in-flight refresh.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("refresh endpoint called %d times, want 1", n)
	}
}

func TestClear(t *testing.T) {
	s := testSession(t, "http://example.invalid/auth/refresh")
	if err := s.SetCredentials("tok", &User{ID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if s.Token() != "" || s.User() != nil || s.Authenticated() {
		t.Error("session not empty after Clear")
	}
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}

	got, ok := TokenExpiry(tok)
	if !ok {
		t.Fatal("TokenExpiry() ok = false")
	}
	if !got.Equal(exp) {
		t.Errorf("TokenExpiry() = %v, want %v", got, exp)
	}

	if _, ok := TokenExpiry("not-a-jwt"); ok {
		t.Error("TokenExpiry(garbage) ok = true, want false")
	}
	if _, ok := TokenExpiry(""); ok {
		t.Error("TokenExpiry(empty) ok = true, want false")
	}
}

func TestExpiresWithin(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}

	s := testSession(t, "http://example.invalid/auth/refresh")
	if err := s.SetCredentials(tok, nil); err != nil {
		t.Fatal(err)
	}

	if !s.ExpiresWithin(5 * time.Minute) {
		t.Error("ExpiresWithin(5m) = false for token expiring in 1m")
	}
	if s.ExpiresWithin(10 * time.Second) {
		t.Error("ExpiresWithin(10s) = true for token expiring in 1m")
	}
}
