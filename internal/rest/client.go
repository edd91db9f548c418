// Package rest implements the authenticated HTTP client for the Swappio
// API. Every call site goes through Client, which attaches the bearer
// token, detects expiry, performs one silent refresh, and retries the
// original request exactly once. 401 handling lives here and nowhere else.
package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nmanikumar5/swappio/internal/auth"
	"go.uber.org/zap"
)

// Client performs HTTP calls against the backend API with transparent
// bearer-token expiry handling.
type Client struct {
	base    *url.URL
	http    *http.Client
	session *auth.Session
	logger  *zap.Logger
}

// New creates a client rooted at baseURL. The http.Client should carry a
// cookie jar shared with the auth session so the refresh cookie flows on
// every request.
func New(baseURL string, httpClient *http.Client, session *auth.Session, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &Client{
		base:    u,
		http:    httpClient,
		session: session,
		logger:  logger,
	}, nil
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Do issues a request against the API. If the response is 401, the client
// refreshes the access token once and re-issues the request with the new
// token; the retried call is never allowed to trigger a second refresh.
//
// If the refresh itself fails while the original call was authenticated
// (it carried an Authorization header, or a token is still stored), all
// local credentials are cleared: the session is gone server-side and
// keeping a dead token only produces repeated 401s. An anonymous call
// hitting 401 must NOT log the user out, there was no session to lose.
//
// The caller always receives either a response (original or retried) or
// the transport error from the first attempt.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body []byte, contentType string) (*http.Response, error) {
	return c.do(ctx, method, path, query, body, contentType, true)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, contentType string, allowRetry bool) (*http.Response, error) {
	req, hadAuth, err := c.newRequest(ctx, method, path, query, body, contentType)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !allowRetry {
		return resp, nil
	}

	if _, refreshErr := c.session.Refresh(ctx); refreshErr != nil {
		if hadAuth || c.session.Authenticated() {
			c.logger.Info("refresh failed on authenticated call, clearing credentials",
				zap.String("method", method), zap.String("path", path))
			if clearErr := c.session.Clear(); clearErr != nil {
				c.logger.Warn("failed to clear credentials", zap.Error(clearErr))
			}
		}
		// Hand back the original 401 untouched.
		return resp, nil
	}

	// Refresh succeeded: consume the 401 and re-issue with the new token.
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	c.logger.Info("retrying after token refresh",
		zap.String("method", method), zap.String("path", path))
	return c.do(ctx, method, path, query, body, contentType, false)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body []byte, contentType string) (*http.Request, bool, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	hadAuth := false
	if tok := c.session.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
		hadAuth = true
	}
	return req, hadAuth, nil
}
