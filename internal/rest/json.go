package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// APIError is a non-2xx response from the API, with the body captured for
// diagnostics. Non-401 error statuses always surface as APIError, the
// client never swallows them.
type APIError struct {
	Status int
	Method string
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// GetJSON issues a GET and decodes the JSON response into out (skipped if
// out is nil).
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, query, nil, "")
	if err != nil {
		return err
	}
	return decode(resp, http.MethodGet, path, out)
}

// PostJSON issues a POST with a JSON body and decodes the response.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPost, path, in, out)
}

// PutJSON issues a PUT with a JSON body and decodes the response.
func (c *Client) PutJSON(ctx context.Context, path string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPut, path, in, out)
}

// DeleteJSON issues a DELETE and decodes the response.
func (c *Client) DeleteJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Do(ctx, http.MethodDelete, path, nil, nil, "")
	if err != nil {
		return err
	}
	return decode(resp, http.MethodDelete, path, out)
}

// PostMultipart issues a multipart POST, used for image uploads. The
// build callback writes the form parts.
func (c *Client) PostMultipart(ctx context.Context, path string, build func(*multipart.Writer) error, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := build(w); err != nil {
		return fmt.Errorf("build multipart form: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart form: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, path, nil, buf.Bytes(), w.FormDataContentType())
	if err != nil {
		return err
	}
	return decode(resp, http.MethodPost, path, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}
	resp, err := c.Do(ctx, method, path, nil, body, "application/json")
	if err != nil {
		return err
	}
	return decode(resp, method, path, out)
}

func decode(resp *http.Response, method, path string, out any) error {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			Status: resp.StatusCode,
			Method: method,
			Path:   path,
			Body:   string(bytes.TrimSpace(body)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
