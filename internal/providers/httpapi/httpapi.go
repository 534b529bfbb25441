package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Error is returned for any non-2xx provider response.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Reason labels the error for job metrics.
func (e *Error) Reason() string {
	return "provider_" + e.Provider
}

// IsStatus reports whether err is a provider Error with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Client issues JSON requests against one provider API.
type Client struct {
	Provider string
	BaseURL  string
	HTTP     *http.Client
	// ErrorMessage extracts a message from an error body. When nil or when
	// it returns "", the raw body is used.
	ErrorMessage func(body []byte) string
}

func New(provider, baseURL string) *Client {
	return &Client{
		Provider: provider,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTP:     &http.Client{Timeout: defaultTimeout},
	}
}

// Request describes one call. Token is sent as a bearer credential. Form,
// when set, is sent url-encoded and takes precedence over Body.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Token  string
	Body   any
	Form   url.Values
	Out    any
}

func (c *Client) Do(ctx context.Context, r Request) error {
	target := c.BaseURL + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case r.Form != nil:
		body = strings.NewReader(r.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case r.Body != nil:
		raw, err := json.Marshal(r.Body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.Provider, err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return err
	}
	for key, values := range r.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", c.Provider, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		message := ""
		if c.ErrorMessage != nil {
			message = c.ErrorMessage(raw)
		}
		if message == "" {
			message = strings.TrimSpace(string(raw))
		}
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &Error{Provider: c.Provider, StatusCode: resp.StatusCode, Message: message}
	}

	if r.Out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, r.Out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.Provider, err)
	}
	return nil
}
