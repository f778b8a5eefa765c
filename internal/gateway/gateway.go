// Package gateway is the single path every backend call takes. It resolves
// endpoints against the base URL, attaches headers and the bearer token,
// applies per-call timeouts and classifies failures.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultTimeout = 30 * time.Second
	LongTimeout    = 120 * time.Second
)

// Endpoints containing any of these get the long timeout.
var longOperations = []string{
	"generate_from_images",
	"upload_images",
	"generate_from_files",
	"upload_files",
}

// Authenticator supplies the bearer token and reacts to 401 responses.
type Authenticator interface {
	Token() string
	HandleUnauthorized()
}

// Config configures a Client. Zero durations take the defaults.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	LongTimeout time.Duration
	HTTPClient  *http.Client
}

// Client is safe for concurrent use.
type Client struct {
	baseURL     string
	http        *http.Client
	auth        Authenticator
	timeout     time.Duration
	longTimeout time.Duration
}

// New creates a gateway client. auth may be nil for anonymous use.
func New(cfg Config, auth Authenticator) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		http:        cfg.HTTPClient,
		auth:        auth,
		timeout:     cfg.Timeout,
		longTimeout: cfg.LongTimeout,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.longTimeout <= 0 {
		c.longTimeout = LongTimeout
	}
	return c, nil
}

// Multipart is a pre-encoded multipart body and its boundary-bearing content type.
type Multipart struct {
	Body        io.Reader
	ContentType string
}

// Request describes one call. At most one of JSON and Multipart is set.
type Request struct {
	Method    string
	Endpoint  string
	JSON      any
	Multipart *Multipart
	Header    http.Header
}

// TimeoutFor returns the per-call timeout for endpoint.
func (c *Client) TimeoutFor(endpoint string) time.Duration {
	for _, op := range longOperations {
		if strings.Contains(endpoint, op) {
			return c.longTimeout
		}
	}
	return c.timeout
}

// URL resolves endpoint against the base URL.
func (c *Client) URL(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.baseURL + endpoint
}

// Do performs the request. A JSON response is decoded into out (or discarded
// when out is nil) and the returned response has an empty body. Any other
// successful response is returned with its body open; the caller must close it.
func (c *Client) Do(ctx context.Context, r Request, out any) (*http.Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	switch {
	case r.Multipart != nil:
		body = r.Multipart.Body
	case r.JSON != nil:
		data, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.TimeoutFor(r.Endpoint))

	req, err := http.NewRequestWithContext(callCtx, method, c.URL(r.Endpoint), body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req, r)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		err = classify(ctx, callCtx, err)
		slog.Warn("api request failed", "method", method, "endpoint", r.Endpoint, "error", err)
		return nil, err
	}
	slog.Debug("api request",
		"method", method,
		"endpoint", r.Endpoint,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		msg := errorMessage(resp)
		resp.Body.Close()
		cancel()
		if c.auth != nil {
			c.auth.HandleUnauthorized()
		}
		if msg == "" {
			msg = "Unauthorized"
		}
		return resp, &HTTPError{StatusCode: resp.StatusCode, Message: msg}
	}

	if resp.StatusCode/100 != 2 {
		msg := errorMessage(resp)
		resp.Body.Close()
		cancel()
		if msg == "" {
			msg = statusMessage(resp.StatusCode)
		}
		slog.Warn("api request rejected", "endpoint", r.Endpoint, "status", resp.StatusCode, "message", msg)
		return resp, &HTTPError{StatusCode: resp.StatusCode, Message: msg}
	}

	if !isJSON(resp) {
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}

	defer cancel()
	defer resp.Body.Close()
	if out == nil {
		_, err = io.Copy(io.Discard, resp.Body)
	} else {
		err = json.NewDecoder(resp.Body).Decode(out)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	}
	if err != nil {
		if callCtx.Err() != nil {
			return resp, classify(ctx, callCtx, err)
		}
		return resp, fmt.Errorf("decode %s response: %w", r.Endpoint, err)
	}
	resp.Body = http.NoBody
	return resp, nil
}

// Get issues a GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, endpoint string, out any) error {
	_, err := c.Do(ctx, Request{Method: http.MethodGet, Endpoint: endpoint}, out)
	return err
}

// Post issues a POST with a JSON body and decodes the JSON response into out.
func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	_, err := c.Do(ctx, Request{Method: http.MethodPost, Endpoint: endpoint, JSON: body}, out)
	return err
}

// Delete issues a DELETE and decodes the JSON response into out.
func (c *Client) Delete(ctx context.Context, endpoint string, out any) error {
	_, err := c.Do(ctx, Request{Method: http.MethodDelete, Endpoint: endpoint}, out)
	return err
}

func (c *Client) setHeaders(req *http.Request, r Request) {
	if r.Multipart == nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
	}
	for k, vs := range r.Header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.Multipart != nil {
		req.Header.Set("Content-Type", r.Multipart.ContentType)
	}
	if c.auth != nil {
		if token := c.auth.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// classify maps a transport error to the gateway taxonomy. Cancellation or
// expiry of the caller's own context is returned as the context error.
func classify(parent, call context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return &NetworkError{Err: err}
}

func isJSON(resp *http.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "application/json")
}

// errorMessage extracts msg or message from a JSON error body.
func errorMessage(resp *http.Response) string {
	if !isJSON(resp) {
		return ""
	}
	var body struct {
		Msg     string `json:"msg"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ""
	}
	if body.Msg != "" {
		return body.Msg
	}
	return body.Message
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
