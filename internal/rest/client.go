package rest

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

	"github.com/MrEthical07/telecare/internal/wire"
)

const maxBodyBytes = 4 << 20

var (
	// ErrNetwork marks failures that never produced an HTTP response.
	ErrNetwork = errors.New("network error")
	// ErrServer matches any *APIError with a 5xx status.
	ErrServer = errors.New("server error")
	// ErrValidation is returned by callers before any I/O when input is
	// incomplete.
	ErrValidation = errors.New("validation failed")
	// ErrBaseURL reports an unusable base URL.
	ErrBaseURL = errors.New("invalid base url")
	// ErrResponseTooLarge reports a body over maxBodyBytes.
	ErrResponseTooLarge = errors.New("response too large")
)

// APIError is a non-2xx response. Message is the backend's message when it
// supplied one.
type APIError struct {
	Status   int
	Message  string
	Endpoint string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %d %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %d %s", e.Endpoint, e.Status, http.StatusText(e.Status))
}

func (e *APIError) Is(target error) bool {
	return target == ErrServer && e.Status >= 500
}

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Client issues JSON requests against a fixed base URL.
type Client struct {
	base *url.URL
	http *http.Client
}

func New(baseURL string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrBaseURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrBaseURL)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: u, http: hc}, nil
}

// HTTP returns the underlying client.
func (c *Client) HTTP() *http.Client {
	return c.http
}

// URL resolves path and query against the base URL.
func (c *Client) URL(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// Do sends a request with an optional JSON body and returns the response
// regardless of status. Only transport failures are returned as errors.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in any) (*Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, query), body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headersFrom(ctx) {
		req.Header.Set(k, v)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Join(fmt.Errorf("%w: %v", ErrNetwork, err), ctxErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s body: %v", ErrNetwork, path, err)
	}
	if len(data) > maxBodyBytes {
		return nil, fmt.Errorf("%w: %s body exceeds %d bytes", ErrResponseTooLarge, path, maxBodyBytes)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// JSON sends a request and decodes a 2xx body into out (which may be nil).
// Non-2xx statuses become *APIError.
func (c *Client) JSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	resp, err := c.Do(ctx, method, path, query, in)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return resp.Err(endpointName(method, path))
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := Decode(endpointName(method, path), resp.Body, out); err != nil {
		return err
	}
	return nil
}

// Err converts a non-2xx response to *APIError.
func (r *Response) Err(endpoint string) *APIError {
	return &APIError{Status: r.Status, Message: wire.DecodeError(r.Body), Endpoint: endpoint}
}

// Decode unmarshals body into out, unwrapping a {"data": ...} envelope when
// present.
func Decode(endpoint string, body []byte, out any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &envelope); err == nil && len(envelope.Data) > 0 && !bytes.Equal(envelope.Data, []byte("null")) {
			trimmed = envelope.Data
		}
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return &wire.ParseError{Endpoint: endpoint, Reason: "invalid body", Err: err}
	}
	return nil
}

type headerKey struct{}

// WithHeader returns a context whose requests carry key: value. Headers set
// this way override the defaults.
func WithHeader(ctx context.Context, key, value string) context.Context {
	prev := headersFrom(ctx)
	next := make(map[string]string, len(prev)+1)
	for k, v := range prev {
		next[k] = v
	}
	next[http.CanonicalHeaderKey(key)] = value
	return context.WithValue(ctx, headerKey{}, next)
}

func headersFrom(ctx context.Context) map[string]string {
	h, _ := ctx.Value(headerKey{}).(map[string]string)
	return h
}

func endpointName(method, path string) string {
	return method + " " + path
}
