package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/MrEthical07/telecare/internal/wire"
)

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://x", "http://", "::"} {
		if _, err := New(raw, nil); !errors.Is(err, ErrBaseURL) {
			t.Fatalf("New(%q) err = %v, want ErrBaseURL", raw, err)
		}
	}
}

func TestURLJoinsPathAndQuery(t *testing.T) {
	c, err := New("https://api.example.com/v1/", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := c.URL("/consultations", url.Values{"page": {"2"}})
	if got != "https://api.example.com/v1/consultations?page=2" {
		t.Fatalf("URL = %q", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("missing content type")
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"echo":"` + in["name"] + `"}}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var out struct {
		Echo string `json:"echo"`
	}
	if err := c.JSON(context.Background(), http.MethodPost, "/echo", nil, map[string]string{"name": "ada"}, &out); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if out.Echo != "ada" {
		t.Fatalf("echo = %q", out.Echo)
	}
}

func TestJSONMapsStatusToAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"upstream down"}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, srv.Client())
	err := c.JSON(context.Background(), http.MethodGet, "/x", nil, nil, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadGateway || apiErr.Message != "upstream down" {
		t.Fatalf("unexpected %+v", apiErr)
	}
	if !errors.Is(err, ErrServer) {
		t.Fatalf("5xx should match ErrServer")
	}
}

func TestJSONParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[1,2`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, srv.Client())
	var out []int
	err := c.JSON(context.Background(), http.MethodGet, "/x", nil, nil, &out)
	var pe *wire.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestDoNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	c, _ := New(base, nil)
	if _, err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestWithHeaderAppliesToRequest(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	c, _ := New(srv.URL, srv.Client())
	ctx := WithHeader(context.Background(), "authorization", "Bearer setup")
	if _, err := c.Do(ctx, http.MethodGet, "/x", nil, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "Bearer setup" {
		t.Fatalf("authorization = %q", got)
	}
}

func TestDoRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), maxBodyBytes+1))
	}))
	defer srv.Close()

	c, err := New(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Do(context.Background(), http.MethodGet, "/big", nil, nil); !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("err = %v, want ErrResponseTooLarge", err)
	}
}

func TestDoAcceptsBodyAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), maxBodyBytes))
	}))
	defer srv.Close()

	c, err := New(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := c.Do(context.Background(), http.MethodGet, "/edge", nil, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(resp.Body) != maxBodyBytes {
		t.Fatalf("body length = %d, want %d", len(resp.Body), maxBodyBytes)
	}
}
