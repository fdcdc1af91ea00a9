package reinfer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fastRetry keeps tests quick while preserving the attempt count.
func fastRetry() RetryPolicy {
	p := DefaultRetryPolicy()
	p.InitialBackoff = time.Millisecond
	return p
}

func newTestClient(t *testing.T, url string, opts ...ClientOption) *Client {
	t.Helper()
	opts = append([]ClientOption{
		WithBaseURL(url),
		WithRetryPolicy(fastRetry()),
	}, opts...)
	client, err := NewClient("test-token", opts...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func testComment(id string) Comment {
	return Comment{
		ID:        id,
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Verbatim:  "Great service!",
		UserProperties: []Property{
			NumberProperty{Name: "NPS", Value: 8},
			StringProperty{Name: "Username", Value: "user1"},
		},
	}
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(""); err == nil {
		t.Error("NewClient(\"\") error = nil, want error")
	}
	if _, err := NewClient("t", WithBaseURL("ftp://example.com")); err == nil {
		t.Error("NewClient(WithBaseURL(ftp)) error = nil, want error")
	}
	if _, err := NewClient("t", WithLogger(nil)); err == nil {
		t.Error("NewClient(WithLogger(nil)) error = nil, want error")
	}
	if _, err := NewClient("t", WithRetryPolicy(RetryPolicy{MaxAttempts: 0})); err == nil {
		t.Error("NewClient(zero-attempt retry) error = nil, want error")
	}
}

func TestSync_SendsExpectedRequest(t *testing.T) {
	var (
		gotPath  string
		gotToken string
		gotType  string
		gotBody  []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Auth-Token")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.Sync(context.Background(), "acme/emails", "Zendesk", []Comment{testComment("ab01")})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if gotPath != "/datasets/acme/emails/sync" {
		t.Errorf("path = %q, want /datasets/acme/emails/sync", gotPath)
	}
	if gotToken != "test-token" {
		t.Errorf("X-Auth-Token = %q, want test-token", gotToken)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotType)
	}
	var payload struct {
		Comments []struct {
			ID             string         `json:"id"`
			Timestamp      string         `json:"timestamp"`
			OriginalText   string         `json:"original_text"`
			UserProperties map[string]any `json:"user_properties"`
		} `json:"comments"`
	}
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("request body is not valid JSON: %v\n%s", err, gotBody)
	}
	if len(payload.Comments) != 1 {
		t.Fatalf("len(comments) = %d, want 1", len(payload.Comments))
	}
	c := payload.Comments[0]
	if c.ID != "ab01" {
		t.Errorf("id = %q, want ab01", c.ID)
	}
	if c.OriginalText != "Great service!" {
		t.Errorf("original_text = %q", c.OriginalText)
	}
	if c.UserProperties["string:Source"] != "Zendesk" {
		t.Errorf("string:Source = %v, want Zendesk", c.UserProperties["string:Source"])
	}
	if c.UserProperties["number:NPS"] != float64(8) {
		t.Errorf("number:NPS = %v, want 8", c.UserProperties["number:NPS"])
	}
}

// A reserved property name must fail before any network call is made.
func TestSync_ValidationBeforeNetwork(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	comment := testComment("ab01")
	comment.UserProperties = append(comment.UserProperties, StringProperty{Name: "title", Value: "x"})

	err := client.Sync(context.Background(), "acme/emails", "Zendesk", []Comment{comment})
	if !IsKind(err, KindValidation) {
		t.Fatalf("Sync() error = %v, want KindValidation", err)
	}
	if n := requests.Load(); n != 0 {
		t.Errorf("server saw %d requests, want 0", n)
	}
}

func TestSync_StatusCodeMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
		wantMsg  string
	}{
		{"bad request", http.StatusBadRequest, `{"message":"Comment id must be hex."}`, KindValidation, "Comment id must be hex."},
		{"not found", http.StatusNotFound, `{"message":"No such dataset."}`, KindNoSuchDataset, "No such dataset."},
		{"rate limited", http.StatusTooManyRequests, `{"message":"Too fast."}`, KindRateLimited, "Too fast."},
		{"server error", http.StatusInternalServerError, `{"message":"Oops."}`, KindBackend, "Oops."},
		{"teapot", http.StatusTeapot, `{"message":"I'm a teapot."}`, KindBackend, "I'm a teapot."},
		{"no message field", http.StatusNotFound, `{}`, KindNoSuchDataset, "(no description available)"},
		{"unparseable error body", http.StatusConflict, `<html>`, KindBackend, ""},
		{"unparseable ok body", http.StatusOK, `<html>`, KindBackend, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			err := client.Sync(context.Background(), "acme/emails", "Zendesk", []Comment{testComment("ab01")})
			if !IsKind(err, tt.wantKind) {
				t.Fatalf("Sync() error = %v, want kind %v", err, tt.wantKind)
			}
			if tt.wantMsg != "" {
				var apiErr *Error
				if !errors.As(err, &apiErr) || apiErr.Message != tt.wantMsg {
					t.Errorf("message = %v, want %q", err, tt.wantMsg)
				}
			}
		})
	}
}

func TestSync_ConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close() // nothing is listening any more

	client := newTestClient(t, url)
	err := client.Sync(context.Background(), "acme/emails", "Zendesk", []Comment{testComment("ab01")})
	if !IsKind(err, KindConnection) {
		t.Fatalf("Sync() error = %v, want KindConnection", err)
	}
}

// Two 503 responses followed by a 200 must succeed with no error surfaced.
func TestSync_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"message":"Temporarily unavailable."}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.Sync(context.Background(), "acme/emails", "Zendesk", []Comment{testComment("ab01")})
	if err != nil {
		t.Fatalf("Sync() error = %v, want nil", err)
	}
	if n := attempts.Load(); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

// When retries are exhausted the final status flows into the normal error
// mapping: persistent 429 surfaces as rate limited, not generic backend.
func TestSync_RetryExhaustion(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"Too fast."}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.Sync(context.Background(), "acme/emails", "Zendesk", []Comment{testComment("ab01")})
	if !IsKind(err, KindRateLimited) {
		t.Fatalf("Sync() error = %v, want KindRateLimited", err)
	}
	if n := attempts.Load(); n != 5 {
		t.Errorf("attempts = %d, want 5", n)
	}
}

// 400 is not in the retryable set: the request must not be repeated.
func TestSync_NoRetryOnValidation(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Bad comment."}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.Sync(context.Background(), "acme/emails", "Zendesk", []Comment{testComment("ab01")})
	if !IsKind(err, KindValidation) {
		t.Fatalf("Sync() error = %v, want KindValidation", err)
	}
	if n := attempts.Load(); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestMostRecent(t *testing.T) {
	ts := time.Date(2024, 5, 20, 8, 15, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/datasets/acme/emails/recent" {
			t.Errorf("path = %q, want /datasets/acme/emails/recent", r.URL.Path)
		}

		var payload struct {
			Limit  int `json:"limit"`
			Filter struct {
				UserProperties map[string]struct {
					OneOf []string `json:"one_of"`
				} `json:"user_properties"`
			} `json:"filter"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decoding query: %v", err)
		}
		if payload.Limit != 1 {
			t.Errorf("limit = %d, want 1", payload.Limit)
		}
		filter := payload.Filter.UserProperties["string:Source"]
		if len(filter.OneOf) != 1 || filter.OneOf[0] != "Zendesk" {
			t.Errorf("source filter = %v, want [Zendesk]", filter.OneOf)
		}

		_, _ = w.Write([]byte(`{"comments":[{"id":"ff02","timestamp":"2024-05-20T08:15:00Z"}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	id, got, err := client.MostRecent(context.Background(), "acme/emails", "Zendesk")
	if err != nil {
		t.Fatalf("MostRecent() error = %v", err)
	}
	if id != "ff02" {
		t.Errorf("id = %q, want ff02", id)
	}
	if !got.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", got, ts)
	}
}

// An empty dataset must surface as the empty-dataset condition, never a
// generic backend error.
func TestMostRecent_EmptyDataset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"comments":[]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, _, err := client.MostRecent(context.Background(), "acme/emails", "Zendesk")
	if !IsKind(err, KindEmptyDataset) {
		t.Fatalf("MostRecent() error = %v, want KindEmptyDataset", err)
	}
}

func TestMostRecent_NoSuchDataset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"No such dataset."}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, _, err := client.MostRecent(context.Background(), "acme/missing", "Zendesk")
	if !IsKind(err, KindNoSuchDataset) {
		t.Fatalf("MostRecent() error = %v, want KindNoSuchDataset", err)
	}
}
