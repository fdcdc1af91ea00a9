package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// storedComment is a comment as the mock backend keeps it.
type storedComment struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	OriginalText   string         `json:"original_text"`
	UserProperties map[string]any `json:"user_properties"`
}

// mockBackend is an in-memory stand-in for the sync API. It implements the
// /datasets/{owner}/{name}/sync and /recent routes with idempotent
// overwrite-by-ID semantics, and fails a fraction of sync requests with 503
// so the client's retry policy is visible in the demo logs.
type mockBackend struct {
	mu        sync.Mutex
	datasets  map[string]map[string]storedComment // dataset -> comment ID -> comment
	flakiness float64
}

// StartMockBackend runs a mock sync API under /api/voc on addr.
// flakiness is the fraction of sync requests answered with 503.
// Call this in a goroutine before creating the client.
func StartMockBackend(addr string, flakiness float64) {
	b := &mockBackend{
		datasets:  make(map[string]map[string]storedComment),
		flakiness: flakiness,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/voc/datasets/", b.handle)

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock backend error", "error", err)
	}
}

// handle routes /api/voc/datasets/{owner}/{name}/{op}.
func (b *mockBackend) handle(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Auth-Token") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Missing auth token."})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/voc/datasets/")
	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "No such route."})
		return
	}
	dataset := parts[0] + "/" + parts[1]

	switch parts[2] {
	case "sync":
		b.handleSync(w, r, dataset)
	case "recent":
		b.handleRecent(w, r, dataset)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "No such route."})
	}
}

func (b *mockBackend) handleSync(w http.ResponseWriter, r *http.Request, dataset string) {
	if rand.Float64() < b.flakiness {
		slog.Info("mock backend flaking", "dataset", dataset)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "Temporarily unavailable."})
		return
	}

	var body struct {
		Comments []storedComment `json:"comments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Malformed request body."})
		return
	}

	b.mu.Lock()
	comments, ok := b.datasets[dataset]
	if !ok {
		comments = make(map[string]storedComment)
		b.datasets[dataset] = comments
	}
	for _, c := range body.Comments {
		comments[c.ID] = c // idempotent overwrite by ID
	}
	total := len(comments)
	b.mu.Unlock()

	slog.Info("mock backend synced", "dataset", dataset, "batch", len(body.Comments), "total", total)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (b *mockBackend) handleRecent(w http.ResponseWriter, r *http.Request, dataset string) {
	var body struct {
		Limit  int `json:"limit"`
		Filter struct {
			UserProperties map[string]struct {
				OneOf []string `json:"one_of"`
			} `json:"user_properties"`
		} `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Malformed request body."})
		return
	}

	var sources []string
	if f, ok := body.Filter.UserProperties["string:Source"]; ok {
		sources = f.OneOf
	}

	b.mu.Lock()
	var newest []storedComment
	for _, c := range b.datasets[dataset] {
		if !matchesSource(c, sources) {
			continue
		}
		newest = append(newest, c)
	}
	b.mu.Unlock()

	// keep only the single most recent comment (limit is always 1 here)
	var result []storedComment
	for _, c := range newest {
		if len(result) == 0 || c.Timestamp.After(result[0].Timestamp) {
			result = []storedComment{c}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"comments": result})
}

// matchesSource reports whether the comment's string:Source property is in
// the filter set. An empty filter matches everything.
func matchesSource(c storedComment, sources []string) bool {
	if len(sources) == 0 {
		return true
	}
	got, _ := c.UserProperties["string:Source"].(string)
	for _, s := range sources {
		if got == s {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
