// Standalone mock backend for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockbackend
//
// Then in another terminal:
//
//	go run ./cmd/reinfer-sync run --auth-token demo \
//	    --dataset-name acme/demo --source-name DemoFeed \
//	    --api-url http://localhost:9998/api/voc
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

func main() {
	fmt.Println("Mock sync backend starting on :9998")
	fmt.Println("Routes: POST /api/voc/datasets/{owner}/{name}/sync and .../recent")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		mu       sync.Mutex
		datasets = make(map[string]map[string]comment)
	)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/voc/datasets/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/voc/datasets/"), "/")
		if len(parts) != 3 {
			respond(w, http.StatusNotFound, map[string]string{"message": "No such route."})
			return
		}
		dataset := parts[0] + "/" + parts[1]

		switch parts[2] {
		case "sync":
			var body struct {
				Comments []comment `json:"comments"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				respond(w, http.StatusBadRequest, map[string]string{"message": "Malformed request body."})
				return
			}
			mu.Lock()
			if datasets[dataset] == nil {
				datasets[dataset] = make(map[string]comment)
			}
			for _, c := range body.Comments {
				datasets[dataset][c.ID] = c
			}
			total := len(datasets[dataset])
			mu.Unlock()
			slog.Info("synced", "dataset", dataset, "batch", len(body.Comments), "total", total)
			respond(w, http.StatusOK, map[string]string{"status": "ok"})

		case "recent":
			mu.Lock()
			var newest []comment
			for _, c := range datasets[dataset] {
				if len(newest) == 0 || c.Timestamp.After(newest[0].Timestamp) {
					newest = []comment{c}
				}
			}
			mu.Unlock()
			respond(w, http.StatusOK, map[string]any{"comments": newest})

		default:
			respond(w, http.StatusNotFound, map[string]string{"message": "No such route."})
		}
	})

	if err := http.ListenAndServe(":9998", mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

type comment struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	OriginalText   string         `json:"original_text"`
	UserProperties map[string]any `json:"user_properties"`
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
