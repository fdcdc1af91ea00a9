package feed

import (
	"context"
	"testing"
	"time"

	reinfer "github.com/reinfer/sync-go"
)

func TestToComment(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	comment, err := ToComment(Verbatim{
		ID:        "rec-42",
		Text:      "great product",
		NPS:       9,
		Timestamp: ts,
		Username:  "alice",
	})
	if err != nil {
		t.Fatalf("ToComment() error = %v", err)
	}

	// hex of "rec-42"
	if comment.ID != "7265632d3432" {
		t.Errorf("ID = %q, want hex-encoded upstream ID", comment.ID)
	}
	if comment.Verbatim != "great product" {
		t.Errorf("Verbatim = %q", comment.Verbatim)
	}
	if !comment.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", comment.Timestamp, ts)
	}

	if len(comment.UserProperties) != 2 {
		t.Fatalf("UserProperties = %d entries, want 2", len(comment.UserProperties))
	}
	nps, ok := comment.UserProperties[0].(reinfer.NumberProperty)
	if !ok || nps.Name != "NPS" || nps.Value != 9 {
		t.Errorf("property 0 = %+v, want NumberProperty NPS=9", comment.UserProperties[0])
	}
	user, ok := comment.UserProperties[1].(reinfer.StringProperty)
	if !ok || user.Name != "Username" || user.Value != "alice" {
		t.Errorf("property 1 = %+v, want StringProperty Username=alice", comment.UserProperties[1])
	}
}

// The hex encoding is stable, so the same verbatim always produces the same
// comment ID.
func TestToComment_IdempotentID(t *testing.T) {
	v := Verbatim{ID: "rec-1", Timestamp: time.Now()}
	first, _ := ToComment(v)
	second, _ := ToComment(v)
	if first.ID != second.ID {
		t.Errorf("IDs differ across conversions: %q vs %q", first.ID, second.ID)
	}
}

func testVerbatims(base time.Time) []Verbatim {
	// deliberately unsorted input
	return []Verbatim{
		{ID: "c", Timestamp: base.Add(2 * time.Minute)},
		{ID: "a", Timestamp: base},
		{ID: "e", Timestamp: base.Add(4 * time.Minute)},
		{ID: "b", Timestamp: base.Add(time.Minute)},
		{ID: "d", Timestamp: base.Add(3 * time.Minute)},
	}
}

func TestFake_SortsByTimestamp(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	fake := NewFake(testVerbatims(base), 10)

	page, err := fake.NewerThan(context.Background(), base, 0)
	if err != nil {
		t.Fatalf("NewerThan() error = %v", err)
	}
	want := []string{"a", "b", "c", "d", "e"}
	if len(page) != len(want) {
		t.Fatalf("page length = %d, want %d", len(page), len(want))
	}
	for i, id := range want {
		if page[i].ID != id {
			t.Errorf("page[%d].ID = %q, want %q", i, page[i].ID, id)
		}
	}
}

// The timestamp filter is inclusive: a record exactly at since is returned.
func TestFake_FilterIsInclusive(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	fake := NewFake(testVerbatims(base), 10)

	page, err := fake.NewerThan(context.Background(), base.Add(2*time.Minute), 0)
	if err != nil {
		t.Fatalf("NewerThan() error = %v", err)
	}
	if len(page) != 3 || page[0].ID != "c" {
		t.Errorf("page = %d records starting %q, want 3 starting c", len(page), page[0].ID)
	}
}

// Pages are deterministic for a given (since, pageIndex) pair.
func TestFake_Pagination(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	fake := NewFake(testVerbatims(base), 2)

	wantPages := [][]string{{"a", "b"}, {"c", "d"}, {"e"}, {}}
	for pageIndex, wantIDs := range wantPages {
		page, err := fake.NewerThan(context.Background(), base, pageIndex)
		if err != nil {
			t.Fatalf("page %d: NewerThan() error = %v", pageIndex, err)
		}
		if len(page) != len(wantIDs) {
			t.Fatalf("page %d length = %d, want %d", pageIndex, len(page), len(wantIDs))
		}
		for i, id := range wantIDs {
			if page[i].ID != id {
				t.Errorf("page %d[%d].ID = %q, want %q", pageIndex, i, page[i].ID, id)
			}
		}
	}

	// re-fetching the same page yields the same records
	again, _ := fake.NewerThan(context.Background(), base, 1)
	if len(again) != 2 || again[0].ID != "c" || again[1].ID != "d" {
		t.Errorf("re-fetched page 1 = %+v, want [c d]", again)
	}
}

func TestFake_CancelledContext(t *testing.T) {
	fake := NewFake(nil, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := fake.NewerThan(ctx, time.Time{}, 0); err == nil {
		t.Fatal("NewerThan() error = nil, want context error")
	}
}

func TestGenerate(t *testing.T) {
	now := time.Now()
	verbatims := Generate(10, now)
	if len(verbatims) != 10 {
		t.Fatalf("Generate(10) produced %d verbatims", len(verbatims))
	}

	seen := make(map[string]bool)
	for i, v := range verbatims {
		if seen[v.ID] {
			t.Errorf("duplicate ID %q", v.ID)
		}
		seen[v.ID] = true
		if !v.Timestamp.Equal(now) {
			t.Errorf("verbatim %d timestamp = %v, want %v", i, v.Timestamp, now)
		}
		if v.NPS < 0 || v.NPS > 10 {
			t.Errorf("verbatim %d NPS = %d, want 0-10", i, v.NPS)
		}
	}
}
