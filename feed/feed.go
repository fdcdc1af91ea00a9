// Package feed provides a sample data source for the polling integration.
//
// It simulates an upstream feedback platform with its own record type,
// [Verbatim], and a pagination API that filters by timestamp - the shape
// many survey and ticketing platforms expose. [ToComment] is the reference
// conversion mapping; real integrations define their own.
package feed

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	reinfer "github.com/reinfer/sync-go"
)

// Verbatim is one raw feedback record as the upstream platform stores it.
type Verbatim struct {
	// ID is the platform's own opaque record identifier.
	ID string

	// Text is the free-form feedback text.
	Text string

	// NPS is the net promoter score the respondent gave, 0-10.
	NPS int

	// Timestamp is when the feedback was collected.
	Timestamp time.Time

	// Username identifies the respondent on the platform.
	Username string
}

// ToComment maps a feed [Verbatim] onto a sync API comment.
//
// The upstream ID is hex-encoded to satisfy the backend's identifier
// format; since the encoding is stable, re-syncing the same verbatim is
// idempotent. The NPS score and username travel as user properties.
func ToComment(v Verbatim) (reinfer.Comment, error) {
	return reinfer.Comment{
		ID:        hex.EncodeToString([]byte(v.ID)),
		Timestamp: v.Timestamp,
		Verbatim:  v.Text,
		UserProperties: []reinfer.Property{
			reinfer.NumberProperty{Name: "NPS", Value: float64(v.NPS)},
			reinfer.StringProperty{Name: "Username", Value: v.Username},
		},
	}, nil
}

// defaultPageSize matches the page size a typical upstream API serves.
const defaultPageSize = 40

// Fake is an in-memory data source with deterministic, timestamp-filtered
// pagination, ordered ascending by timestamp.
//
// Fake exists so the daemon and the demo can run without a real upstream;
// it also documents the contract a real data source must honour: pages are
// stable for a given (since, pageIndex) pair.
type Fake struct {
	pageSize  int
	verbatims []Verbatim
}

var _ reinfer.DataSource[Verbatim] = (*Fake)(nil)

// NewFake creates a [Fake] serving the given verbatims in pages of
// pageSize. A non-positive pageSize falls back to the default of 40.
func NewFake(verbatims []Verbatim, pageSize int) *Fake {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	sorted := make([]Verbatim, len(verbatims))
	copy(sorted, verbatims)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return &Fake{pageSize: pageSize, verbatims: sorted}
}

// NewerThan returns one page of verbatims with timestamps at or after
// since, in timestamp order.
func (f *Fake) NewerThan(ctx context.Context, since time.Time, pageIndex int) ([]Verbatim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	skip := pageIndex * f.pageSize
	page := make([]Verbatim, 0, f.pageSize)
	for _, v := range f.verbatims {
		if v.Timestamp.Before(since) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		page = append(page, v)
		if len(page) == f.pageSize {
			break
		}
	}
	return page, nil
}

// Generate produces n fake verbatims timestamped at now, half positive and
// half negative, with unique upstream IDs.
func Generate(n int, now time.Time) []Verbatim {
	verbatims := make([]Verbatim, 0, n)
	for i := 0; i < n; i++ {
		text := fmt.Sprintf("Yay, I love this company %d!", i)
		if i%2 == 1 {
			text = fmt.Sprintf("Boo, I hate this company %d!", i)
		}
		verbatims = append(verbatims, Verbatim{
			ID:        uuid.NewString(),
			Text:      text,
			NPS:       i % 11,
			Timestamp: now,
			Username:  fmt.Sprintf("user%d", i),
		})
	}
	return verbatims
}
