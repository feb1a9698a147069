// Package checklist supplies the rows to verify.
//
// The inventory desktop application that produces the checklist is driven
// elsewhere; the pipeline only sees the Feed capability: read the current
// row, advance to the next one.
package checklist

import (
	"context"
	"io"

	"github.com/hazyhaar/regcheck/document"
)

// Feed is a cursor over checklist rows in ordinal order.
type Feed interface {
	// Read returns the row under the cursor, or io.EOF past the last row.
	Read(ctx context.Context) (document.Record, error)
	// Advance moves the cursor to the next row.
	Advance(ctx context.Context) error
}

// SliceFeed serves records from memory.
type SliceFeed struct {
	records []document.Record
	pos     int
}

// NewSliceFeed returns a feed over records. Record indexes are reassigned
// to positions so they are unique and increasing.
func NewSliceFeed(records []document.Record) *SliceFeed {
	rs := make([]document.Record, len(records))
	copy(rs, records)
	for i := range rs {
		rs[i].Index = i
	}
	return &SliceFeed{records: rs}
}

func (f *SliceFeed) Read(ctx context.Context) (document.Record, error) {
	if err := ctx.Err(); err != nil {
		return document.Record{}, err
	}
	if f.pos >= len(f.records) {
		return document.Record{}, io.EOF
	}
	return f.records[f.pos], nil
}

func (f *SliceFeed) Advance(ctx context.Context) error {
	if f.pos < len(f.records) {
		f.pos++
	}
	return nil
}

// Len returns the total number of rows.
func (f *SliceFeed) Len() int { return len(f.records) }

// Rewind moves the cursor back to the first row.
func (f *SliceFeed) Rewind() { f.pos = 0 }
