// Package data coordinates asynchronous loading of items into a sparse store.
package data

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/charmbracelet/vlist/internal/virtual/viewport"
)

// ReadRequest asks an adapter for a page of items.
type ReadRequest struct {
	Offset int
	Limit  int
	// Cursor is the last cursor returned by the adapter, if any.
	Cursor string
}

// ReadResult is a page of items plus what the adapter knows about the whole
// collection.
type ReadResult[T any] struct {
	Items   []T
	Total   int
	HasMore bool
	Cursor  string
}

// Adapter reads pages of items. It must accept any chunk aligned offset and
// limit, and give up when ctx is cancelled.
type Adapter[T any] interface {
	Read(ctx context.Context, req ReadRequest) (ReadResult[T], error)
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc[T any] func(ctx context.Context, req ReadRequest) (ReadResult[T], error)

func (f AdapterFunc[T]) Read(ctx context.Context, req ReadRequest) (ReadResult[T], error) {
	return f(ctx, req)
}

// Record is a loosely typed row, as produced by the bundled adapters.
type Record struct {
	Index  int               `json:"index"`
	Fields map[string]string `json:"fields"`
}

// Keys returns the field names in a stable order.
func (r Record) Keys() []string {
	return slices.Sorted(maps.Keys(r.Fields))
}

func (r Record) Get(field string) string {
	return r.Fields[field]
}

// LoadError is a failed read for one range.
type LoadError struct {
	Range viewport.Range
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Range, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
