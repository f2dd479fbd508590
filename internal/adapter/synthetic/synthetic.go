// Package synthetic generates deterministic records on demand.
package synthetic

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/vlist/internal/virtual/data"
	"github.com/zeebo/xxh3"
)

// Field names of generated records.
const (
	FieldID     = "id"
	FieldName   = "name"
	FieldStatus = "status"
	FieldBody   = "body"
)

var Fields = []string{FieldID, FieldName, FieldStatus, FieldBody}

var (
	names = []string{
		"aurora", "basalt", "cinder", "dune", "ember", "fjord", "glacier",
		"harbor", "isle", "juniper", "kelp", "lagoon", "meadow", "nebula",
		"obsidian", "prairie", "quartz", "reef", "sierra", "tundra",
	}
	statuses = []string{"queued", "running", "done", "failed", "paused"}
	words    = []string{
		"chunk", "offset", "viewport", "scroll", "render", "measure",
		"evict", "load", "range", "index", "buffer", "cache", "frame",
		"prefix", "sum", "store", "track", "span", "cursor", "page",
	}
)

type Options struct {
	Total   int
	Seed    uint64
	Latency time.Duration
	// MaxLines bounds the number of body lines. Zero means one line.
	MaxLines int
}

// Adapter serves generated records. The same index and seed always yield
// the same record.
type Adapter struct {
	opts Options
}

func New(opts Options) *Adapter {
	opts.Total = max(0, opts.Total)
	opts.MaxLines = max(1, opts.MaxLines)
	return &Adapter{opts: opts}
}

func (a *Adapter) Total() int { return a.opts.Total }

func (a *Adapter) hash(index int, salt uint64) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(index))
	binary.LittleEndian.PutUint64(buf[8:], salt)
	return xxh3.HashSeed(buf[:], a.opts.Seed)
}

// Record builds the record at index.
func (a *Adapter) Record(index int) data.Record {
	h := a.hash(index, 0)
	lines := 1 + int(a.hash(index, 1)%uint64(a.opts.MaxLines))
	body := make([]string, lines)
	for l := range body {
		n := 2 + int(a.hash(index, uint64(10+l))%8)
		ws := make([]string, n)
		for w := range ws {
			ws[w] = words[a.hash(index, uint64(100+l*16+w))%uint64(len(words))]
		}
		body[l] = strings.Join(ws, " ")
	}
	return data.Record{
		Index: index,
		Fields: map[string]string{
			FieldID:     fmt.Sprintf("#%07d", index),
			FieldName:   names[h%uint64(len(names))],
			FieldStatus: statuses[(h>>32)%uint64(len(statuses))],
			FieldBody:   strings.Join(body, "\n"),
		},
	}
}

// Records builds the records in [offset, offset+limit), clamped to the
// total.
func (a *Adapter) Records(offset, limit int) []data.Record {
	offset = max(0, offset)
	end := min(offset+max(0, limit), a.opts.Total)
	if end <= offset {
		return nil
	}
	out := make([]data.Record, 0, end-offset)
	for i := offset; i < end; i++ {
		out = append(out, a.Record(i))
	}
	return out
}

// Read implements data.Adapter. With a latency set it waits before
// answering and gives up when ctx is done.
func (a *Adapter) Read(ctx context.Context, req data.ReadRequest) (data.ReadResult[data.Record], error) {
	if a.opts.Latency > 0 {
		timer := time.NewTimer(a.opts.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return data.ReadResult[data.Record]{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return data.ReadResult[data.Record]{}, err
	}

	items := a.Records(req.Offset, req.Limit)
	end := req.Offset + len(items)
	return data.ReadResult[data.Record]{
		Items:   items,
		Total:   a.opts.Total,
		HasMore: end < a.opts.Total,
		Cursor:  strconv.Itoa(end),
	}, nil
}
