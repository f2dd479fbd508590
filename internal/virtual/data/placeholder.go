package data

import (
	"strings"

	"github.com/rivo/uniseg"
)

// maxProfiles bounds the pool of captured field length profiles.
const maxProfiles = 32

// Profile maps a field name to the display width of its value.
type Profile map[string]int

// Masker builds placeholder items shaped like real ones.
type Masker[T any] interface {
	// Profile measures the fields of a real item.
	Profile(item T) Profile
	// Placeholder builds a stand-in for index. p is nil until a batch has
	// been profiled.
	Placeholder(index int, p Profile) T
}

// placeholders keeps a cyclic pool of profiles captured from the first loaded
// batch.
type placeholders[T any] struct {
	masker Masker[T]
	pool   []Profile
}

func (p *placeholders[T]) capture(items []T) {
	if p.masker == nil || len(p.pool) > 0 {
		return
	}
	for _, item := range items[:min(len(items), maxProfiles)] {
		p.pool = append(p.pool, p.masker.Profile(item))
	}
}

func (p *placeholders[T]) get(index int) T {
	if p.masker == nil {
		var zero T
		return zero
	}
	if len(p.pool) == 0 {
		return p.masker.Placeholder(index, nil)
	}
	return p.masker.Placeholder(index, p.pool[index%len(p.pool)])
}

func (p *placeholders[T]) reset() {
	p.pool = nil
}

// RecordMasker masks Record values with a fill rune.
type RecordMasker struct {
	// Fill defaults to '░'.
	Fill rune
	// Fields are used before any profile is captured.
	Fields []string
}

func (m RecordMasker) Profile(r Record) Profile {
	p := make(Profile, len(r.Fields))
	for k, v := range r.Fields {
		p[k] = uniseg.StringWidth(v)
	}
	return p
}

func (m RecordMasker) Placeholder(index int, p Profile) Record {
	fill := m.Fill
	if fill == 0 {
		fill = '░'
	}
	r := Record{Index: index, Fields: make(map[string]string)}
	if p == nil {
		for _, f := range m.Fields {
			r.Fields[f] = ""
		}
		return r
	}
	for k, width := range p {
		r.Fields[k] = strings.Repeat(string(fill), width)
	}
	return r
}
