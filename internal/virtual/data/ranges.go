package data

import (
	"cmp"
	"slices"

	"github.com/charmbracelet/vlist/internal/virtual/viewport"
	"github.com/samber/lo"
)

// mergeRanges sorts ranges and joins the ones that touch or overlap.
func mergeRanges(ranges []viewport.Range) []viewport.Range {
	ranges = lo.Filter(ranges, func(r viewport.Range, _ int) bool {
		return !r.Empty()
	})
	if len(ranges) == 0 {
		return nil
	}
	slices.SortFunc(ranges, func(a, b viewport.Range) int {
		return cmp.Compare(a.Start, b.Start)
	})
	merged := []viewport.Range{ranges[0]}
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			last.End = max(last.End, r.End)
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

func sortedKeys[V any](m map[int]V) []int {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
