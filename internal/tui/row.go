package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/vlist/internal/adapter/synthetic"
	"github.com/charmbracelet/vlist/internal/tui/exp/list"
	"github.com/charmbracelet/vlist/internal/virtual/data"
)

// RecordRenderer renders a record as a header line followed by its body.
// Records without the generated fields show their fields as key=value
// pairs.
func RecordRenderer(s Styles) list.RenderFunc[data.Record] {
	return func(r data.Record, index int, loaded bool, width int) string {
		if !loaded {
			return s.RowPlaceholder.Render(plainRecord(r, index))
		}
		if r.Get(synthetic.FieldName) == "" {
			return plainRecord(r, index)
		}
		header := strings.Join([]string{
			s.RowIndex.Render(fmt.Sprintf("%8d", index)),
			s.RowID.Render(r.Get(synthetic.FieldID)),
			s.RowName.Render(r.Get(synthetic.FieldName)),
			s.RowStatus.Render("[" + r.Get(synthetic.FieldStatus) + "]"),
		}, " ")
		body := r.Get(synthetic.FieldBody)
		if body == "" {
			return header
		}
		return header + "\n" + s.RowBody.Render(body)
	}
}

func plainRecord(r data.Record, index int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%8d", index)
	for _, k := range r.Keys() {
		fmt.Fprintf(&b, " %s=%s", k, strings.ReplaceAll(r.Fields[k], "\n", " "))
	}
	return b.String()
}
