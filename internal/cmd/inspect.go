package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/charmbracelet/vlist/internal/config"
	"github.com/charmbracelet/vlist/internal/virtual"
	"github.com/charmbracelet/vlist/internal/virtual/sparse"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Report describes the engine at one scroll position.
type Report struct {
	Source      config.SourceType `json:"source" yaml:"source"`
	Features    []string          `json:"features" yaml:"features"`
	State       virtual.State     `json:"state" yaml:"state"`
	ContentSize float64           `json:"content_size" yaml:"content_size"`
	MaxScroll   float64           `json:"max_scroll" yaml:"max_scroll"`
	Store       *sparse.Stats     `json:"store,omitempty" yaml:"store,omitempty"`
	Pending     []string          `json:"pending,omitempty" yaml:"pending,omitempty"`
	Error       string            `json:"error,omitempty" yaml:"error,omitempty"`
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Report sizes, compression and ranges at a scroll position",
	Long: heredoc.Doc(`
		Build the list engine from the current configuration without starting
		the interface, scroll to a row and report what the engine computed:
		the visible and render ranges, the compression mapping and, with
		--load, what the data source returned.
	`),
	Example: heredoc.Doc(`
		# Where does row 750,000 land with a 40 line viewport?
		vlist inspect --index 750000

		# Load the rows too and print YAML
		vlist inspect --index 750000 --load -f yaml
	`),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setupApp(cmd)
		if err != nil {
			return err
		}
		viewportSize, _ := cmd.Flags().GetInt("viewport")
		index, _ := cmd.Flags().GetInt("index")
		load, _ := cmd.Flags().GetBool("load")
		format, _ := cmd.Flags().GetString("format")

		report, err := runInspect(cmd.Context(), cfg, viewportSize, index, load)
		if err != nil {
			return err
		}
		return formatReport(cmd.OutOrStdout(), report, format)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Int("viewport", 40, "Viewport height in lines")
	inspectCmd.Flags().Int("index", 0, "Row to scroll to")
	inspectCmd.Flags().Bool("load", false, "Load the render range from the source")
	inspectCmd.Flags().StringP("format", "f", "text", "Output format (text, json, yaml)")
}

func runInspect(ctx context.Context, cfg *config.Config, viewportSize, index int, load bool) (*Report, error) {
	src, err := openSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	engine, err := virtual.New(cfg.Engine(), features(cfg, src)...)
	if err != nil {
		return nil, err
	}
	defer engine.Shutdown()

	engine.SetViewport(float64(viewportSize))
	// the total is unknown until the first read
	if err := engine.Sync(ctx); err != nil {
		return nil, err
	}
	engine.ScrollToIndex(index, virtual.AlignStart)

	report := &Report{Source: cfg.Source.Type}
	if load {
		if err := engine.Sync(ctx); err != nil {
			report.Error = err.Error()
		}
	}
	engine.Idle()

	report.Features = engine.Features()
	report.State = engine.State()
	report.ContentSize = engine.ContentSize()
	report.MaxScroll = engine.MaxScroll()
	if d := engine.Data(); d != nil {
		stats := d.Stats()
		report.Store = &stats
		for _, r := range d.State().PendingRanges {
			report.Pending = append(report.Pending, r.String())
		}
	}
	return report, nil
}

func formatReport(w io.Writer, report *Report, format string) error {
	switch strings.ToLower(format) {
	case "json":
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(w, string(out))
		return nil
	case "yaml":
		out, err := yaml.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		fmt.Fprint(w, string(out))
		return nil
	case "text":
		formatReportText(w, report)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func formatReportText(w io.Writer, r *Report) {
	s := r.State
	fmt.Fprintf(w, "Source:       %s (%s)\n", r.Source, strings.Join(r.Features, ", "))
	fmt.Fprintf(w, "Rows:         %s\n", humanize.Comma(int64(s.Total)))
	fmt.Fprintf(w, "Viewport:     %s lines\n", humanize.Ftoa(s.Viewport))
	fmt.Fprintf(w, "Scroll top:   %s of %s (logical %s)\n",
		humanize.CommafWithDigits(s.ScrollTop, 2),
		humanize.CommafWithDigits(r.MaxScroll, 2),
		humanize.CommafWithDigits(s.LogicalTop, 2))
	fmt.Fprintf(w, "Content size: %s\n", humanize.CommafWithDigits(r.ContentSize, 2))
	fmt.Fprintf(w, "Visible:      %s\n", s.Visible)
	fmt.Fprintf(w, "Render:       %s\n", s.Render)
	if c := s.Compression; c.IsCompressed {
		fmt.Fprintf(w, "Compression:  %s -> %s (ratio %s)\n",
			humanize.CommafWithDigits(c.ActualSize, 0),
			humanize.CommafWithDigits(c.VirtualSize, 0),
			humanize.FtoaWithDigits(c.Ratio, 6))
	} else {
		fmt.Fprintln(w, "Compression:  none")
	}
	if r.Store != nil {
		fmt.Fprintf(w, "Cached:       %s rows in %d chunks of %d (max %s, evicted %s)\n",
			humanize.Comma(int64(r.Store.CachedItems)),
			r.Store.Chunks,
			r.Store.ChunkSize,
			humanize.Comma(int64(r.Store.MaxCachedItems)),
			humanize.Comma(int64(r.Store.Evicted)))
	}
	if len(r.Pending) > 0 {
		fmt.Fprintf(w, "Pending:      %s\n", strings.Join(r.Pending, " "))
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:        %s\n", r.Error)
	}
}
