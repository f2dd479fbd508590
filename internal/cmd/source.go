package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/vlist/internal/adapter/httpjson"
	"github.com/charmbracelet/vlist/internal/adapter/sqlite"
	"github.com/charmbracelet/vlist/internal/adapter/synthetic"
	"github.com/charmbracelet/vlist/internal/config"
	"github.com/charmbracelet/vlist/internal/tui"
	"github.com/charmbracelet/vlist/internal/tui/exp/list"
	"github.com/charmbracelet/vlist/internal/virtual"
	"github.com/charmbracelet/vlist/internal/virtual/data"
)

// syntheticMaxLines is the tallest generated record when rows are measured.
const syntheticMaxLines = 4

// source is an opened record adapter and whatever must be released with it.
type source struct {
	adapter data.Adapter[data.Record]
	db      *sql.DB
}

func (s *source) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// generator returns the synthetic generator configured by cfg, serving
// total rows.
func generator(cfg *config.Config, total int) *synthetic.Adapter {
	lines := 1
	if cfg.Sizing.Size == 0 {
		lines = syntheticMaxLines
	}
	return synthetic.New(synthetic.Options{
		Total:    total,
		Seed:     cfg.Source.Seed,
		Latency:  time.Duration(cfg.Source.LatencyMS) * time.Millisecond,
		MaxLines: lines,
	})
}

func openSource(ctx context.Context, cfg *config.Config) (*source, error) {
	switch cfg.Source.Type {
	case config.SourceSQLite:
		conn, err := sqlite.Connect(ctx, cfg.Options.DataDirectory, cfg.Source.Database)
		if err != nil {
			return nil, err
		}
		adapter := sqlite.New(conn)
		n, err := adapter.Count(ctx)
		if err != nil {
			conn.Close()
			return nil, err
		}
		if n == 0 {
			conn.Close()
			return nil, fmt.Errorf("the sqlite source is empty, run `vlist seed` first")
		}
		return &source{adapter: adapter, db: conn}, nil
	case config.SourceHTTP:
		adapter, err := httpjson.New(httpjson.Options{
			URL:         cfg.Source.URL,
			ItemsPath:   cfg.Source.ItemsPath,
			TotalPath:   cfg.Source.TotalPath,
			HasMorePath: cfg.Source.HasMorePath,
			CursorPath:  cfg.Source.CursorPath,
		})
		if err != nil {
			return nil, err
		}
		return &source{adapter: adapter}, nil
	default:
		return &source{adapter: generator(cfg, cfg.Source.Total)}, nil
	}
}

// features assembles the engine features for src.
func features(cfg *config.Config, src *source) []virtual.Feature[data.Record] {
	fs := []virtual.Feature[data.Record]{
		virtual.AsyncData(src.adapter, data.Masker[data.Record](data.RecordMasker{Fields: synthetic.Fields})),
	}
	if cfg.List.StickToBottom {
		fs = append(fs, virtual.StickToBottom[data.Record]())
	}
	return fs
}

func newList(cfg *config.Config, src *source) (*list.List[data.Record], error) {
	return list.New(
		cfg.Engine(),
		tui.RecordRenderer(tui.DefaultStyles()),
		features(cfg, src),
		list.WithEnableMouse(),
		list.WithIdleTimeout(cfg.IdleTimeout()),
	)
}
