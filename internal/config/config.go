package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/vlist/internal/virtual"
	"github.com/charmbracelet/vlist/internal/virtual/data"
	"github.com/charmbracelet/vlist/internal/virtual/sizing"
	"github.com/charmbracelet/vlist/internal/virtual/sparse"
	"github.com/tidwall/sjson"
)

const (
	appName              = "vlist"
	defaultDataDirectory = ".vlist"
	defaultIdleTimeout   = 150
	defaultTotal         = 1_000_000
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type SourceType string

const (
	SourceSynthetic SourceType = "synthetic"
	SourceSQLite    SourceType = "sqlite"
	SourceHTTP      SourceType = "http"
)

// ListOptions tunes the virtualization engine.
type ListOptions struct {
	ChunkSize        int     `json:"chunk_size,omitempty"`
	MaxCachedItems   int     `json:"max_cached_items,omitempty"`
	EvictionBuffer   int     `json:"eviction_buffer,omitempty"`
	Overscan         int     `json:"overscan,omitempty"`
	CancelThreshold  float64 `json:"cancel_threshold,omitempty"`
	PreloadThreshold float64 `json:"preload_threshold,omitempty"`
	PreloadAhead     int     `json:"preload_ahead,omitempty"`
	CompressionLimit float64 `json:"compression_limit,omitempty"`
	IdleTimeoutMS    int     `json:"idle_timeout_ms,omitempty"`
	StickToBottom    bool    `json:"stick_to_bottom,omitempty"`
}

// SizingOptions selects how rows are sized. Size wins over Pattern, which
// wins over EstimatedSize.
type SizingOptions struct {
	Size float64 `json:"size,omitempty"`
	// Pattern sizes row i as Pattern[i%len(Pattern)].
	Pattern       []float64 `json:"pattern,omitempty"`
	EstimatedSize float64   `json:"estimated_size,omitempty"`
}

type SourceOptions struct {
	Type      SourceType `json:"type,omitempty"`
	Total     int        `json:"total,omitempty"`
	LatencyMS int        `json:"latency_ms,omitempty"`
	Seed      uint64     `json:"seed,omitempty"`
	// Database is the sqlite file, relative to the data directory.
	Database    string `json:"database,omitempty"`
	URL         string `json:"url,omitempty"`
	ItemsPath   string `json:"items_path,omitempty"`
	TotalPath   string `json:"total_path,omitempty"`
	HasMorePath string `json:"has_more_path,omitempty"`
	CursorPath  string `json:"cursor_path,omitempty"`
}

type Options struct {
	Debug         bool   `json:"debug,omitempty"`
	DataDirectory string `json:"data_directory,omitempty"` // Relative to the cwd
}

// Config holds the configuration for vlist.
type Config struct {
	List    *ListOptions   `json:"list,omitempty"`
	Sizing  *SizingOptions `json:"sizing,omitempty"`
	Source  *SourceOptions `json:"source,omitempty"`
	Options *Options       `json:"options,omitempty"`

	// Internal
	workingDir string   `json:"-"`
	paths      []string `json:"-"`
	dataConfig string   `json:"-"`
}

func (c *Config) WorkingDir() string {
	return c.workingDir
}

// Paths lists the files the configuration was merged from, lowest priority
// first.
func (c *Config) Paths() []string {
	return c.paths
}

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.List.IdleTimeoutMS) * time.Millisecond
}

// SizingSpec turns the sizing options into a size model spec.
func (c *Config) SizingSpec() sizing.Spec {
	spec := sizing.Spec{
		Size:          c.Sizing.Size,
		EstimatedSize: c.Sizing.EstimatedSize,
	}
	if pattern := c.Sizing.Pattern; len(pattern) > 0 {
		spec.SizeFunc = func(i int) float64 {
			return pattern[i%len(pattern)]
		}
	}
	return spec
}

// Engine returns the engine configuration.
func (c *Config) Engine() virtual.Config {
	return virtual.Config{
		Sizing:           c.SizingSpec(),
		Overscan:         c.List.Overscan,
		CompressionLimit: c.List.CompressionLimit,
		Store: sparse.Options{
			ChunkSize:      c.List.ChunkSize,
			MaxCachedItems: c.List.MaxCachedItems,
			EvictionBuffer: c.List.EvictionBuffer,
		},
		Velocity: data.VelocityOptions{
			CancelThreshold:  c.List.CancelThreshold,
			PreloadThreshold: c.List.PreloadThreshold,
			PreloadAhead:     c.List.PreloadAhead,
		},
	}
}

func (c *Config) setDefaults(workingDir string) {
	c.workingDir = workingDir
	if c.List == nil {
		c.List = &ListOptions{}
	}
	if c.Sizing == nil {
		c.Sizing = &SizingOptions{}
	}
	if c.Source == nil {
		c.Source = &SourceOptions{}
	}
	if c.Options == nil {
		c.Options = &Options{}
	}

	if c.List.ChunkSize == 0 {
		c.List.ChunkSize = sparse.DefaultChunkSize
	}
	if c.List.MaxCachedItems == 0 {
		c.List.MaxCachedItems = sparse.DefaultMaxCachedItems
	}
	if c.List.EvictionBuffer == 0 {
		c.List.EvictionBuffer = sparse.DefaultEvictionBuffer
	}
	if c.List.Overscan == 0 {
		c.List.Overscan = virtual.DefaultOverscan
	}
	if c.List.CancelThreshold == 0 {
		c.List.CancelThreshold = data.DefaultCancelThreshold
	}
	if c.List.PreloadThreshold == 0 {
		c.List.PreloadThreshold = data.DefaultPreloadThreshold
	}
	if c.List.PreloadAhead == 0 {
		c.List.PreloadAhead = data.DefaultPreloadAhead
	}
	if c.List.IdleTimeoutMS == 0 {
		c.List.IdleTimeoutMS = defaultIdleTimeout
	}
	if c.Sizing.Size == 0 && len(c.Sizing.Pattern) == 0 && c.Sizing.EstimatedSize == 0 {
		c.Sizing.Size = 1
	}
	if c.Source.Type == "" {
		c.Source.Type = SourceSynthetic
	}
	if c.Source.Total == 0 {
		c.Source.Total = defaultTotal
	}
	if c.Source.Database == "" {
		c.Source.Database = appName + ".db"
	}
	if c.Source.ItemsPath == "" {
		c.Source.ItemsPath = "items"
	}
	if c.Source.TotalPath == "" {
		c.Source.TotalPath = "total"
	}
	if c.Source.HasMorePath == "" {
		c.Source.HasMorePath = "has_more"
	}
	if c.Source.CursorPath == "" {
		c.Source.CursorPath = "cursor"
	}
	if c.Options.DataDirectory == "" {
		c.Options.DataDirectory = defaultDataDirectory
	}
}

// Validate reports every problem at once, each wrapped in ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.List.ChunkSize <= 0 {
		bad("list.chunk_size must be positive, got %d", c.List.ChunkSize)
	}
	if c.List.MaxCachedItems < c.List.ChunkSize {
		bad("list.max_cached_items (%d) must hold at least one chunk (%d)", c.List.MaxCachedItems, c.List.ChunkSize)
	}
	if c.List.EvictionBuffer < 0 {
		bad("list.eviction_buffer must not be negative, got %d", c.List.EvictionBuffer)
	}
	if c.List.Overscan < 0 {
		bad("list.overscan must not be negative, got %d", c.List.Overscan)
	}
	if c.List.PreloadThreshold > c.List.CancelThreshold {
		bad("list.preload_threshold (%g) must not exceed list.cancel_threshold (%g)", c.List.PreloadThreshold, c.List.CancelThreshold)
	}
	if c.List.CompressionLimit < 0 {
		bad("list.compression_limit must not be negative, got %g", c.List.CompressionLimit)
	}
	if c.Sizing.Size < 0 || c.Sizing.EstimatedSize < 0 {
		bad("sizing sizes must not be negative")
	}
	for i, v := range c.Sizing.Pattern {
		if v < 0 {
			bad("sizing.pattern[%d] must not be negative, got %g", i, v)
		}
	}
	if c.Source.Total < 0 {
		bad("source.total must not be negative, got %d", c.Source.Total)
	}
	switch c.Source.Type {
	case SourceSynthetic, SourceSQLite:
	case SourceHTTP:
		if c.Source.URL == "" {
			bad("source.url is required for the http source")
		}
	default:
		bad("unknown source.type %q", c.Source.Type)
	}
	return errors.Join(errs...)
}

// SetConfigField writes a single field to the user data config file. The
// file is left untouched when the result no longer loads.
func (c *Config) SetConfigField(key string, value any) error {
	// read the data
	raw, err := os.ReadFile(c.dataConfig)
	existed := err == nil
	if err != nil {
		if os.IsNotExist(err) {
			raw = []byte("{}")
		} else {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	newValue, err := sjson.Set(string(raw), key, value)
	if err != nil {
		return fmt.Errorf("failed to set config field %s: %w", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(c.dataConfig), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(c.dataConfig, []byte(newValue), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if _, err := Load(c.workingDir, false); err != nil {
		if existed {
			_ = os.WriteFile(c.dataConfig, raw, 0o644)
		} else {
			_ = os.Remove(c.dataConfig)
		}
		return fmt.Errorf("refusing to set %s: %w", key, err)
	}
	slog.Debug("Config field written", "key", key, "path", c.dataConfig)
	return nil
}
