// Package httpjson reads pages of records from a JSON HTTP endpoint.
//
// The endpoint receives offset, limit and cursor as query parameters. Items,
// total, has_more and cursor are picked out of the response with gjson paths
// so most paginated APIs can be read without a custom decoder.
package httpjson

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/vlist/internal/network"
	"github.com/charmbracelet/vlist/internal/virtual/data"
	"github.com/tidwall/gjson"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodySize    = 32 << 20
)

type Options struct {
	URL         string
	ItemsPath   string
	TotalPath   string
	HasMorePath string
	CursorPath  string
	// IndexField, when present in an item, overrides its position.
	IndexField string
	Client     *http.Client
}

type Adapter struct {
	opts Options
	base *url.URL
}

func New(opts Options) (*Adapter, error) {
	base, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid source url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid source url %q: scheme must be http or https", opts.URL)
	}
	if opts.ItemsPath == "" {
		opts.ItemsPath = "items"
	}
	if opts.TotalPath == "" {
		opts.TotalPath = "total"
	}
	if opts.HasMorePath == "" {
		opts.HasMorePath = "has_more"
	}
	if opts.CursorPath == "" {
		opts.CursorPath = "cursor"
	}
	if opts.IndexField == "" {
		opts.IndexField = "index"
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: defaultTimeout}
	}
	return &Adapter{opts: opts, base: base}, nil
}

func (a *Adapter) pageURL(req data.ReadRequest) string {
	u := *a.base
	q := u.Query()
	q.Set("offset", strconv.Itoa(req.Offset))
	q.Set("limit", strconv.Itoa(req.Limit))
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Read implements data.Adapter.
func (a *Adapter) Read(ctx context.Context, req data.ReadRequest) (data.ReadResult[data.Record], error) {
	var res data.ReadResult[data.Record]

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.pageURL(req), nil)
	if err != nil {
		return res, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.opts.Client.Do(httpReq)
	if err != nil {
		return res, network.Classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return res, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, a.base.Redacted())
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return res, network.Classify(fmt.Errorf("failed to read response: %w", err))
	}
	return a.decode(body, req)
}

func (a *Adapter) decode(body []byte, req data.ReadRequest) (data.ReadResult[data.Record], error) {
	var res data.ReadResult[data.Record]
	if !gjson.ValidBytes(body) {
		return res, fmt.Errorf("response is not valid JSON")
	}

	items := gjson.GetBytes(body, a.opts.ItemsPath)
	if !items.IsArray() {
		return res, fmt.Errorf("no item array at %q", a.opts.ItemsPath)
	}
	for i, item := range items.Array() {
		if req.Limit > 0 && i >= req.Limit {
			break
		}
		res.Items = append(res.Items, a.record(item, req.Offset+i))
	}

	res.Total = -1
	if total := gjson.GetBytes(body, a.opts.TotalPath); total.Exists() {
		res.Total = int(total.Int())
	}
	end := req.Offset + len(res.Items)
	if more := gjson.GetBytes(body, a.opts.HasMorePath); more.Exists() {
		res.HasMore = more.Bool()
	} else {
		res.HasMore = res.Total < 0 || end < res.Total
	}
	res.Cursor = gjson.GetBytes(body, a.opts.CursorPath).String()

	// a last page without a total still tells us the total
	if res.Total < 0 && !res.HasMore {
		res.Total = end
	}
	return res, nil
}

func (a *Adapter) record(item gjson.Result, index int) data.Record {
	r := data.Record{Index: index, Fields: make(map[string]string)}
	if !item.IsObject() {
		r.Fields["value"] = item.String()
		return r
	}
	item.ForEach(func(key, value gjson.Result) bool {
		if key.String() == a.opts.IndexField && value.Type == gjson.Number {
			r.Index = int(value.Int())
			return true
		}
		r.Fields[key.String()] = value.String()
		return true
	})
	return r
}
