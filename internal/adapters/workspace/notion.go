// Package workspace provides the Notion workspace search adapter.
// Clean Architecture: Adapter implementing ports.WorkspaceSearcher.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/0xcro3dile/shodobot-go/internal/adapters/httpclient"
	"github.com/0xcro3dile/shodobot-go/internal/domain/entities"
	"github.com/0xcro3dile/shodobot-go/internal/domain/ports"
)

// ErrWorkspaceSearch wraps every failed search.
var ErrWorkspaceSearch = errors.New("failed to search Notion workspace")

const (
	defaultPageSize  = 10
	contentBlocks    = 5
	contentFetchers  = 4
	maxContentLength = 800
	untitledPage     = "Untitled"
	untitledDatabase = "Database"
)

// Options configures a NotionSearcher.
type Options struct {
	Enabled bool
	APIKey  string
	BaseURL string
	Version string
	Timeout time.Duration
}

// NotionSearcher implements ports.WorkspaceSearcher using the Notion REST API.
type NotionSearcher struct {
	opt    Options
	client *httpclient.Client
	logger *zap.Logger
	active atomic.Bool
}

// NewNotionSearcher creates the adapter. It is inactive when disabled or
// when no API key is configured.
func NewNotionSearcher(opt Options, client *httpclient.Client, logger *zap.Logger) *NotionSearcher {
	if opt.BaseURL == "" {
		opt.BaseURL = "https://api.notion.com"
	}
	opt.BaseURL = strings.TrimRight(opt.BaseURL, "/")
	if opt.Version == "" {
		opt.Version = "2022-06-28"
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = httpclient.New(httpclient.Options{}, logger)
	}

	n := &NotionSearcher{opt: opt, client: client, logger: logger}
	if opt.Enabled && opt.APIKey != "" {
		n.active.Store(true)
		logger.Info("Notion API client initialized")
	}
	return n
}

// Available reports whether the searcher is configured and not closed.
// Notion has no cheap health endpoint, so no request is made.
func (n *NotionSearcher) Available(context.Context) bool {
	return n.active.Load()
}

// Ready reports the same flag as Available.
func (n *NotionSearcher) Ready() bool {
	return n.active.Load()
}

// Close deactivates the searcher; later searches return nothing.
func (n *NotionSearcher) Close() error {
	if n.active.Swap(false) {
		n.logger.Info("Notion API client disconnected")
	}
	return nil
}

func (n *NotionSearcher) headers() map[string]string {
	return map[string]string{
		"Authorization":  "Bearer " + n.opt.APIKey,
		"Notion-Version": n.opt.Version,
	}
}

// Search queries the workspace. Page results carry a short text excerpt
// built from their first blocks; a failed excerpt fetch leaves it empty.
func (n *NotionSearcher) Search(ctx context.Context, query string, opts ports.WorkspaceSearchOptions) ([]entities.SearchResult, error) {
	if !n.active.Load() {
		n.logger.Debug("Notion integration is disabled or not configured")
		return []entities.SearchResult{}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	req := map[string]any{
		"query":     query,
		"page_size": limit,
	}
	key, value := opts.FilterKey, opts.FilterValue
	if key == "" {
		key = "object"
	}
	if value == "" {
		value = "page"
	}
	if value != "*" {
		req["filter"] = map[string]string{"property": key, "value": value}
	}

	body, err := n.client.Do(ctx, httpclient.Request{
		Method:  http.MethodPost,
		URL:     n.opt.BaseURL + "/v1/search",
		Header:  n.headers(),
		Body:    req,
		Timeout: n.opt.Timeout,
	})
	if err != nil {
		n.logger.Error("Error searching Notion", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrWorkspaceSearch, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: malformed response", ErrWorkspaceSearch)
	}

	items := gjson.GetBytes(body, "results").Array()
	results := make([]entities.SearchResult, 0, len(items))
	var pages []int

	for _, item := range items {
		edited := parseTime(item.Get("last_edited_time").String())
		id := item.Get("id").String()

		switch {
		case item.Get("properties").Exists():
			results = append(results, entities.SearchResult{
				ID:             id,
				Title:          pageTitle(item),
				URL:            objectURL(id),
				LastEditedTime: edited,
				Object:         entities.ObjectPage,
			})
			pages = append(pages, len(results)-1)
		case item.Get("title").Exists():
			results = append(results, entities.SearchResult{
				ID:             id,
				Title:          databaseTitle(item),
				URL:            objectURL(id),
				LastEditedTime: edited,
				Object:         entities.ObjectDatabase,
			})
		}
	}

	// Excerpts are fetched concurrently; each goroutine owns one slot. A failed
	// fetch leaves its excerpt empty.
	var g multierror.Group
	sem := make(chan struct{}, contentFetchers)
	for _, idx := range pages {
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			content, err := n.pageContent(ctx, results[idx].ID)
			if err != nil {
				return fmt.Errorf("page %s: %w", results[idx].ID, err)
			}
			results[idx].Content = content
			return nil
		})
	}
	if err := g.Wait(); err != nil && len(err.Errors) > 0 {
		n.logger.Warn("Could not fetch page content",
			zap.Int("failed", len(err.Errors)), zap.Error(err))
	}

	return results, nil
}

func (n *NotionSearcher) pageContent(ctx context.Context, pageID string) (string, error) {
	u := fmt.Sprintf("%s/v1/blocks/%s/children?page_size=%d", n.opt.BaseURL, url.PathEscape(pageID), contentBlocks)
	body, err := n.client.Do(ctx, httpclient.Request{
		Method:  http.MethodGet,
		URL:     u,
		Header:  n.headers(),
		Timeout: n.opt.Timeout,
		NoRetry: true,
	})
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(body) {
		return "", errors.New("malformed blocks response")
	}
	return blocksText(gjson.GetBytes(body, "results").Array()), nil
}

// blocksText renders supported block types as lightweight Markdown,
// capped at maxContentLength characters.
func blocksText(blocks []gjson.Result) string {
	var b strings.Builder
	for _, block := range blocks {
		typ := block.Get("type").String()
		rt := block.Get(typ + ".rich_text")
		if !rt.IsArray() {
			continue
		}
		text := plainText(rt)

		var part string
		switch typ {
		case "paragraph":
			part = text
		case "heading_1":
			part = "\n# " + text + "\n"
		case "heading_2":
			part = "\n## " + text + "\n"
		case "heading_3":
			part = "\n### " + text + "\n"
		case "bulleted_list_item":
			part = "\n• " + text
		case "numbered_list_item":
			part = "\n1. " + text
		}
		b.WriteString(part)
	}

	out := []rune(b.String())
	if len(out) > maxContentLength {
		out = out[:maxContentLength]
	}
	return string(out)
}

func plainText(arr gjson.Result) string {
	var b strings.Builder
	arr.ForEach(func(_, v gjson.Result) bool {
		b.WriteString(v.Get("plain_text").String())
		return true
	})
	return b.String()
}

// pageTitle returns the first non-empty title property.
func pageTitle(page gjson.Result) string {
	title := ""
	page.Get("properties").ForEach(func(_, prop gjson.Result) bool {
		arr := prop.Get("title")
		if arr.IsArray() && len(arr.Array()) > 0 {
			title = plainText(arr)
			return false
		}
		return true
	})
	if title == "" {
		return untitledPage
	}
	return title
}

func databaseTitle(db gjson.Result) string {
	arr := db.Get("title")
	if !arr.IsArray() {
		return untitledDatabase
	}
	if t := plainText(arr); t != "" {
		return t
	}
	return untitledDatabase
}

func objectURL(id string) string {
	return "https://notion.so/" + strings.ReplaceAll(id, "-", "")
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now()
}
