// Package documents provides the LEANN document retrieval adapter.
// Clean Architecture: Adapter implementing ports.DocumentRetriever.
// Calls the external LEANN Python service over HTTP.
package documents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/0xcro3dile/shodobot-go/internal/adapters/httpclient"
	"github.com/0xcro3dile/shodobot-go/internal/domain/entities"
)

// Fixed answers returned by Ask.
const (
	AnswerDisabled    = "LEANN integration is disabled."
	AnswerUnavailable = "LEANN service not available."
	AnswerError       = "Sorry, I encountered an error while searching the documents."
	AnswerNotFound    = "No answer found."
)

const (
	defaultLimit        = 10
	defaultScore        = 0.8
	defaultThreshold    = 0.7
	defaultContextLimit = 5
	askTemperature      = 0.7
)

var (
	// ErrUnavailable means the service did not answer its health probe.
	ErrUnavailable = errors.New("LEANN service not available")
	// ErrMalformedResponse means the body was not the expected envelope.
	ErrMalformedResponse = errors.New("malformed LEANN response")
	// ErrRequestFailed means the service answered success=false.
	ErrRequestFailed = errors.New("LEANN request failed")
)

// Options configures a LeannRetriever.
type Options struct {
	Enabled       bool
	BaseURL       string
	SearchTimeout time.Duration
	AskTimeout    time.Duration
	ProbeTimeout  time.Duration
	Threshold     float64
	ContextLimit  int
}

// LeannRetriever implements ports.DocumentRetriever against a LEANN service.
type LeannRetriever struct {
	opt       Options
	client    *httpclient.Client
	logger    *zap.Logger
	connected atomic.Bool
}

// NewLeannRetriever creates the adapter. A disabled adapter never touches the network.
func NewLeannRetriever(opt Options, client *httpclient.Client, logger *zap.Logger) *LeannRetriever {
	if opt.BaseURL == "" {
		opt.BaseURL = "http://localhost:8000"
	}
	opt.BaseURL = strings.TrimRight(opt.BaseURL, "/")
	if opt.SearchTimeout <= 0 {
		opt.SearchTimeout = 10 * time.Second
	}
	if opt.AskTimeout <= 0 {
		opt.AskTimeout = 15 * time.Second
	}
	if opt.ProbeTimeout <= 0 {
		opt.ProbeTimeout = 5 * time.Second
	}
	if opt.Threshold <= 0 {
		opt.Threshold = defaultThreshold
	}
	if opt.ContextLimit <= 0 {
		opt.ContextLimit = defaultContextLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = httpclient.New(httpclient.Options{}, logger)
	}
	logger.Info("LEANN retriever initialized",
		zap.Bool("enabled", opt.Enabled),
		zap.String("url", opt.BaseURL))
	return &LeannRetriever{opt: opt, client: client, logger: logger}
}

// Available probes /health once and caches a positive answer.
func (l *LeannRetriever) Available(ctx context.Context) bool {
	if !l.opt.Enabled {
		return false
	}
	if l.connected.Load() {
		return true
	}

	_, err := l.client.Do(ctx, httpclient.Request{
		Method:  http.MethodGet,
		URL:     l.opt.BaseURL + "/health",
		Timeout: l.opt.ProbeTimeout,
		NoRetry: true,
	})
	if err != nil {
		l.logger.Warn("LEANN service not available", zap.Error(err))
		return false
	}
	l.connected.Store(true)
	l.logger.Info("LEANN connection established")
	return true
}

// Ready reports the cached connectivity flag.
func (l *LeannRetriever) Ready() bool {
	return l.connected.Load()
}

// Close forgets the connection so the next call probes again.
func (l *LeannRetriever) Close() error {
	l.connected.Store(false)
	l.logger.Info("LEANN retriever disconnected")
	return nil
}

type searchRequest struct {
	Query     string  `json:"query"`
	Limit     int     `json:"limit"`
	Threshold float64 `json:"threshold"`
}

// Search returns ranked passages. Disabled or unreachable services give an
// empty result and no error; call failures give an empty result and the error.
func (l *LeannRetriever) Search(ctx context.Context, query string, limit int) ([]entities.RetrievalResult, error) {
	results := []entities.RetrievalResult{}
	if !l.opt.Enabled {
		l.logger.Debug("LEANN integration is disabled")
		return results, nil
	}
	if !l.Available(ctx) {
		l.logger.Debug("LEANN service not available, skipping search")
		return results, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	body, err := l.client.Do(ctx, httpclient.Request{
		Method:  http.MethodPost,
		URL:     l.opt.BaseURL + "/search",
		Body:    searchRequest{Query: strings.TrimSpace(query), Limit: limit, Threshold: l.opt.Threshold},
		Timeout: l.opt.SearchTimeout,
	})
	if err != nil {
		return results, fmt.Errorf("searching LEANN: %w", err)
	}

	data, err := envelope(body)
	if err != nil {
		return results, fmt.Errorf("searching LEANN: %w", err)
	}
	if data.Exists() && data.Type != gjson.Null && !data.IsArray() {
		return results, fmt.Errorf("searching LEANN: %w: data is not a list", ErrMalformedResponse)
	}

	for i, item := range data.Array() {
		results = append(results, toRetrievalResult(i, item))
	}
	l.logger.Debug("LEANN search finished", zap.Int("results", len(results)))
	return results, nil
}

type askRequest struct {
	Question     string  `json:"question"`
	ContextLimit int     `json:"context_limit"`
	Temperature  float64 `json:"temperature"`
	// Older LEANN builds read the search-style fields.
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// Ask asks the service to answer over its index. The result always carries
// a displayable answer; Context is empty whenever there is nothing to ground on.
func (l *LeannRetriever) Ask(ctx context.Context, question string) (entities.AskResult, error) {
	if !l.opt.Enabled {
		return entities.AskResult{Answer: AnswerDisabled}, nil
	}
	if !l.Available(ctx) {
		return entities.AskResult{Answer: AnswerUnavailable}, ErrUnavailable
	}

	q := strings.TrimSpace(question)
	body, err := l.client.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    l.opt.BaseURL + "/ask",
		Body: askRequest{
			Question:     q,
			ContextLimit: l.opt.ContextLimit,
			Temperature:  askTemperature,
			Query:        q,
			Limit:        l.opt.ContextLimit,
		},
		Timeout: l.opt.AskTimeout,
	})
	if err != nil {
		return entities.AskResult{Answer: AnswerError}, fmt.Errorf("asking LEANN: %w", err)
	}

	data, err := envelope(body)
	if err != nil {
		return entities.AskResult{Answer: AnswerError}, fmt.Errorf("asking LEANN: %w", err)
	}

	answer := data.Get("answer").String()
	if answer == "" {
		answer = AnswerNotFound
	}
	return entities.AskResult{Answer: answer, Context: data.Get("context").String()}, nil
}

// envelope validates {success, data, error} and returns data.
func envelope(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, ErrMalformedResponse
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return gjson.Result{}, ErrMalformedResponse
	}
	if !root.Get("success").Bool() {
		msg := root.Get("error").String()
		if msg == "" {
			msg = "no error message"
		}
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrRequestFailed, msg)
	}
	return root.Get("data"), nil
}

func toRetrievalResult(i int, item gjson.Result) entities.RetrievalResult {
	id := item.Get("id").String()
	if id == "" {
		id = fmt.Sprintf("leann-%d", i)
	}
	score := item.Get("score").Float()
	if score == 0 {
		score = defaultScore
	}

	filePath := item.Get("file_path").String()
	meta := map[string]any{}
	if filePath != "" {
		meta["file_path"] = filePath
	}
	if ft := item.Get("file_type"); ft.Exists() {
		meta["file_type"] = ft.String()
	}
	if pn := item.Get("page_number"); pn.Exists() {
		meta["page_number"] = int(pn.Int())
	}
	item.Get("metadata").ForEach(func(k, v gjson.Result) bool {
		meta[k.String()] = v.Value()
		return true
	})

	return entities.RetrievalResult{
		ID:       id,
		Title:    titleOf(item, filePath),
		Content:  contentOf(item),
		URL:      urlOf(item, filePath),
		Score:    score,
		Metadata: meta,
	}
}

func titleOf(item gjson.Result, filePath string) string {
	if t := item.Get("title").String(); t != "" {
		return t
	}
	if filePath != "" {
		base := filepath.Base(filePath)
		if stem := strings.TrimSuffix(base, filepath.Ext(base)); stem != "" {
			return stem
		}
		return base
	}
	return "Document"
}

func contentOf(item gjson.Result) string {
	for _, key := range []string{"content", "text", "snippet"} {
		if s := item.Get(key).String(); s != "" {
			return s
		}
	}
	return "No content available."
}

func urlOf(item gjson.Result, filePath string) string {
	if u := item.Get("url").String(); u != "" {
		return u
	}
	if filePath != "" {
		return "file://" + filePath
	}
	return "#"
}
