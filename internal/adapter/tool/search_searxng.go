package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"council-ai/internal/domain"
	"council-ai/internal/infra/config"
)

const maxSearchBodySize = 512 * 1024

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// SearXNGBackend searches the web through a SearXNG instance's JSON API.
type SearXNGBackend struct {
	client      *http.Client
	instanceURL string
	logger      *slog.Logger
}

var _ SearchBackend = (*SearXNGBackend)(nil)

// NewSearXNGBackend creates a search backend for cfg.SearXNGURL.
func NewSearXNGBackend(cfg config.SearchConfig, logger *slog.Logger) *SearXNGBackend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SearXNGBackend{
		client:      &http.Client{Timeout: cfg.Timeout},
		instanceURL: strings.TrimRight(cfg.SearXNGURL, "/"),
		logger:      logger,
	}
}

func (b *SearXNGBackend) Name() string { return "searxng" }

func (b *SearXNGBackend) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.instanceURL+"/search", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("pageno", "1")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.Aborted("SearXNGBackend.Search", context.Cause(ctx))
		}
		return nil, domain.NewDomainError("SearXNGBackend.Search", domain.ErrBackendUnavailable, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return nil, domain.NewDomainError("SearXNGBackend.Search", domain.ErrBackendUnavailable,
			"instance refused format=json; enable the json format in its settings.yml")
	case resp.StatusCode >= 500:
		return nil, domain.NewDomainError("SearXNGBackend.Search", domain.ErrBackendUnavailable,
			fmt.Sprintf("HTTP %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("search failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var searxResp searxngResponse
	if err := json.Unmarshal(body, &searxResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := make([]SearchResult, 0, min(count, len(searxResp.Results)))
	for _, r := range searxResp.Results {
		if len(results) >= count {
			break
		}
		results = append(results, SearchResult{
			Title:   strings.TrimSpace(r.Title),
			URL:     r.URL,
			Content: strings.TrimSpace(r.Content),
		})
	}

	b.logger.Debug("searxng: search completed", "query", query, "results", len(results))
	return results, nil
}
