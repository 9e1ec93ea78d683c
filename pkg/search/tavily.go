package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/choraleia/coach/pkg/models"
	"github.com/choraleia/coach/pkg/utils"
	"github.com/pkg/errors"
)

const DefaultTavilyEndpoint = "https://api.tavily.com/search"

// TavilyProvider queries the Tavily search API.
type TavilyProvider struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewTavilyProvider(endpoint, apiKey string, timeout time.Duration) *TavilyProvider {
	if endpoint == "" {
		endpoint = DefaultTavilyEndpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TavilyProvider{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     utils.GetLogger(),
	}
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
	SearchDepth   string `json:"search_depth"`
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string   `json:"title"`
		URL     string   `json:"url"`
		Content string   `json:"content"`
		Score   *float64 `json:"score"`
	} `json:"results"`
}

func (p *TavilyProvider) Search(ctx context.Context, query string, maxResults int) Result {
	start := time.Now()
	if p.apiKey == "" {
		return failed(query, "TAVILY_API_KEY 未设置", time.Since(start))
	}

	resp, err := p.do(ctx, tavilyRequest{
		APIKey:        p.apiKey,
		Query:         query,
		MaxResults:    ClampMaxResults(maxResults),
		IncludeAnswer: true,
		SearchDepth:   "advanced",
	})
	if err != nil {
		p.logger.Warn("Tavily search failed", "query", query, "error", err)
		return failed(query, err.Error(), time.Since(start))
	}

	result := buildResult(query, resp)
	result.Elapsed = time.Since(start)
	p.logger.Debug("Tavily search done", "query", query, "results", len(result.Results), "elapsed", result.Elapsed)
	return result
}

func (p *TavilyProvider) do(ctx context.Context, body tavilyRequest) (*tavilyResponse, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out tavilyResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return &out, nil
}

func buildResult(query string, resp *tavilyResponse) Result {
	items := make([]models.SearchResultItem, 0, len(resp.Results))
	sources := make([]string, 0, len(resp.Results))
	for i, r := range resp.Results {
		item := models.SearchResultItem{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
			Score:   r.Score,
		}
		if item.Title == "" {
			item.Title = fmt.Sprintf("结果 %d", i+1)
		}
		if item.Content == "" {
			item.Content = "无内容"
		}
		items = append(items, item)
		if r.URL != "" {
			sources = append(sources, r.URL)
		}
	}

	content := strings.TrimSpace(resp.Answer)
	if content == "" {
		lines := make([]string, 0, len(items))
		for i, item := range items {
			lines = append(lines, fmt.Sprintf("%d. %s: %s", i+1, item.Title, item.Content))
		}
		content = strings.Join(lines, "\n")
	}
	if content == "" {
		content = NotFoundContent
	}

	return Result{
		Success: true,
		Query:   query,
		Content: content,
		Results: items,
		Sources: sources,
	}
}
