// Package search runs web searches for the coach pipeline and formats the
// results for prompts and clients.
package search

import (
	"context"
	"time"

	"github.com/choraleia/coach/pkg/models"
)

const (
	DefaultMaxResults = 5
	MaxResultsLimit   = 10

	// NotFoundContent is returned as Content when a search has no answer and no results.
	NotFoundContent = "未找到相关信息"
)

// Result is the outcome of one search. Failures are reported through
// Success=false and a readable Content, never as a Go error.
type Result struct {
	Success bool                      `json:"success"`
	Query   string                    `json:"query"`
	Content string                    `json:"content"`
	Results []models.SearchResultItem `json:"results"`
	Sources []string                  `json:"sources"`
	Elapsed time.Duration             `json:"elapsed"`
}

// Provider runs a web search.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) Result
}

// ClampMaxResults bounds n to 1..10; zero or negative selects the default.
func ClampMaxResults(n int) int {
	if n <= 0 {
		return DefaultMaxResults
	}
	if n > MaxResultsLimit {
		return MaxResultsLimit
	}
	return n
}

func failed(query, reason string, elapsed time.Duration) Result {
	return Result{
		Success: false,
		Query:   query,
		Content: "搜索失败: " + reason,
		Elapsed: elapsed,
	}
}
