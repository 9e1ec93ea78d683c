package coach

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/choraleia/coach/pkg/models"
	"github.com/choraleia/coach/pkg/search"
	"github.com/choraleia/coach/pkg/utils"
)

const (
	searchProgressMessage = "正在搜索最新信息..."
	searchFailedMessage   = "搜索失败，将基于现有知识回答。"
)

// SearchStage runs the tool-aware web search and produces the digest that
// later stages put into their prompts.
type SearchStage struct {
	provider   search.Provider
	maxResults int
	logger     *slog.Logger
}

func NewSearchStage(provider search.Provider, maxResults int) *SearchStage {
	return &SearchStage{
		provider:   provider,
		maxResults: search.ClampMaxResults(maxResults),
		logger:     utils.GetLogger(),
	}
}

// Search runs the query for tool without emitting events.
func (s *SearchStage) Search(ctx context.Context, tool models.ToolType, userInput string, history []models.HistoryMessage) search.Result {
	query := BuildSearchQuery(tool, userInput, history)
	s.logger.Debug("Searching", "tool", tool, "query", query)
	return s.provider.Search(ctx, query, s.maxResults)
}

// Stream emits the progress and outcome events and returns the digest,
// which is empty when the search failed.
func (s *SearchStage) Stream(ctx context.Context, tool models.ToolType, userInput string, history []models.HistoryMessage, emit emitFunc) string {
	if !emit(models.SearchEvent(searchProgressMessage, nil, 0)) {
		return ""
	}

	res := s.Search(ctx, tool, userInput, history)
	if !res.Success {
		s.logger.Warn("Search failed", "reason", res.Content)
		emit(models.SearchEvent(searchFailedMessage, nil, 0))
		return ""
	}

	results := res.Results
	if results == nil {
		results = []models.SearchResultItem{}
	}
	emit(models.SearchEvent(
		fmt.Sprintf("搜索完成，找到 %d 条相关信息", len(results)),
		results,
		res.Elapsed.Milliseconds(),
	))
	return Digest(res)
}

// Digest is the provider content. Providers may return results without a
// summary (empty content or search.NotFoundContent); the digest then lists
// the results in display format. Tavily always summarizes its results.
func Digest(res search.Result) string {
	if !res.Success {
		return ""
	}
	if len(res.Results) > 0 && (res.Content == "" || res.Content == search.NotFoundContent) {
		return search.FormatForDisplay(res.Results)
	}
	return res.Content
}
