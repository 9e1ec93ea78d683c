package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/choraleia/coach/pkg/models"
)

const displaySnippetRunes = 200

// FormatForDisplay renders results as a numbered Markdown list. Snippets
// longer than 200 runes are cut and suffixed with "...".
func FormatForDisplay(results []models.SearchResultItem) string {
	if len(results) == 0 {
		return "未找到相关信息。"
	}

	var b strings.Builder
	b.WriteString("**搜索结果：**\n\n")
	for i, item := range results {
		title := item.Title
		if title == "" {
			title = "无标题"
		}
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, title)

		content := item.Content
		if content == "" {
			content = "无内容"
		}
		if runes := []rune(content); len(runes) > displaySnippetRunes {
			content = string(runes[:displaySnippetRunes]) + "..."
		}
		fmt.Fprintf(&b, "   %s\n", content)

		if item.URL != "" {
			fmt.Fprintf(&b, "   来源: %s\n", item.URL)
		}
		if item.Score != nil {
			fmt.Fprintf(&b, "   相关性: %.1f%%\n", *item.Score*100)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatForRender wraps the results as JSON between markers that clients
// replace with result cards.
func FormatForRender(results []models.SearchResultItem) string {
	if len(results) == 0 {
		return ""
	}
	b, err := json.Marshal(results)
	if err != nil {
		return ""
	}
	return "[SEARCH_RESULTS_START]" + string(b) + "[SEARCH_RESULTS_END]"
}
