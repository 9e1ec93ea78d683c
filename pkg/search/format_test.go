package search

import (
	"strings"
	"testing"

	"github.com/choraleia/coach/pkg/models"
)

func TestFormatForDisplay(t *testing.T) {
	if got := FormatForDisplay(nil); got != "未找到相关信息。" {
		t.Fatalf("FormatForDisplay(nil) = %q", got)
	}

	score := 0.876
	long := strings.Repeat("练", 250)
	got := FormatForDisplay([]models.SearchResultItem{
		{Title: "指南", URL: "https://a.example", Content: "短内容", Score: &score},
		{Content: long},
	})

	want := "**搜索结果：**\n\n" +
		"1. **指南**\n   短内容\n   来源: https://a.example\n   相关性: 87.6%\n\n" +
		"2. **无标题**\n   " + strings.Repeat("练", 200) + "...\n\n"
	if got != want {
		t.Fatalf("FormatForDisplay() =\n%q\nwant\n%q", got, want)
	}
}

func TestFormatForRender(t *testing.T) {
	if got := FormatForRender(nil); got != "" {
		t.Fatalf("FormatForRender(nil) = %q, want empty", got)
	}
	got := FormatForRender([]models.SearchResultItem{{Title: "t", URL: "u", Content: "c"}})
	want := `[SEARCH_RESULTS_START][{"title":"t","url":"u","content":"c"}][SEARCH_RESULTS_END]`
	if got != want {
		t.Fatalf("FormatForRender() = %s, want %s", got, want)
	}
}
