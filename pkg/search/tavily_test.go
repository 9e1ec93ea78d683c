package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTavilyServer(t *testing.T, status int, response string, gotBody *tavilyRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		raw, _ := io.ReadAll(r.Body)
		if gotBody != nil {
			json.Unmarshal(raw, gotBody)
		}
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
}

func TestTavilyProvider_AnswerAndResults(t *testing.T) {
	var body tavilyRequest
	srv := newTavilyServer(t, http.StatusOK, `{
		"answer": "每周训练三次",
		"results": [
			{"title": "训练指南", "url": "https://a.example", "content": "内容A", "score": 0.91},
			{"title": "", "url": "", "content": ""}
		]
	}`, &body)
	defer srv.Close()

	p := NewTavilyProvider(srv.URL, "tvly-key", 0)
	res := p.Search(context.Background(), "健身", 50)

	if !res.Success {
		t.Fatalf("Search() success = false, content = %q", res.Content)
	}
	if body.MaxResults != MaxResultsLimit || !body.IncludeAnswer || body.SearchDepth != "advanced" || body.APIKey != "tvly-key" {
		t.Fatalf("request body = %+v", body)
	}
	if res.Content != "每周训练三次" {
		t.Fatalf("Content = %q, want the answer", res.Content)
	}
	if len(res.Results) != 2 {
		t.Fatalf("Results len = %d, want 2", len(res.Results))
	}
	if res.Results[1].Title != "结果 2" || res.Results[1].Content != "无内容" {
		t.Fatalf("defaulted item = %+v", res.Results[1])
	}
	if len(res.Sources) != 1 || res.Sources[0] != "https://a.example" {
		t.Fatalf("Sources = %v", res.Sources)
	}
}

func TestTavilyProvider_ContentFromResults(t *testing.T) {
	srv := newTavilyServer(t, http.StatusOK, `{"results":[{"title":"T1","url":"u1","content":"C1"},{"title":"T2","url":"u2","content":"C2"}]}`, nil)
	defer srv.Close()

	res := NewTavilyProvider(srv.URL, "k", 0).Search(context.Background(), "q", 0)
	want := "1. T1: C1\n2. T2: C2"
	if res.Content != want {
		t.Fatalf("Content = %q, want %q", res.Content, want)
	}
}

func TestTavilyProvider_NothingFound(t *testing.T) {
	srv := newTavilyServer(t, http.StatusOK, `{"results":[]}`, nil)
	defer srv.Close()

	res := NewTavilyProvider(srv.URL, "k", 0).Search(context.Background(), "q", 3)
	if !res.Success || res.Content != NotFoundContent {
		t.Fatalf("Search() = %+v, want success with sentinel content", res)
	}
}

func TestTavilyProvider_Failures(t *testing.T) {
	srv := newTavilyServer(t, http.StatusUnauthorized, `bad key`, nil)
	defer srv.Close()

	tests := []struct {
		name       string
		provider   *TavilyProvider
		wantPrefix string
	}{
		{"missing key", NewTavilyProvider(srv.URL, "", 0), "搜索失败: TAVILY_API_KEY 未设置"},
		{"http error", NewTavilyProvider(srv.URL, "k", 0), "搜索失败: HTTP 401: bad key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.provider.Search(context.Background(), "q", 5)
			if res.Success {
				t.Fatalf("Search() success = true, want false")
			}
			if !strings.HasPrefix(res.Content, tt.wantPrefix) {
				t.Fatalf("Content = %q, want prefix %q", res.Content, tt.wantPrefix)
			}
		})
	}
}

func TestClampMaxResults(t *testing.T) {
	tests := []struct{ in, want int }{{0, 5}, {-3, 5}, {1, 1}, {10, 10}, {11, 10}}
	for _, tt := range tests {
		if got := ClampMaxResults(tt.in); got != tt.want {
			t.Errorf("ClampMaxResults(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
