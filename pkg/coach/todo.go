package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/choraleia/coach/pkg/llm"
	"github.com/choraleia/coach/pkg/models"
	"github.com/choraleia/coach/pkg/utils"
)

const (
	defaultTodoTitle    = "任务计划"
	defaultTodoCategory = "默认"
	defaultTodoMinutes  = 30
	minTodoMinutes      = 1
	maxTodoMinutes      = 480
	maxTodoItems        = 10

	todoErrorMessage = "生成任务计划时出现错误。"
)

// TodoExecutor asks the model for a JSON task list and normalizes it.
type TodoExecutor struct {
	client llm.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewTodoExecutor(client llm.Client) *TodoExecutor {
	return &TodoExecutor{
		client: client,
		logger: utils.GetLogger(),
		now:    time.Now,
	}
}

// DefaultTodoList is returned whenever the model reply cannot be used.
func DefaultTodoList() *models.TodoListData {
	return &models.TodoListData{
		Type:  models.TodoListType,
		Title: defaultTodoTitle,
		Items: []models.TodoItem{{
			ID:            "1",
			Content:       "分析需求并明确目标",
			Priority:      models.PriorityHigh,
			EstimatedTime: 30,
			Category:      "规划",
			Completed:     false,
		}},
	}
}

// Invoke makes one completion and parses it. Upstream failures and
// unusable replies give DefaultTodoList; only a missing model
// configuration is returned as an error.
func (e *TodoExecutor) Invoke(ctx context.Context, in Input) (*models.TodoListData, error) {
	reply, err := e.client.Invoke(ctx, []llm.Message{
		llm.SystemMessage(todoSystem(in.History)),
		llm.UserMessage(todoPrompt(in)),
	}, llm.Options{})
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			return nil, err
		}
		e.logger.Warn("TODO generation failed, using default list", "error", err)
		return DefaultTodoList(), nil
	}

	data, err := ParseTodoList(reply, e.now())
	if err != nil {
		e.logger.Warn("TODO reply unusable, using default list", "error", err)
		return DefaultTodoList(), nil
	}
	return data, nil
}

// Stream emits the list as a tododata event followed by a summary.
func (e *TodoExecutor) Stream(ctx context.Context, in Input, emit emitFunc) error {
	data, err := e.Invoke(ctx, in)
	if err != nil {
		emit(models.ContentEvent(todoErrorMessage))
		return nil
	}
	if !emit(models.TodoDataEvent(data)) {
		return ctx.Err()
	}
	emit(models.ContentEvent(TodoSummary(data)))
	return nil
}

// TodoSummary is the one-line reply that accompanies a generated list.
func TodoSummary(data *models.TodoListData) string {
	return fmt.Sprintf("已为您生成任务计划：\"%s\"，包含 %d 个任务。", data.Title, len(data.Items))
}

// ParseTodoList extracts the first JSON object in reply and normalizes it
// field by field. It fails when there is no object, the object does not
// parse, or it holds no items.
func ParseTodoList(reply string, now time.Time) (*models.TodoListData, error) {
	raw, ok := extractJSONObject(reply)
	if !ok {
		return nil, errors.New("no JSON object in reply")
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse TODO JSON: %w", err)
	}

	rawItems, _ := doc["items"].([]any)
	if len(rawItems) == 0 {
		return nil, errors.New("TODO list has no items")
	}
	if len(rawItems) > maxTodoItems {
		rawItems = rawItems[:maxTodoItems]
	}

	data := &models.TodoListData{
		Type:  models.TodoListType,
		Title: stringField(doc, "title"),
		Items: make([]models.TodoItem, 0, len(rawItems)),
	}
	if data.Title == "" {
		data.Title = defaultTodoTitle
	}

	seen := make(map[string]bool, len(rawItems))
	for i, ri := range rawItems {
		fields, _ := ri.(map[string]any)

		item := models.TodoItem{
			ID:            idField(fields),
			Content:       stringField(fields, "content"),
			Priority:      models.Priority(stringField(fields, "priority")),
			EstimatedTime: minutesField(fields),
			Category:      stringField(fields, "category"),
			Completed:     false,
		}
		if item.ID == "" || seen[item.ID] {
			item.ID = fmt.Sprintf("todo_%d_%d", now.UnixMilli(), i)
			for seen[item.ID] {
				item.ID += "_"
			}
		}
		seen[item.ID] = true
		if item.Content == "" {
			item.Content = fmt.Sprintf("任务 %d", i+1)
		}
		if !item.Priority.Valid() {
			item.Priority = models.PriorityMedium
		}
		if item.Category == "" {
			item.Category = defaultTodoCategory
		}
		data.Items = append(data.Items, item)
	}
	return data, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

// idField accepts string or numeric ids.
func idField(m map[string]any) string {
	switch v := m["id"].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// minutesField clamps numeric estimates to [1,480]; anything else is 30.
func minutesField(m map[string]any) int {
	v, ok := m["estimated_time"].(float64)
	if !ok {
		return defaultTodoMinutes
	}
	v = math.Round(v)
	if v < minTodoMinutes {
		return minTodoMinutes
	}
	if v > maxTodoMinutes {
		return maxTodoMinutes
	}
	return int(v)
}

// extractJSONObject returns the first balanced {...} span in s. Braces
// inside JSON strings are ignored.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
