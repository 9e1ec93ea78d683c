package coach

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/choraleia/coach/pkg/llm"
	"github.com/choraleia/coach/pkg/models"
	"github.com/choraleia/coach/pkg/utils"
)

const (
	ClassifierModel   = "model"
	ClassifierKeyword = "keyword"

	toolNameTodo   = "create_todo_list"
	toolNameSearch = "web_search"
	toolNameGoal   = "create_learning_goal"
	toolNameNone   = "none"
)

var (
	todoKeywords = []string{"任务", "计划", "todo", "待办", "清单", "安排"}
	goalKeywords = []string{"目标", "学习", "兴趣", "教练", "规划", "smart"}
)

// Classifier picks the response strategy for a user message.
type Classifier interface {
	Classify(ctx context.Context, userInput string, searchEnabled bool) models.ToolType
}

// KeywordClassifier matches the lowercased input against fixed vocabularies.
// TODO keywords are checked before goal keywords.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, userInput string, _ bool) models.ToolType {
	lower := strings.ToLower(userInput)
	switch {
	case containsAny(lower, todoKeywords):
		return models.ToolTodo
	case containsAny(lower, goalKeywords):
		return models.ToolGoal
	default:
		return models.ToolNone
	}
}

// ModelClassifier asks the model to name a tool. Any upstream failure
// falls back to the keyword vocabularies.
type ModelClassifier struct {
	client   llm.Client
	fallback KeywordClassifier
	logger   *slog.Logger
}

func NewModelClassifier(client llm.Client) *ModelClassifier {
	return &ModelClassifier{
		client: client,
		logger: utils.GetLogger(),
	}
}

// NewClassifier returns the strategy named by kind ("model" or "keyword").
func NewClassifier(kind string, client llm.Client) Classifier {
	if strings.EqualFold(kind, ClassifierKeyword) || client == nil {
		return KeywordClassifier{}
	}
	return NewModelClassifier(client)
}

func (c *ModelClassifier) Classify(ctx context.Context, userInput string, searchEnabled bool) models.ToolType {
	reply, err := c.client.Invoke(ctx, []llm.Message{llm.UserMessage(classifierPrompt(userInput, searchEnabled))}, llm.Options{})
	if err != nil {
		c.logger.Warn("Model classification failed, using keywords", "error", err)
		return c.fallback.Classify(ctx, userInput, searchEnabled)
	}
	tool := parseToolName(reply, searchEnabled)
	c.logger.Debug("Classified message", "reply", reply, "tool", tool)
	return tool
}

func parseToolName(reply string, searchEnabled bool) models.ToolType {
	switch strings.ToLower(strings.TrimSpace(reply)) {
	case toolNameTodo:
		return models.ToolTodo
	case toolNameGoal:
		return models.ToolGoal
	case toolNameSearch:
		if searchEnabled {
			return models.ToolSearch
		}
		return models.ToolNone
	default:
		return models.ToolNone
	}
}

func classifierPrompt(userInput string, searchEnabled bool) string {
	enabled := "否"
	if searchEnabled {
		enabled = "是"
	}
	return fmt.Sprintf(`分析用户问题并选择合适的工具：

用户问题：%s
搜索功能启用：%s

可用工具：
1. %s - 创建任务列表（TODO List），适用于需要规划、安排、待办事项的场景
2. %s - 搜索最新信息，适用于需要最新数据、新闻、趋势的场景
3. %s - 制定学习目标，适用于需要目标设定、学习计划的场景

选择规则：
1. 如果需要规划、计划、待办事项 → %s
2. 如果需要最新信息、新闻、趋势，且搜索功能启用 → %s
3. 如果需要制定目标、学习计划 → %s
4. 其他情况 → %s

只返回工具名称或"none"，不要有其他内容。`,
		userInput, enabled,
		toolNameTodo, toolNameSearch, toolNameGoal,
		toolNameTodo, toolNameSearch, toolNameGoal, toolNameNone)
}
