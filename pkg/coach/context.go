// Package coach runs one interest-coach turn: intent classification, an
// optional web search, an optional reasoning pass and the tool executor
// that writes the answer.
package coach

import (
	"fmt"
	"strings"

	"github.com/choraleia/coach/pkg/models"
)

const (
	// RecapWindow is how many history entries the executor prompts recap.
	RecapWindow = 4
	// ThinkingRecapWindow is the recap size of the reasoning prompt.
	ThinkingRecapWindow = 3

	DefaultInterest = "通用技能"
	DefaultLevel    = "beginner"

	goalTimeframe = "一个月"
)

var interestKeywords = []string{"健身", "编程", "音乐", "绘画", "舞蹈", "烹饪", "阅读"}

// levelKeywords is checked in order; the first level with a match wins.
var levelKeywords = []struct {
	level    string
	keywords []string
}{
	{"beginner", []string{"新手", "初学者", "小白", "刚入门"}},
	{"intermediate", []string{"中级", "有一定基础", "学过一些"}},
	{"advanced", []string{"高级", "精通", "专家", "熟练"}},
}

// BuildHistoryContext renders the last maxMessages history entries as a
// prompt section. It returns "" for an empty history.
func BuildHistoryContext(history []models.HistoryMessage, maxMessages int, showIndex bool) string {
	if len(history) == 0 {
		return ""
	}

	title := "对话上下文："
	if showIndex {
		title = "对话历史回顾："
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n\n**%s**\n", title)
	for i, msg := range lastN(history, maxMessages) {
		if showIndex {
			fmt.Fprintf(&b, "%d. ", i+1)
		}
		fmt.Fprintf(&b, "%s: %s\n", recapRole(msg.Role), msg.Content)
	}
	return b.String()
}

// recapRole labels everything that is not the user as the assistant.
func recapRole(r models.Role) string {
	switch r {
	case models.RoleUser:
		return models.RoleUser.DisplayName()
	case models.RoleAssistant, models.RoleSystem:
		return models.RoleAssistant.DisplayName()
	}
	return models.RoleAssistant.DisplayName()
}

func lastN(history []models.HistoryMessage, n int) []models.HistoryMessage {
	if n <= 0 || n >= len(history) {
		return history
	}
	return history[len(history)-n:]
}

// ExtractInterestAndLevel finds the first known interest and skill level
// mentioned anywhere in the history or the current input.
func ExtractInterestAndLevel(userInput string, history []models.HistoryMessage) (interest, level string) {
	parts := make([]string, 0, len(history)+1)
	for _, h := range history {
		parts = append(parts, h.Content)
	}
	parts = append(parts, userInput)
	text := strings.Join(parts, " ")

	interest = DefaultInterest
	for _, kw := range interestKeywords {
		if strings.Contains(text, kw) {
			interest = kw
			break
		}
	}

	level = DefaultLevel
	for _, lk := range levelKeywords {
		if containsAny(text, lk.keywords) {
			level = lk.level
			break
		}
	}
	return interest, level
}

// BuildSearchQuery shapes the web query for the selected tool and appends
// the last two user messages from history.
func BuildSearchQuery(tool models.ToolType, userInput string, history []models.HistoryMessage) string {
	var query string
	switch tool {
	case models.ToolTodo:
		query = userInput + " 任务规划 最佳实践 时间管理"
	case models.ToolGoal:
		interest, level := ExtractInterestAndLevel(userInput, history)
		query = fmt.Sprintf("%s学习目标 %s水平 最新方法", interest, level)
	case models.ToolSearch, models.ToolNone:
		query = userInput
	default:
		query = userInput
	}

	var recent []string
	for _, h := range history {
		if h.Role == models.RoleUser {
			recent = append(recent, h.Content)
		}
	}
	if len(recent) > 2 {
		recent = recent[len(recent)-2:]
	}
	if len(recent) > 0 {
		query = query + " " + strings.Join(recent, " ")
	}
	return query
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
