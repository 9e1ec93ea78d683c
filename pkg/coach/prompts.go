package coach

import (
	"fmt"
	"strings"

	"github.com/choraleia/coach/pkg/models"
)

const (
	thinkingSystemPrompt = "你是一个专业的分析师，请基于对话历史展示你的思考过程。"
	todoSystemPrompt     = "你是一个专业的任务规划助手。"
	todoHistoryHint      = "请基于对话历史提供连贯的任务规划。"
	goalSystemPrompt     = "你是一个专业的兴趣教练，擅长制定学习计划和目标。"
	generalSystemPrompt  = "你是一个专业的兴趣教练。"
)

// Input is what every executor sees of a turn.
type Input struct {
	UserInput      string
	SearchDigest   string
	ThinkingDigest string
	History        []models.HistoryMessage
}

func thinkingPrompt(userInput, searchDigest string, history []models.HistoryMessage) string {
	var b strings.Builder
	b.WriteString(thinkingSystemPrompt)
	b.WriteString("\n\n用户当前需求：")
	b.WriteString(userInput)
	b.WriteString("\n")
	b.WriteString(BuildHistoryContext(history, ThinkingRecapWindow, true))
	b.WriteString("\n\n")
	if searchDigest != "" {
		fmt.Fprintf(&b, "相关搜索信息：\n%s\n", searchDigest)
	}
	b.WriteString(`
请从以下几个方面进行深度分析：
1. 基于对话历史，需求的核心目标是什么？
2. 需要哪些关键步骤？
3. 可能的难点和挑战是什么？
4. 如何合理分配时间和优先级？
5. 最佳实践和建议是什么？

请详细分析：`)
	return b.String()
}

func todoSystem(history []models.HistoryMessage) string {
	if len(history) > 0 {
		return todoSystemPrompt + todoHistoryHint
	}
	return todoSystemPrompt
}

func todoPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("你是一个专业的任务规划助手。请根据用户需求创建结构化的TODO列表。\n\n用户当前需求：")
	b.WriteString(in.UserInput)
	b.WriteString("\n")
	b.WriteString(BuildHistoryContext(in.History, RecapWindow, true))
	if in.ThinkingDigest != "" {
		fmt.Fprintf(&b, "\n\n深度分析：\n%s", in.ThinkingDigest)
	}
	if in.SearchDigest != "" {
		fmt.Fprintf(&b, "\n\n相关搜索信息：\n%s", in.SearchDigest)
	}
	b.WriteString(`

请严格按照以下JSON格式返回，不要有任何额外的文本、解释或问候语：

{
  "type": "todo_list",
  "title": "简洁的标题，不超过10个字",
  "items": [
    {
      "id": "1",
      "content": "具体可执行的任务描述",
      "priority": "high/medium/low",
      "estimated_time": 数字（1-480之间）,
      "category": "任务分类"
    }
  ]
}

要求：
1. 生成3-8个具体、可执行的任务
2. 合理分配优先级（high/medium/low）
3. 预估时间要合理（1-480分钟）
4. 分类要明确`)

	n := 5
	if len(in.History) > 0 {
		fmt.Fprintf(&b, "\n%d. 请基于对话历史优化任务列表，保持连贯性", n)
		n++
	}
	if in.ThinkingDigest != "" {
		fmt.Fprintf(&b, "\n%d. 请基于深度分析优化任务列表", n)
		n++
	}
	if in.SearchDigest != "" {
		fmt.Fprintf(&b, "\n%d. 请结合搜索信息创建更合理的任务", n)
	}
	return b.String()
}

func goalPrompt(in Input) string {
	interest, level := ExtractInterestAndLevel(in.UserInput, in.History)

	var b strings.Builder
	fmt.Fprintf(&b, "作为专业兴趣教练，请为用户制定个性化的%s学习目标。\n\n", goalTimeframe)
	b.WriteString("用户信息：\n")
	fmt.Fprintf(&b, "- 兴趣领域：%s\n", interest)
	fmt.Fprintf(&b, "- 当前水平：%s\n", level)
	fmt.Fprintf(&b, "- 时间框架：%s", goalTimeframe)
	b.WriteString(BuildHistoryContext(in.History, RecapWindow, true))
	if in.ThinkingDigest != "" {
		fmt.Fprintf(&b, "\n\n深度分析：\n%s", in.ThinkingDigest)
	}
	if in.SearchDigest != "" {
		fmt.Fprintf(&b, "\n\n相关搜索信息：\n%s", in.SearchDigest)
	}
	fmt.Fprintf(&b, `

请生成具体、可衡量、可实现、相关、有时限的(SMART)目标。
请使用Markdown格式组织你的回答，包括：
1. **总体目标** - 简洁的总体描述
2. **具体目标** - 3-5个具体可衡量的目标
3. **时间安排** - %s的时间规划
4. **评估标准** - 如何评估进度和成功
5. **资源建议** - 推荐的学习资源`, goalTimeframe)
	return b.String()
}

func generalPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("你是一个专业的兴趣教练。基于以下信息回答用户问题：\n\n用户当前问题：")
	b.WriteString(in.UserInput)
	b.WriteString("\n")
	b.WriteString(BuildHistoryContext(in.History, RecapWindow, true))
	b.WriteString("\n\n")
	if in.SearchDigest != "" {
		fmt.Fprintf(&b, "**相关搜索信息：**\n%s\n", in.SearchDigest)
	}
	if in.ThinkingDigest != "" {
		fmt.Fprintf(&b, "**深度分析：**\n%s\n", in.ThinkingDigest)
	}
	b.WriteString("\n请提供专业、实用的建议：")
	return b.String()
}
