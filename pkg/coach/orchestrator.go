package coach

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/choraleia/coach/pkg/llm"
	"github.com/choraleia/coach/pkg/metrics"
	"github.com/choraleia/coach/pkg/models"
	"github.com/choraleia/coach/pkg/search"
	"github.com/choraleia/coach/pkg/utils"
)

const dispatchErrorMessage = "抱歉，处理您的请求时出现错误。"

const (
	stageClassify = "classify"
	stageSearch   = "search"
	stageThink    = "think"
	stageDispatch = "dispatch"
)

// Request carries everything one turn needs. Nothing request-scoped is
// kept on the Orchestrator.
type Request struct {
	UserID          string
	Input           string
	UseWebSearch    bool
	UseDeepThinking bool
	History         []models.HistoryMessage
	// Tool skips classification when set.
	Tool models.ToolType
}

// Options wires the optional collaborators of an Orchestrator.
type Options struct {
	Classifier       Classifier
	SearchProvider   search.Provider
	SearchMaxResults int
	Metrics          *metrics.Metrics
}

// Orchestrator runs CLASSIFY, SEARCH, THINK and DISPATCH in order. Each
// stage produces on its own channel; one consumer forwards them in order.
type Orchestrator struct {
	classifier Classifier
	search     *SearchStage
	thinking   *ThinkingStage
	todo       *TodoExecutor
	goal       *GoalExecutor
	general    *GeneralExecutor
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewOrchestrator(client llm.Client, opts Options) *Orchestrator {
	o := &Orchestrator{
		classifier: opts.Classifier,
		thinking:   NewThinkingStage(client),
		todo:       NewTodoExecutor(client),
		goal:       NewGoalExecutor(client),
		general:    NewGeneralExecutor(client),
		metrics:    opts.Metrics,
		logger:     utils.GetLogger(),
	}
	if o.classifier == nil {
		o.classifier = NewModelClassifier(client)
	}
	if opts.SearchProvider != nil {
		o.search = NewSearchStage(opts.SearchProvider, opts.SearchMaxResults)
	}
	return o
}

func (o *Orchestrator) classify(ctx context.Context, req Request) models.ToolType {
	tool := req.Tool
	if tool == "" {
		tool = o.classifier.Classify(ctx, req.Input, req.UseWebSearch && o.search != nil)
	}
	o.metrics.ToolSelected(string(tool))
	return tool
}

// Stream runs the turn and returns its events. The channel is always
// closed, including on cancellation.
func (o *Orchestrator) Stream(ctx context.Context, req Request) <-chan models.StreamEvent {
	out := make(chan models.StreamEvent)

	go func() {
		defer close(out)

		tool := models.ToolNone
		if !forward(ctx, out, o.stage(ctx, stageClassify, nil, func(emit emitFunc) error {
			tool = o.classify(ctx, req)
			return nil
		})) {
			return
		}
		o.logger.Debug("Turn classified", "userID", req.UserID, "tool", tool)

		in := Input{
			UserInput: req.Input,
			History:   req.History,
		}

		if req.UseWebSearch && o.search != nil {
			var digest string
			if !forward(ctx, out, o.stage(ctx, stageSearch, nil, func(emit emitFunc) error {
				digest = o.search.Stream(ctx, tool, req.Input, req.History, emit)
				return nil
			})) {
				return
			}
			o.metrics.SearchDone(digest != "")
			in.SearchDigest = digest
		}

		if req.UseDeepThinking {
			var digest string
			if !forward(ctx, out, o.stage(ctx, stageThink, nil, func(emit emitFunc) error {
				digest = o.thinking.Stream(ctx, in, true, emit)
				return nil
			})) {
				return
			}
			in.ThinkingDigest = digest
		}

		apology := models.ContentEvent(dispatchErrorMessage)
		forward(ctx, out, o.stage(ctx, stageDispatch, &apology, func(emit emitFunc) error {
			return o.dispatch(ctx, tool, in, emit)
		}))
	}()

	return out
}

func (o *Orchestrator) dispatch(ctx context.Context, tool models.ToolType, in Input, emit emitFunc) error {
	switch tool {
	case models.ToolTodo:
		return o.todo.Stream(ctx, in, emit)
	case models.ToolGoal:
		return o.goal.Stream(ctx, in, emit)
	case models.ToolSearch, models.ToolNone:
		return o.general.Stream(ctx, in, emit)
	default:
		o.logger.Warn("Unknown tool, answering directly", "tool", tool)
		return o.general.Stream(ctx, in, emit)
	}
}

// stage runs produce in its own goroutine. A panic, or an error while ctx
// is still live, emits onFailure when it is set.
func (o *Orchestrator) stage(ctx context.Context, name string, onFailure *models.StreamEvent, produce func(emit emitFunc) error) <-chan models.StreamEvent {
	ch := make(chan models.StreamEvent)
	emit := func(ev models.StreamEvent) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		start := time.Now()
		defer close(ch)
		defer func() {
			o.metrics.ObserveStage(name, time.Since(start))
		}()
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("Stage panicked", "stage", name, "panic", r, "stack", string(debug.Stack()))
				if onFailure != nil {
					emit(*onFailure)
				}
			}
		}()

		if err := produce(emit); err != nil && ctx.Err() == nil {
			o.logger.Error("Stage failed", "stage", name, "error", err)
			if onFailure != nil {
				emit(*onFailure)
			}
		}
	}()
	return ch
}

// forward copies in to out until in closes. It returns false when ctx
// ends first.
func forward(ctx context.Context, out chan<- models.StreamEvent, in <-chan models.StreamEvent) bool {
	for {
		select {
		case ev, ok := <-in:
			if !ok {
				return ctx.Err() == nil
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return false
			}
		case <-ctx.Done():
			return false
		}
	}
}

// Invoke runs the turn without streaming. Only a missing model
// configuration is returned as an error; other failures degrade.
func (o *Orchestrator) Invoke(ctx context.Context, req Request) (*models.InvokeResult, error) {
	tool := o.classify(ctx, req)

	in := Input{
		UserInput: req.Input,
		History:   req.History,
	}

	if req.UseWebSearch && o.search != nil {
		res := o.search.Search(ctx, tool, req.Input, req.History)
		o.metrics.SearchDone(res.Success)
		in.SearchDigest = Digest(res)
	}

	if req.UseDeepThinking {
		thinking, err := o.thinking.Invoke(ctx, in)
		if errors.Is(err, llm.ErrNotConfigured) {
			return nil, err
		}
		if err != nil {
			o.logger.Warn("Thinking failed", "error", err)
		}
		in.ThinkingDigest = thinking
	}

	result := &models.InvokeResult{
		ToolType:        tool,
		SearchContent:   in.SearchDigest,
		ThinkingContent: in.ThinkingDigest,
	}

	switch tool {
	case models.ToolTodo:
		data, err := o.todo.Invoke(ctx, in)
		if err != nil {
			return nil, err
		}
		result.TodoData = data
		result.Content = TodoSummary(data)
	case models.ToolGoal:
		text, err := o.goal.Invoke(ctx, in)
		if errors.Is(err, llm.ErrNotConfigured) {
			return nil, err
		}
		result.Content = text
	default:
		text, err := o.general.Invoke(ctx, in)
		if errors.Is(err, llm.ErrNotConfigured) {
			return nil, err
		}
		result.Content = text
	}
	return result, nil
}
