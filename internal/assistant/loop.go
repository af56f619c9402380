package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"atende_backend/internal/conversation"
	"atende_backend/platform/logger"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const (
	DefaultMaxSteps = 4
	MinSteps        = 1
	MaxSteps        = 6
)

// ErrProviderUnavailable is logged when the completion provider cannot answer.
var ErrProviderUnavailable = errors.New("completion provider unavailable")

// LoopInput is one bounded exchange.
type LoopInput struct {
	System   string
	History  []conversation.Message
	Message  string
	Tools    []Tool
	MaxSteps int
}

// LoopResult is the outcome of a run. Fallback is set when the provider
// failed or the step bound was exhausted; Text then holds the fallback text.
type LoopResult struct {
	Text      string
	Fallback  bool
	Steps     int
	ToolCalls []string
}

// Loop drives the provider through tool calls until it answers with text.
type Loop struct {
	llm      model.LLM
	fallback string
	log      *logger.Logger
}

// NewLoop creates a loop. fallback is the reply used whenever the provider
// does not produce a final answer.
func NewLoop(llm model.LLM, fallback string, log *logger.Logger) *Loop {
	return &Loop{llm: llm, fallback: fallback, log: log}
}

// ClampSteps bounds a configured step count. Unset values use the default.
func ClampSteps(n int) int {
	switch {
	case n < MinSteps:
		return DefaultMaxSteps
	case n > MaxSteps:
		return MaxSteps
	}
	return n
}

// Run executes the loop. It never returns an error: provider failures and
// an exhausted step bound both yield the fallback text.
func (l *Loop) Run(ctx context.Context, in LoopInput) (res LoopResult) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("assistant: loop panic", "panic", r)
			res = LoopResult{Text: l.fallback, Fallback: true, Steps: res.Steps, ToolCalls: res.ToolCalls}
		}
	}()

	if l.llm == nil {
		return LoopResult{Text: l.fallback, Fallback: true}
	}

	tools := make(map[string]Tool, len(in.Tools))
	decls := make([]*genai.FunctionDeclaration, 0, len(in.Tools))
	for _, t := range in.Tools {
		tools[t.Name] = t
		decls = append(decls, t.declaration())
	}

	req := &model.LLMRequest{
		Model:    l.llm.Name(),
		Contents: seedContents(in.History, in.Message),
		Config:   &genai.GenerateContentConfig{},
	}
	if strings.TrimSpace(in.System) != "" {
		req.Config.SystemInstruction = &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{genai.NewPartFromText(in.System)},
		}
	}
	if len(decls) > 0 {
		req.Config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	maxSteps := ClampSteps(in.MaxSteps)
	for step := 1; step <= maxSteps; step++ {
		res.Steps = step
		content, err := l.generate(ctx, req)
		if err != nil {
			l.log.Warn("assistant: provider call failed", "step", step, "error", err)
			return LoopResult{Text: l.fallback, Fallback: true, Steps: step, ToolCalls: res.ToolCalls}
		}

		text, calls := splitResponse(content, tools)
		if len(calls) == 0 {
			if text != "" {
				res.Text = text
				return res
			}
			l.log.Warn("assistant: provider returned neither text nor tool calls", "step", step)
			continue
		}

		req.Contents = append(req.Contents, &genai.Content{Role: genai.RoleModel, Parts: callParts(calls)})
		results := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			res.ToolCalls = append(res.ToolCalls, call.Name)
			output := l.execute(ctx, tools[call.Name], call)
			results = append(results, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       call.ID,
				Name:     call.Name,
				Response: map[string]any{"result": output},
			}})
		}
		req.Contents = append(req.Contents, &genai.Content{Role: genai.RoleUser, Parts: results})
	}

	l.log.Warn("assistant: step budget exhausted", "maxSteps", maxSteps, "toolCalls", len(res.ToolCalls))
	return LoopResult{Text: l.fallback, Fallback: true, Steps: maxSteps, ToolCalls: res.ToolCalls}
}

func (l *Loop) generate(ctx context.Context, req *model.LLMRequest) (*genai.Content, error) {
	var last *model.LLMResponse
	for resp, err := range l.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		if resp != nil {
			last = resp
		}
	}
	if last == nil || last.Content == nil {
		return nil, fmt.Errorf("%w: empty response", ErrProviderUnavailable)
	}
	return last.Content, nil
}

// execute runs one tool. Errors and panics become the tool's result text.
func (l *Loop) execute(ctx context.Context, t Tool, call *genai.FunctionCall) (output string) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("assistant: tool panic", "tool", call.Name, "panic", r)
			output = fmt.Sprintf("erro: %v", r)
		}
	}()

	out, err := t.Execute(ctx, call.Args)
	if err != nil {
		l.log.Warn("assistant: tool failed", "tool", call.Name, "error", err)
		return truncateResult("erro: " + err.Error())
	}
	return truncateResult(out)
}

// seedContents builds history plus the current message, dropping a trailing
// history entry that repeats the current message.
func seedContents(history []conversation.Message, message string) []*genai.Content {
	if n := len(history); n > 0 {
		last := history[n-1]
		if last.Role == conversation.RoleUser && strings.TrimSpace(last.Text) == strings.TrimSpace(message) {
			history = history[:n-1]
		}
	}

	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		role := genai.RoleUser
		if m.Role == conversation.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{genai.NewPartFromText(m.Text)}})
	}
	contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{genai.NewPartFromText(message)}})
	return contents
}

// splitResponse keeps only tool calls that carry an id and name a known tool.
func splitResponse(content *genai.Content, tools map[string]Tool) (string, []*genai.FunctionCall) {
	var calls []*genai.FunctionCall
	var texts []string
	for _, part := range content.Parts {
		if part == nil {
			continue
		}
		if fc := part.FunctionCall; fc != nil {
			if _, known := tools[fc.Name]; known && fc.ID != "" {
				calls = append(calls, fc)
			}
			continue
		}
		if t := strings.TrimSpace(part.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n"), calls
}

func callParts(calls []*genai.FunctionCall) []*genai.Part {
	parts := make([]*genai.Part, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, &genai.Part{FunctionCall: c})
	}
	return parts
}
