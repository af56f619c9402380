package assistant

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"atende_backend/internal/conversation"
	"atende_backend/platform/logger"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const testFallback = "fallback"

type scriptedLLM struct {
	responses []*genai.Content
	errs      []error
	seen      [][]*genai.Content
	configs   []*genai.GenerateContentConfig
}

func (s *scriptedLLM) Name() string { return "scripted" }

func (s *scriptedLLM) GenerateContent(_ context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	i := len(s.seen)
	s.seen = append(s.seen, append([]*genai.Content(nil), req.Contents...))
	s.configs = append(s.configs, req.Config)
	return func(yield func(*model.LLMResponse, error) bool) {
		if i < len(s.errs) && s.errs[i] != nil {
			yield(nil, s.errs[i])
			return
		}
		content := s.responses[len(s.responses)-1]
		if i < len(s.responses) {
			content = s.responses[i]
		}
		yield(&model.LLMResponse{Content: content}, nil)
	}
}

func textContent(text string) *genai.Content {
	return &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{genai.NewPartFromText(text)}}
}

func callContent(id, name string) *genai.Content {
	return &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{
		FunctionCall: &genai.FunctionCall{ID: id, Name: name, Args: map[string]any{}},
	}}}
}

func echoTool(name string, calls *int, out string, err error) Tool {
	return Tool{
		Name: name,
		Execute: func(context.Context, map[string]any) (string, error) {
			*calls++
			return out, err
		},
	}
}

// toolResult returns the result fed back for the last tool turn seen by the
// provider on the given call.
func toolResult(t *testing.T, contents []*genai.Content) string {
	t.Helper()
	last := contents[len(contents)-1]
	for _, p := range last.Parts {
		if p.FunctionResponse != nil {
			s, _ := p.FunctionResponse.Response["result"].(string)
			return s
		}
	}
	t.Fatalf("no function response in last content")
	return ""
}

func TestLoopReturnsFinalText(t *testing.T) {
	llm := &scriptedLLM{responses: []*genai.Content{textContent("Olá!")}}
	res := NewLoop(llm, testFallback, logger.Nop()).Run(context.Background(), LoopInput{Message: "oi"})

	if res.Fallback || res.Text != "Olá!" || res.Steps != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLoopIsBoundedWhenToolsNeverStop(t *testing.T) {
	calls := 0
	llm := &scriptedLLM{responses: []*genai.Content{callContent("c1", "ping")}}
	res := NewLoop(llm, testFallback, logger.Nop()).Run(context.Background(), LoopInput{
		Message:  "loop",
		Tools:    []Tool{echoTool("ping", &calls, "pong", nil)},
		MaxSteps: 3,
	})

	if !res.Fallback || res.Text != testFallback {
		t.Fatalf("expected fallback, got %+v", res)
	}
	if res.Steps != 3 || len(llm.seen) != 3 || calls != 3 || len(res.ToolCalls) != 3 {
		t.Fatalf("expected 3 bounded steps, got steps=%d provider=%d tools=%d", res.Steps, len(llm.seen), calls)
	}
}

func TestLoopFeedsToolErrorsBack(t *testing.T) {
	calls := 0
	llm := &scriptedLLM{responses: []*genai.Content{callContent("c1", "lookup"), textContent("Não encontrei.")}}
	res := NewLoop(llm, testFallback, logger.Nop()).Run(context.Background(), LoopInput{
		Message: "busca",
		Tools:   []Tool{echoTool("lookup", &calls, "", errors.New("boom"))},
	})

	if res.Fallback || res.Text != "Não encontrei." {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := toolResult(t, llm.seen[1]); got != "erro: boom" {
		t.Fatalf("expected error string fed back, got %q", got)
	}
}

func TestLoopRecoversToolPanic(t *testing.T) {
	llm := &scriptedLLM{responses: []*genai.Content{callContent("c1", "bad"), textContent("ok")}}
	tool := Tool{Name: "bad", Execute: func(context.Context, map[string]any) (string, error) {
		panic("nil map")
	}}
	res := NewLoop(llm, testFallback, logger.Nop()).Run(context.Background(), LoopInput{Message: "x", Tools: []Tool{tool}})

	if res.Text != "ok" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := toolResult(t, llm.seen[1]); !strings.HasPrefix(got, "erro:") {
		t.Fatalf("expected panic converted to error text, got %q", got)
	}
}

func TestLoopTruncatesToolResults(t *testing.T) {
	calls := 0
	llm := &scriptedLLM{responses: []*genai.Content{callContent("c1", "big"), textContent("pronto")}}
	NewLoop(llm, testFallback, logger.Nop()).Run(context.Background(), LoopInput{
		Message: "x",
		Tools:   []Tool{echoTool("big", &calls, strings.Repeat("á", 5000), nil)},
	})

	if got := toolResult(t, llm.seen[1]); len([]rune(got)) != MaxToolResultChars {
		t.Fatalf("expected %d characters, got %d", MaxToolResultChars, len([]rune(got)))
	}
}

func TestLoopProviderErrorYieldsFallback(t *testing.T) {
	llm := &scriptedLLM{errs: []error{errors.New("timeout")}, responses: []*genai.Content{textContent("unused")}}
	res := NewLoop(llm, testFallback, logger.Nop()).Run(context.Background(), LoopInput{Message: "x"})

	if !res.Fallback || res.Text != testFallback || res.Steps != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLoopWithoutProvider(t *testing.T) {
	res := NewLoop(nil, testFallback, logger.Nop()).Run(context.Background(), LoopInput{Message: "x"})
	if !res.Fallback || res.Text != testFallback {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLoopIgnoresInvalidToolCalls(t *testing.T) {
	calls := 0
	content := &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{
		{FunctionCall: &genai.FunctionCall{ID: "c1", Name: "unknown"}},
		{FunctionCall: &genai.FunctionCall{Name: "ping"}},
		genai.NewPartFromText("resposta direta"),
	}}
	llm := &scriptedLLM{responses: []*genai.Content{content}}
	res := NewLoop(llm, testFallback, logger.Nop()).Run(context.Background(), LoopInput{
		Message: "x",
		Tools:   []Tool{echoTool("ping", &calls, "pong", nil)},
	})

	if res.Text != "resposta direta" || calls != 0 {
		t.Fatalf("unexpected result: %+v, calls=%d", res, calls)
	}
}

func TestLoopDeduplicatesTrailingUserMessage(t *testing.T) {
	now := time.Now()
	history := []conversation.Message{
		{Role: conversation.RoleUser, Text: "oi", At: now},
		{Role: conversation.RoleAssistant, Text: "Olá!", At: now},
		{Role: conversation.RoleUser, Text: "quero agendar", At: now},
	}
	llm := &scriptedLLM{responses: []*genai.Content{textContent("claro")}}
	NewLoop(llm, testFallback, logger.Nop()).Run(context.Background(), LoopInput{
		System:  "sistema",
		History: history,
		Message: "quero agendar",
	})

	contents := llm.seen[0]
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[1].Role != genai.RoleModel || contents[2].Parts[0].Text != "quero agendar" {
		t.Fatalf("unexpected contents order")
	}
	if cfg := llm.configs[0]; cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "sistema" {
		t.Fatalf("expected system instruction")
	}
}

func TestLoopDeclaresTools(t *testing.T) {
	calls := 0
	llm := &scriptedLLM{responses: []*genai.Content{textContent("ok")}}
	NewLoop(llm, testFallback, logger.Nop()).Run(context.Background(), LoopInput{
		Message: "x",
		Tools:   []Tool{echoTool("ping", &calls, "", nil)},
	})

	cfg := llm.configs[0]
	if len(cfg.Tools) != 1 || len(cfg.Tools[0].FunctionDeclarations) != 1 || cfg.Tools[0].FunctionDeclarations[0].Name != "ping" {
		t.Fatalf("expected ping declared, got %+v", cfg.Tools)
	}
}

func TestClampSteps(t *testing.T) {
	cases := map[int]int{-1: DefaultMaxSteps, 0: DefaultMaxSteps, 1: 1, 3: 3, 6: 6, 9: MaxSteps}
	for in, want := range cases {
		if got := ClampSteps(in); got != want {
			t.Fatalf("ClampSteps(%d) = %d, want %d", in, got, want)
		}
	}
}
