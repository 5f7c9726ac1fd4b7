package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunToolLoop_StopsWhenNoToolCalls(t *testing.T) {
	calls := 0
	step := func(ctx context.Context, systemPrompt string, tools []ToolDef, messages []Message) (Response, error) {
		calls++
		return Response{Text: "final answer", Usage: &Usage{PromptTokens: 5, CompletionTokens: 3}}, nil
	}

	result, err := runToolLoop(context.Background(), 10, ChatRequest{Messages: []Message{{Role: RoleUser, Parts: []Part{{Kind: PartText, Text: "hi"}}}}}, step)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "final answer", result.Text)
	require.NotNil(t, result.Usage)
	assert.EqualValues(t, 5, result.Usage.PromptTokens)
	assert.EqualValues(t, 3, result.Usage.CompletionTokens)
}

func TestRunToolLoop_InvokesToolsAndAggregatesUsage(t *testing.T) {
	step := func(ctx context.Context, systemPrompt string, tools []ToolDef, messages []Message) (Response, error) {
		// First call requests a tool; once the tool result is in the
		// history, the second call returns final text.
		for _, m := range messages {
			if m.ToolResult != nil {
				return Response{Text: "done", Usage: &Usage{PromptTokens: 1, CompletionTokens: 1}}, nil
			}
		}
		return Response{
			ToolCalls: []ToolCall{{ID: "call-1", Name: "lookup", Arguments: map[string]any{"q": "x"}}},
			Usage:     &Usage{PromptTokens: 2, CompletionTokens: 2},
		}, nil
	}

	var invoked string
	req := ChatRequest{
		Messages: []Message{{Role: RoleUser, Parts: []Part{{Kind: PartText, Text: "look this up"}}}},
		Invoke: func(ctx context.Context, name string, args map[string]any) (string, error) {
			invoked = name
			return "result data", nil
		},
	}

	result, err := runToolLoop(context.Background(), 10, req, step)
	require.NoError(t, err)
	assert.Equal(t, "lookup", invoked)
	assert.Equal(t, "done", result.Text)
	require.NotNil(t, result.Usage)
	assert.EqualValues(t, 3, result.Usage.PromptTokens)
	assert.EqualValues(t, 3, result.Usage.CompletionTokens)
}

func TestRunToolLoop_CapsAtDepthAndReturnsLastText(t *testing.T) {
	calls := 0
	step := func(ctx context.Context, systemPrompt string, tools []ToolDef, messages []Message) (Response, error) {
		calls++
		return Response{
			Text:      "intermediate",
			ToolCalls: []ToolCall{{ID: "c", Name: "loopy"}},
		}, nil
	}

	req := ChatRequest{
		Messages: []Message{{Role: RoleUser}},
		Invoke: func(ctx context.Context, name string, args map[string]any) (string, error) {
			return "ok", nil
		},
	}

	result, err := runToolLoop(context.Background(), 3, req, step)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, "intermediate", result.Text)
}

func TestRunToolLoop_ToolInvocationErrorIsFedBackAsToolResult(t *testing.T) {
	var sawError bool
	step := func(ctx context.Context, systemPrompt string, tools []ToolDef, messages []Message) (Response, error) {
		for _, m := range messages {
			if m.ToolResult != nil && m.ToolResult.IsError {
				sawError = true
				return Response{Text: "recovered"}, nil
			}
		}
		return Response{ToolCalls: []ToolCall{{ID: "c1", Name: "broken"}}}, nil
	}

	req := ChatRequest{
		Messages: []Message{{Role: RoleUser}},
		Invoke: func(ctx context.Context, name string, args map[string]any) (string, error) {
			return "", assert.AnError
		},
	}

	result, err := runToolLoop(context.Background(), 5, req, step)
	require.NoError(t, err)
	assert.True(t, sawError)
	assert.Equal(t, "recovered", result.Text)
}
