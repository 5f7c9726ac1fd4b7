package llm

import (
	"context"
)

// stepFunc performs exactly one model call and returns its raw response;
// vendor adapters supply this and runToolLoop drives the bounded loop
// around it, so the depth-10 cap (§4.3) and usage aggregation are written
// once instead of once per vendor.
type stepFunc func(ctx context.Context, systemPrompt string, tools []ToolDef, messages []Message) (Response, error)

// maxToolLoopDepth is the default cap on tool-loop steps per turn; §4.3
// allows this to be configured per adapter construction.
const maxToolLoopDepth = 10

// runToolLoop drives step until the model returns no further tool calls
// or depth steps have run, accumulating usage across every step that
// reported one. On cap, the last model text (if any) is returned.
func runToolLoop(ctx context.Context, depth int, req ChatRequest, step stepFunc) (ChatResult, error) {
	if depth <= 0 {
		depth = maxToolLoopDepth
	}

	messages := append([]Message(nil), req.Messages...)
	var lastText string
	var aggregate *Usage

	for i := 0; i < depth; i++ {
		resp, err := step(ctx, req.SystemPrompt, req.Tools, messages)
		if err != nil {
			return ChatResult{}, err
		}
		if resp.Text != "" {
			lastText = resp.Text
		}
		if resp.Usage != nil {
			if aggregate == nil {
				aggregate = &Usage{}
			}
			aggregate.PromptTokens += resp.Usage.PromptTokens
			aggregate.CompletionTokens += resp.Usage.CompletionTokens
		}

		if len(resp.ToolCalls) == 0 {
			return ChatResult{Text: resp.Text, Usage: aggregate}, nil
		}

		messages = append(messages, Message{
			Role:       RoleAssistant,
			Parts:      []Part{{Kind: PartText, Text: resp.Text}},
			ToolCalls:  resp.ToolCalls,
			RawContent: resp.RawContent,
		})

		for _, tc := range resp.ToolCalls {
			var content string
			var isErr bool
			if req.Invoke == nil {
				content, isErr = "no tool invoker configured", true
			} else {
				out, err := req.Invoke(ctx, tc.Name, tc.Arguments)
				if err != nil {
					content, isErr = err.Error(), true
				} else {
					content = out
				}
			}
			messages = append(messages, Message{
				Role: RoleTool,
				ToolResult: &ToolResult{
					ToolCallID: tc.ID,
					Name:       tc.Name,
					Content:    content,
					IsError:    isErr,
				},
			})
		}
	}

	return ChatResult{Text: lastText, Usage: aggregate}, nil
}
