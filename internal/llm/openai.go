package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter wraps sashabaranov/go-openai's chat-completions API,
// grounded on the teacher's OpenAIProvider (internal/core/llm/openai.go):
// same DefaultConfig+HTTPClient timeout construction, extended here with
// Tools/ToolCalls so the bounded tool loop (§4.3) has something to drive.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
	depth  int
}

// NewOpenAIAdapter constructs an adapter. apiKey comes from the caller
// (which reads it from the environment, failing fast if missing, per
// §4.3's construction contract).
func NewOpenAIAdapter(apiKey, model string, toolLoopDepth int) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, &PermanentLLMError{Cause: fmt.Errorf("OPENAI_API_KEY is not set")}
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	config := openai.DefaultConfig(apiKey)
	config.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(config),
		model:  model,
		depth:  toolLoopDepth,
	}, nil
}

func (a *OpenAIAdapter) Chat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	return runToolLoop(ctx, a.depth, req, a.step)
}

func (a *OpenAIAdapter) step(ctx context.Context, systemPrompt string, tools []ToolDef, messages []Message) (Response, error) {
	request := openai.ChatCompletionRequest{Model: a.model}

	if systemPrompt != "" {
		request.Messages = append(request.Messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: systemPrompt,
		})
	}
	for _, m := range messages {
		request.Messages = append(request.Messages, a.toOpenAIMessage(m))
	}

	for _, t := range tools {
		request.Tools = append(request.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	completion, err := a.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return Response{}, classifyOpenAIError(err)
	}
	if len(completion.Choices) == 0 {
		return Response{}, &TransientLLMError{Cause: fmt.Errorf("no response from OpenAI")}
	}

	choice := completion.Choices[0]
	resp := Response{
		Text:       choice.Message.Content,
		RawContent: choice.Message,
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	if completion.Usage.TotalTokens > 0 {
		resp.Usage = &Usage{
			PromptTokens:     int64(completion.Usage.PromptTokens),
			CompletionTokens: int64(completion.Usage.CompletionTokens),
		}
	}

	return resp, nil
}

// toOpenAIMessage reinjects RawContent when the previous step produced it
// (preserving the exact assistant turn the model emitted, tool calls
// included), otherwise reconstructs the message from its portable
// Parts/ToolResult form.
func (a *OpenAIAdapter) toOpenAIMessage(m Message) openai.ChatCompletionMessage {
	if m.RawContent != nil {
		if msg, ok := m.RawContent.(openai.ChatCompletionMessage); ok {
			return msg
		}
	}

	if m.ToolResult != nil {
		return openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    m.ToolResult.Content,
			ToolCallID: m.ToolResult.ToolCallID,
		}
	}

	if len(m.ToolCalls) > 0 {
		var calls []openai.ToolCall
		for _, tc := range m.ToolCalls {
			argsData, _ := json.Marshal(tc.Arguments)
			calls = append(calls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(argsData),
				},
			})
		}
		return openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   textOf(m.Parts),
			ToolCalls: calls,
		}
	}

	if m.Role == RoleAssistant {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: textOf(m.Parts)}
	}

	var contentParts []openai.ChatMessagePart
	for _, p := range m.Parts {
		switch p.Kind {
		case PartText:
			if p.Text != "" {
				contentParts = append(contentParts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
			}
		case PartImage:
			contentParts = append(contentParts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: p.URL},
			})
		case PartFile:
			// The chat-completions surface has no generic file part;
			// degrade to a text reference so the model at least sees it.
			contentParts = append(contentParts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: fmt.Sprintf("[file attached: %s (%s)]", p.Filename, p.URL),
			})
		}
	}
	if len(contentParts) == 1 && contentParts[0].Type == openai.ChatMessagePartTypeText {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: contentParts[0].Text}
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: contentParts}
}

func textOf(parts []Part) string {
	for _, p := range parts {
		if p.Kind == PartText {
			return p.Text
		}
	}
	return ""
}

func classifyOpenAIError(err error) error {
	// go-openai surfaces auth/config failures as an *openai.APIError with
	// a 401/400 HTTPStatusCode; anything else (timeouts, 5xx, rate
	// limits) is treated as transient since the pipeline does not
	// auto-retry either way (§4.3).
	var apiErr *openai.APIError
	if asOpenAIAPIError(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 400:
			return &PermanentLLMError{Cause: err}
		}
	}
	return &TransientLLMError{Cause: err}
}

func asOpenAIAPIError(err error, target **openai.APIError) bool {
	if e, ok := err.(*openai.APIError); ok {
		*target = e
		return true
	}
	return false
}
