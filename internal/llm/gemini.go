package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GeminiAdapter wraps the Gemini REST API directly, grounded on the
// teacher's GeminiProvider (internal/core/llm/gemini.go): a plain
// *http.Client hitting generativelanguage.googleapis.com rather than a
// generated SDK. Extended here with multi-turn history, tool-calling and
// image parts, which the teacher's single-shot GenerateResponse does not
// need but the bounded tool loop (§4.3) does.
type GeminiAdapter struct {
	apiKey string
	model  string
	depth  int
	client *http.Client
}

func NewGeminiAdapter(ctx context.Context, apiKey, model string, toolLoopDepth int) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, &PermanentLLMError{Cause: fmt.Errorf("GEMINI_API_KEY is not set")}
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiAdapter{
		apiKey: apiKey,
		model:  model,
		depth:  toolLoopDepth,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (a *GeminiAdapter) Chat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	return runToolLoop(ctx, a.depth, req, a.step)
}

// Gemini REST API request/response shapes, per the teacher's
// geminiRequest/geminiContent/geminiPart structs, widened with the
// functionCall/functionResponse/inlineData/tools fields a bare text
// provider never touches.
type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	GenerationConfig  geminiGenerationConfig  `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiPart struct {
	Text             string                `json:"text,omitempty"`
	InlineData       *geminiInlineData     `json:"inlineData,omitempty"`
	FunctionCall     *geminiFunctionCall   `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResp   `json:"functionResponse,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFunctionResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *GeminiAdapter) step(ctx context.Context, systemPrompt string, tools []ToolDef, messages []Message) (Response, error) {
	reqBody := geminiRequest{
		GenerationConfig: geminiGenerationConfig{Temperature: 0.7, MaxOutputTokens: 8192},
	}
	if systemPrompt != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}
	for _, m := range messages {
		reqBody.Contents = append(reqBody.Contents, a.toGeminiContent(m))
	}
	if len(tools) > 0 {
		var decls []geminiFunctionDecl
		for _, t := range tools {
			decls = append(decls, geminiFunctionDecl{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
		}
		reqBody.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, &PermanentLLMError{Cause: fmt.Errorf("failed to marshal request: %w", err)}
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", a.model, a.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return Response{}, &PermanentLLMError{Cause: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return Response{}, &TransientLLMError{Cause: fmt.Errorf("gemini request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &TransientLLMError{Cause: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return Response{}, classifyGeminiError(resp.StatusCode, body)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return Response{}, &TransientLLMError{Cause: fmt.Errorf("failed to parse response: %w", err)}
	}
	if len(geminiResp.Candidates) == 0 {
		return Response{}, &TransientLLMError{Cause: fmt.Errorf("no candidates returned")}
	}

	content := geminiResp.Candidates[0].Content
	result := Response{RawContent: content}
	for _, p := range content.Parts {
		switch {
		case p.FunctionCall != nil:
			result.ToolCalls = append(result.ToolCalls, ToolCall{Name: p.FunctionCall.Name, Arguments: p.FunctionCall.Args})
		case p.Text != "":
			result.Text += p.Text
		}
	}

	if geminiResp.UsageMetadata.PromptTokenCount > 0 || geminiResp.UsageMetadata.CandidatesTokenCount > 0 {
		result.Usage = &Usage{
			PromptTokens:     geminiResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
		}
	}

	return result, nil
}

func (a *GeminiAdapter) toGeminiContent(m Message) geminiContent {
	if m.RawContent != nil {
		if raw, ok := m.RawContent.(geminiContent); ok {
			return raw
		}
	}

	if m.ToolResult != nil {
		return geminiContent{
			Role: "user",
			Parts: []geminiPart{{
				FunctionResponse: &geminiFunctionResp{
					Name: m.ToolResult.Name,
					Response: map[string]any{
						"content": m.ToolResult.Content,
						"isError": m.ToolResult.IsError,
					},
				},
			}},
		}
	}

	role := "user"
	if m.Role == RoleAssistant {
		role = "model"
	}

	if len(m.ToolCalls) > 0 {
		var parts []geminiPart
		if text := textOf(m.Parts); text != "" {
			parts = append(parts, geminiPart{Text: text})
		}
		for _, tc := range m.ToolCalls {
			parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: tc.Arguments}})
		}
		return geminiContent{Role: "model", Parts: parts}
	}

	var parts []geminiPart
	for _, p := range m.Parts {
		switch p.Kind {
		case PartText:
			if p.Text != "" {
				parts = append(parts, geminiPart{Text: p.Text})
			}
		case PartImage, PartFile:
			parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: p.MimeType, Data: p.URL}})
		}
	}
	return geminiContent{Role: role, Parts: parts}
}

func classifyGeminiError(status int, body []byte) error {
	var errBody geminiErrorBody
	_ = json.Unmarshal(body, &errBody)
	err := fmt.Errorf("gemini error (status %d): %s", status, string(body))
	if status == http.StatusUnauthorized || status == http.StatusBadRequest {
		return &PermanentLLMError{Cause: err}
	}
	return &TransientLLMError{Cause: err}
}
