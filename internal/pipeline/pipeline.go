// Package pipeline implements the §4.5 MessagePipeline: one inbound
// message in, one AI turn persisted, one outbound reply out. Grounded on
// internal/core/agent/engine.go's Process entrypoint (provider lookup,
// persistence hooks) and the orchestrator's history-turn shaping, but
// restructured around the spec's explicit Store/ToolSet/Adapter/Ledger
// seams instead of the teacher's single Engine god-object.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/ledger"
	"github.com/chatgw/chatgateway/internal/llm"
	"github.com/chatgw/chatgateway/internal/store"
)

// historyWindow is N in §4.5 step 5.
const historyWindow = 20

// Uploader re-hosts inbound media to the configured object store. It is
// the pipeline's only dependency on the upload subsystem, kept as a
// narrow interface so pipeline never imports a specific vendor SDK.
type Uploader interface {
	Upload(ctx context.Context, data []byte, mimeType, filename string) (url string, err error)
}

// InboundAttachment is raw media already fetched by the calling channel
// (WhatsApp download, or a multipart upload on the public-chat side).
type InboundAttachment struct {
	Data     []byte
	MimeType string
	Filename string
}

// SessionContext is step 1's output: everything the turn needs that does
// not change across messages on the same session.
type SessionContext struct {
	UserID           string
	ProfileID        string
	ProfileName      string
	Source           store.ChatSource
	ConnectionName   string // whatsapp only
	SessionID        string
	SystemPromptText string
}

// Turn is one inbound message.
type Turn struct {
	Text       string
	Attachment *InboundAttachment
	UserName   string
}

// Result is what ProcessTurn hands back to the calling channel.
type Result struct {
	Text      string
	ToolCalls int
}

// Pipeline drives the ten-step turn.
type Pipeline struct {
	store    store.Store
	ledger   *ledger.Ledger
	uploader Uploader
	log      zerolog.Logger

	locks *keyedMutex
}

func New(s store.Store, l *ledger.Ledger, uploader Uploader, log zerolog.Logger) *Pipeline {
	return &Pipeline{store: s, ledger: l, uploader: uploader, log: log, locks: newKeyedMutex()}
}

// ProcessTurn runs the full ten-step turn described in §4.5. adapter and
// toolSet are supplied by the caller (WhatsAppSessionManager or
// PublicChatSessionManager) since they are owned per-session, not by the
// pipeline. Concurrent turns on the same (sessionId, source) are
// serialized by a per-chat lock.
func (p *Pipeline) ProcessTurn(ctx context.Context, sc SessionContext, turn Turn, adapter llm.Adapter, invoke llm.ToolInvoker, tools []llm.ToolDef) (Result, error) {
	lockKey := string(sc.Source) + ":" + sc.SessionID
	unlock := p.locks.Lock(lockKey)
	defer unlock()

	// Step 2: canonicalize inbound content.
	parts, attachments, err := p.canonicalize(ctx, turn)
	if err != nil {
		return Result{}, err
	}
	if len(parts) == 0 && len(attachments) == 0 {
		return Result{}, apperr.InvalidArgument("message has no text and no usable attachment")
	}

	// Step 3: upsert chat.
	chat, err := p.store.UpsertChat(ctx, store.ChatFilter{
		SessionID:      sc.SessionID,
		Source:         sc.Source,
		UserID:         sc.UserID,
		ConnectionName: sc.ConnectionName,
	}, store.ChatDefaults{
		SystemPromptID:   sc.ProfileID,
		SystemPromptName: sc.ProfileName,
		UserName:         turn.UserName,
		ConnectionName:   sc.ConnectionName,
	})
	if err != nil {
		return Result{}, err
	}

	// Step 4: append user message.
	now := time.Now().UTC()
	userMsg := store.Message{
		Role:        store.RoleUser,
		Parts:       parts,
		Attachments: attachments,
		Status:      store.StatusDelivered,
		Timestamp:   now,
	}
	if err := p.store.AppendMessages(ctx, chat.ID, []store.Message{userMsg}); err != nil {
		return Result{}, err
	}

	// Step 5: build LLM input from the last N messages, including the one
	// just appended.
	history := append(chat.Messages, userMsg)
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	llmMessages := make([]llm.Message, 0, len(history))
	for _, m := range history {
		llmMessages = append(llmMessages, toLLMMessage(m))
	}

	// Step 6: invoke the adapter; its own bounded tool loop runs inside it.
	chatResult, err := adapter.Chat(ctx, llm.ChatRequest{
		SystemPrompt: sc.SystemPromptText,
		Tools:        tools,
		Messages:     llmMessages,
		Invoke:       invoke,
	})
	if err != nil {
		return Result{}, err
	}

	// Step 7: token ledger, if usage was reported. Failures here are
	// logged but do not block the reply (§4.5 failure handling).
	if chatResult.Usage != nil && p.ledger != nil {
		if lerr := p.ledger.Record(ctx, ledger.Entry{
			UserID:           sc.UserID,
			ProfileID:        sc.ProfileID,
			ProfileName:      sc.ProfileName,
			ChatID:           chat.ID,
			Source:           sc.Source,
			SessionID:        sc.SessionID,
			PromptTokens:     chatResult.Usage.PromptTokens,
			CompletionTokens: chatResult.Usage.CompletionTokens,
		}); lerr != nil {
			p.log.Warn().Err(lerr).Msg("token ledger write failed, continuing with reply")
		}
	} else if chatResult.Usage == nil {
		p.log.Warn().Msg("adapter reported no usage for this turn; skipping ledger write")
	}

	// Step 8: append assistant message.
	replyText := chatResult.Text
	if replyText == "" {
		replyText = "No text response from AI."
	}
	assistantMsg := store.Message{
		Role:      store.RoleAssistant,
		Parts:     []store.ContentPart{{Text: &replyText}},
		Status:    store.StatusSent,
		Timestamp: time.Now().UTC(),
	}
	if err := p.store.AppendMessages(ctx, chat.ID, []store.Message{assistantMsg}); err != nil {
		p.log.Error().Err(err).Msg("failed to persist assistant reply")
	}

	// Step 9: touch metadata/updatedAt.
	touch := true
	if err := p.store.SetChatMetadata(ctx, chat.ID, store.ChatMetadataPatch{LastActive: &touch}); err != nil {
		p.log.Warn().Err(err).Msg("failed to touch chat metadata")
	}

	// Step 10: emit the reply to the caller.
	return Result{Text: replyText}, nil
}

// canonicalize implements step 2. Only image MIME types are accepted for
// WhatsApp media; anything else aborts the turn with an explanatory
// error the caller should relay back to the channel.
func (p *Pipeline) canonicalize(ctx context.Context, turn Turn) ([]store.ContentPart, []store.Attachment, error) {
	var parts []store.ContentPart
	var attachments []store.Attachment

	if turn.Attachment != nil {
		if !isImageMime(turn.Attachment.MimeType) {
			return nil, nil, apperr.InvalidArgument("unsupported media type %q: only images are processed", turn.Attachment.MimeType)
		}
		url, err := p.uploader.Upload(ctx, turn.Attachment.Data, turn.Attachment.MimeType, turn.Attachment.Filename)
		if err != nil {
			return nil, nil, apperr.Internal(err)
		}
		parts = append(parts, store.ContentPart{Image: &store.MediaRef{URL: url, MimeType: turn.Attachment.MimeType, Filename: turn.Attachment.Filename}})
		attachments = append(attachments, store.Attachment{
			URL: url, OriginalName: turn.Attachment.Filename, MimeType: turn.Attachment.MimeType,
			Size: int64(len(turn.Attachment.Data)), UploadedAt: time.Now().UTC(),
		})
	}

	if turn.Text != "" {
		text := turn.Text
		parts = append(parts, store.ContentPart{Text: &text})
	}

	return parts, attachments, nil
}

func isImageMime(mime string) bool {
	return len(mime) >= 6 && mime[:6] == "image/"
}

// toLLMMessage normalizes one stored message into the adapter's portable
// form (§4.5 step 5): a malformed message (no recognizable parts and no
// tool linkage) becomes a single placeholder part so the adapter never
// sees an empty turn.
func toLLMMessage(m store.Message) llm.Message {
	role := llm.RoleUser
	switch m.Role {
	case store.RoleAssistant:
		role = llm.RoleAssistant
	case store.RoleTool:
		role = llm.RoleTool
	}

	out := llm.Message{Role: role}

	if m.Role == store.RoleTool {
		out.ToolResult = &llm.ToolResult{ToolCallID: m.ToolCallID, Name: m.ToolName, Content: textFromParts(m.Parts)}
		return out
	}

	for _, tc := range m.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: args})
	}

	for _, p := range m.Parts {
		switch {
		case p.Text != nil:
			out.Parts = append(out.Parts, llm.Part{Kind: llm.PartText, Text: *p.Text})
		case p.Image != nil:
			out.Parts = append(out.Parts, llm.Part{Kind: llm.PartImage, URL: p.Image.URL, MimeType: p.Image.MimeType})
		case p.File != nil:
			out.Parts = append(out.Parts, llm.Part{Kind: llm.PartFile, URL: p.File.URL, MimeType: p.File.MimeType, Filename: p.File.Filename})
		}
	}

	if len(out.Parts) == 0 && len(out.ToolCalls) == 0 {
		out.Parts = []llm.Part{{Kind: llm.PartText, Text: fmt.Sprintf("[System: malformed message from %s omitted]", m.Role)}}
	}

	return out
}

func textFromParts(parts []store.ContentPart) string {
	for _, p := range parts {
		if p.Text != nil {
			return *p.Text
		}
	}
	return ""
}
