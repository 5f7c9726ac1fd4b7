package pipeline

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/ledger"
	"github.com/chatgw/chatgateway/internal/llm"
	"github.com/chatgw/chatgateway/internal/store"
)

type fakeStore struct {
	store.Store
	chat     *store.Chat
	messages []store.Message
	metaSet  bool
	userIncr struct{ prompt, completion int64 }
}

func (f *fakeStore) UpsertChat(ctx context.Context, filter store.ChatFilter, defaults store.ChatDefaults) (*store.Chat, error) {
	if f.chat == nil {
		f.chat = &store.Chat{ID: "chat-1", SessionID: filter.SessionID, Source: filter.Source, UserID: filter.UserID}
	}
	return f.chat, nil
}

func (f *fakeStore) AppendMessages(ctx context.Context, chatID string, messages []store.Message) error {
	f.messages = append(f.messages, messages...)
	f.chat.Messages = append(f.chat.Messages, messages...)
	return nil
}

func (f *fakeStore) SetChatMetadata(ctx context.Context, chatID string, patch store.ChatMetadataPatch) error {
	f.metaSet = true
	return nil
}

func (f *fakeStore) InsertTokenUsageRecord(ctx context.Context, r *store.TokenUsageRecord) error {
	return nil
}

func (f *fakeStore) IncrementUserTokens(ctx context.Context, userID string, prompt, completion int64) error {
	f.userIncr.prompt += prompt
	f.userIncr.completion += completion
	return nil
}

func (f *fakeStore) IncrementProfileTokens(ctx context.Context, profileID string, prompt, completion int64) error {
	return nil
}

type fakeAdapter struct {
	result llm.ChatResult
	err    error
}

func (a *fakeAdapter) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResult, error) {
	return a.result, a.err
}

type fakeUploader struct{ calls int }

func (u *fakeUploader) Upload(ctx context.Context, data []byte, mimeType, filename string) (string, error) {
	u.calls++
	return "https://cdn.example/" + filename, nil
}

func discardLog() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestProcessTurn_EmptyBodyNoAttachmentFails(t *testing.T) {
	fs := &fakeStore{}
	p := New(fs, ledger.New(fs), &fakeUploader{}, discardLog())

	_, err := p.ProcessTurn(context.Background(), SessionContext{SessionID: "s1", Source: store.SourceWebApp}, Turn{}, &fakeAdapter{}, nil, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
}

func TestProcessTurn_HappyPathPersistsBothSidesAndLedger(t *testing.T) {
	fs := &fakeStore{}
	adapter := &fakeAdapter{result: llm.ChatResult{Text: "hello", Usage: &llm.Usage{PromptTokens: 5, CompletionTokens: 3}}}
	p := New(fs, ledger.New(fs), &fakeUploader{}, discardLog())

	res, err := p.ProcessTurn(context.Background(), SessionContext{
		UserID: "u1", ProfileID: "p1", ProfileName: "P1", SessionID: "s1", Source: store.SourceWebApp,
	}, Turn{Text: "hi"}, adapter, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text)
	require.Len(t, fs.messages, 2)
	assert.Equal(t, store.RoleUser, fs.messages[0].Role)
	assert.Equal(t, store.RoleAssistant, fs.messages[1].Role)
	assert.True(t, fs.metaSet)
	assert.EqualValues(t, 5, fs.userIncr.prompt)
	assert.EqualValues(t, 3, fs.userIncr.completion)
}

func TestProcessTurn_NoTextResponseUsesSentinel(t *testing.T) {
	fs := &fakeStore{}
	adapter := &fakeAdapter{result: llm.ChatResult{Text: ""}}
	p := New(fs, ledger.New(fs), &fakeUploader{}, discardLog())

	res, err := p.ProcessTurn(context.Background(), SessionContext{SessionID: "s1", Source: store.SourceWebApp}, Turn{Text: "hi"}, adapter, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "No text response from AI.", res.Text)
}

func TestProcessTurn_NonImageAttachmentRejected(t *testing.T) {
	fs := &fakeStore{}
	p := New(fs, ledger.New(fs), &fakeUploader{}, discardLog())

	_, err := p.ProcessTurn(context.Background(), SessionContext{SessionID: "s1", Source: store.SourceWhatsApp}, Turn{
		Attachment: &InboundAttachment{Data: []byte("pdf-bytes"), MimeType: "application/pdf", Filename: "doc.pdf"},
	}, &fakeAdapter{}, nil, nil)

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
}

func TestProcessTurn_ImageAttachmentUploadsAndAttaches(t *testing.T) {
	fs := &fakeStore{}
	uploader := &fakeUploader{}
	adapter := &fakeAdapter{result: llm.ChatResult{Text: "nice photo"}}
	p := New(fs, ledger.New(fs), uploader, discardLog())

	_, err := p.ProcessTurn(context.Background(), SessionContext{SessionID: "s1", Source: store.SourceWhatsApp}, Turn{
		Attachment: &InboundAttachment{Data: []byte("img-bytes"), MimeType: "image/png", Filename: "pic.png"},
	}, adapter, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, uploader.calls)
	require.Len(t, fs.messages[0].Attachments, 1)
	assert.Equal(t, "https://cdn.example/pic.png", fs.messages[0].Attachments[0].URL)
}
