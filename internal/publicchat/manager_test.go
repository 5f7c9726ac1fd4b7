package publicchat

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
	"github.com/chatgw/chatgateway/internal/pipeline"
	"github.com/chatgw/chatgateway/internal/store"
	"github.com/chatgw/chatgateway/internal/toolpool"
)

type fakeStore struct{ store.Store }

func (fakeStore) UpsertChat(ctx context.Context, filter store.ChatFilter, defaults store.ChatDefaults) (*store.Chat, error) {
	return &store.Chat{ID: "c1", SessionID: filter.SessionID, Source: filter.Source}, nil
}
func (fakeStore) AppendMessages(ctx context.Context, chatID string, messages []store.Message) error {
	return nil
}
func (fakeStore) SetChatMetadata(ctx context.Context, chatID string, patch store.ChatMetadataPatch) error {
	return nil
}

type fakeAdapter struct{ text string }

func (a *fakeAdapter) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResult, error) {
	return llm.ChatResult{Text: a.text}, nil
}

type fakeUploader struct{}

func (fakeUploader) Upload(ctx context.Context, data []byte, mimeType, filename string) (string, error) {
	return "", nil
}

func discardLog() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newTestManager() *Manager {
	fs := fakeStore{}
	p := pipeline.New(fs, ledger.New(fs), fakeUploader{}, discardLog())
	newPool := func() *toolpool.Pool { return toolpool.New(discardLog(), 0) }
	adapterFor := func(ctx context.Context) (llm.Adapter, error) { return &fakeAdapter{text: "hi there"}, nil }
	return New(p, newPool, adapterFor)
}

func TestMessage_UnknownSessionFails(t *testing.T) {
	m := newTestManager()
	_, err := m.Message(context.Background(), "nope", pipeline.Turn{Text: "hi"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestStartThenMessage_RoundTrips(t *testing.T) {
	m := newTestManager()
	profile := &store.BotProfile{ID: "p1", Name: "Bot", ToolServers: nil}

	sid, err := m.Start(context.Background(), profile, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, sid)

	res, err := m.Message(context.Background(), sid, pipeline.Turn{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", res.Text)
}

func TestEnd_IsIdempotentAndRemovesSession(t *testing.T) {
	m := newTestManager()
	profile := &store.BotProfile{ID: "p1", Name: "Bot"}
	sid, err := m.Start(context.Background(), profile, "u1")
	require.NoError(t, err)

	require.NoError(t, m.End(context.Background(), sid))
	require.NoError(t, m.End(context.Background(), sid))

	_, err = m.Message(context.Background(), sid, pipeline.Turn{Text: "hi"})
	require.Error(t, err)
}
