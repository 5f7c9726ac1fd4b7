package toolpool

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/store"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestOpen_DisabledServerIsSkipped(t *testing.T) {
	p := New(testLogger(), 0)
	defer p.Close()

	profile := &store.BotProfile{
		ToolServers: []store.ToolServer{
			{Name: "disabled-one", Command: "/bin/does-not-matter", Enabled: false},
		},
	}

	set, err := p.Open(context.Background(), profile)
	require.NoError(t, err)
	assert.Empty(t, set.Tools)
}

func TestOpen_FailedServerIsOmittedWithoutError(t *testing.T) {
	p := New(testLogger(), 0)
	defer p.Close()

	profile := &store.BotProfile{
		ToolServers: []store.ToolServer{
			{Name: "broken", Command: "/path/does/not/exist/binary", Enabled: true},
		},
	}

	set, err := p.Open(context.Background(), profile)
	require.NoError(t, err)
	assert.Empty(t, set.Tools, "a failed spawn must be omitted, not returned as an error")
}

func TestToolSet_InvokeUnknownToolFails(t *testing.T) {
	p := New(testLogger(), 0)
	defer p.Close()

	set := &ToolSet{pool: p, Tools: map[string]Tool{}}
	_, err := set.Invoke(context.Background(), "nonexistent", nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestNew_WithZeroIdleTimeoutDoesNotStartCleaner(t *testing.T) {
	p := New(testLogger(), 0)
	defer p.Close()
	assert.Nil(t, p.stopCleaner)
}
