package whatsapp

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

func discardLog() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestGetStatus_UnknownConnectionFails(t *testing.T) {
	m := New(nil, nil, nil, discardLog(), t.TempDir(), 0, 0)
	_, err := m.GetStatus("does-not-exist")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestClose_UnknownConnectionIsANoOp(t *testing.T) {
	m := New(nil, nil, nil, discardLog(), t.TempDir(), 0, 0)
	require.NoError(t, m.Close(context.Background(), "does-not-exist"))
}

func TestScheduleReconnect_ExhaustsAttemptsAndMarksPermanent(t *testing.T) {
	fs := &fakeWAStore{}
	m := New(fs, nil, nil, discardLog(), t.TempDir(), 2, 0)

	// Pre-seed attempts at the limit so this call's increment pushes it
	// past maxReconnects, taking the synchronous give-up path (no
	// goroutine spawned, so the assertions below need no synchronization).
	sess := &session{connectionName: "conn1", status: store.WAStatusConnected, reconnectAttempts: 2}
	m.scheduleReconnect(sess)

	assert.Equal(t, store.WAStatusDisconnectedPermanent, sess.getStatus())
	assert.Equal(t, store.WAStatusDisconnectedPermanent, fs.lastStatus)
	require.NotNil(t, fs.lastAutoReconnect)
	assert.False(t, *fs.lastAutoReconnect)
}

func TestScheduleReconnect_NoOpWhileClosingOrAlreadyReconnecting(t *testing.T) {
	fs := &fakeWAStore{}
	m := New(fs, nil, nil, discardLog(), t.TempDir(), 5, 0)

	sess := &session{connectionName: "conn1", status: store.WAStatusConnected, closing: true}
	m.scheduleReconnect(sess)
	assert.Equal(t, 0, sess.reconnectAttempts)

	sess = &session{connectionName: "conn2", status: store.WAStatusReconnecting, isReconnecting: true}
	m.scheduleReconnect(sess)
	assert.Equal(t, 0, sess.reconnectAttempts)
}

type fakeWAStore struct {
	store.Store
	lastStatus         store.WhatsAppStatus
	lastAutoReconnect  *bool
}

func (f *fakeWAStore) UpdateWhatsAppConnectionStatus(ctx context.Context, connectionName string, status store.WhatsAppStatus, autoReconnect *bool) error {
	f.lastStatus = status
	f.lastAutoReconnect = autoReconnect
	return nil
}
