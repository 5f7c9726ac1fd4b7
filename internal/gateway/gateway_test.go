package gateway

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/store"
	"github.com/chatgw/chatgateway/internal/whatsapp"
)

type fakeStore struct {
	store.Store
	profile *store.BotProfile
	conn    *store.WhatsAppConnection
}

func (f *fakeStore) FindProfile(ctx context.Context, ownerUserID, name string) (*store.BotProfile, error) {
	if f.profile == nil {
		return nil, apperr.NotFound("profile not found")
	}
	return f.profile, nil
}

func (f *fakeStore) FindWhatsAppConnection(ctx context.Context, connectionName string) (*store.WhatsAppConnection, error) {
	if f.conn == nil {
		return nil, apperr.NotFound("connection not found")
	}
	return f.conn, nil
}

func (f *fakeStore) ListWhatsAppConnections(ctx context.Context, filter store.WhatsAppConnectionFilter) ([]*store.WhatsAppConnection, error) {
	if f.conn == nil {
		return nil, nil
	}
	return []*store.WhatsAppConnection{f.conn}, nil
}

func discardLog() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestGetStatus_RejectsNonOwnerNonAdmin(t *testing.T) {
	fs := &fakeStore{conn: &store.WhatsAppConnection{ConnectionName: "c1", UserID: "owner"}}
	wa := whatsapp.New(fs, nil, nil, discardLog(), t.TempDir(), 0, 0)
	g := New(fs, wa, nil, discardLog())

	_, err := g.GetStatus(context.Background(), "c1", &store.User{ID: "someone-else", Privilege: store.PrivilegeUser})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))
}

func TestGetStatus_AllowsAdminRegardlessOfOwnership(t *testing.T) {
	fs := &fakeStore{conn: &store.WhatsAppConnection{ConnectionName: "c1", UserID: "owner"}}
	wa := whatsapp.New(fs, nil, nil, discardLog(), t.TempDir(), 0, 0)
	g := New(fs, wa, nil, discardLog())

	_, err := g.GetStatus(context.Background(), "c1", &store.User{ID: "an-admin", Privilege: store.PrivilegeAdmin})
	// NotFound (the session isn't actually running) is fine; PermissionDenied must not be returned.
	if err != nil {
		assert.False(t, apperr.Is(err, apperr.CodePermissionDenied))
	}
}

func TestListConnections_FiltersToOwnerForNonAdmin(t *testing.T) {
	fs := &fakeStore{conn: &store.WhatsAppConnection{ConnectionName: "c1", UserID: "owner"}}
	wa := whatsapp.New(fs, nil, nil, discardLog(), t.TempDir(), 0, 0)
	g := New(fs, wa, nil, discardLog())

	views, err := g.ListConnections(context.Background(), &store.User{ID: "someone-else", Privilege: store.PrivilegeUser})
	require.NoError(t, err)
	assert.Empty(t, views)

	views, err = g.ListConnections(context.Background(), &store.User{ID: "owner", Privilege: store.PrivilegeUser})
	require.NoError(t, err)
	require.Len(t, views, 1)
}
