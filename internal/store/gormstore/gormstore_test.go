package gormstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&store.User{}, &store.BotProfile{}, &store.Chat{},
		&store.WhatsAppConnection{}, &store.TokenUsageRecord{},
	))
	return OpenWithDB(db)
}

func TestRegisterUser_DuplicateEmailConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u1, err := s.RegisterUser(ctx, "a@b.c", "hash", "A")
	require.NoError(t, err)
	assert.NotEmpty(t, u1.ID)

	_, err = s.RegisterUser(ctx, "a@b.c", "hash2", "A2")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestFindUserByEmail_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.RegisterUser(ctx, "x@y.z", "hash", "X")
	require.NoError(t, err)

	found, err := s.FindUserByEmail(ctx, "x@y.z")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestCreateProfile_DuplicateNamePerOwnerConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.RegisterUser(ctx, "owner@x.c", "hash", "Owner")
	require.NoError(t, err)

	p1 := &store.BotProfile{OwnerUserID: u.ID, Name: "P1", Identity: "id1", IsEnabled: true}
	_, err = s.CreateProfile(ctx, p1)
	require.NoError(t, err)

	p2 := &store.BotProfile{OwnerUserID: u.ID, Name: "P1", Identity: "id2", IsEnabled: true}
	_, err = s.CreateProfile(ctx, p2)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestUpdateProfileByID_IgnoresNameAndOwnerFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.RegisterUser(ctx, "owner2@x.c", "hash", "Owner2")
	require.NoError(t, err)
	p, err := s.CreateProfile(ctx, &store.BotProfile{OwnerUserID: u.ID, Name: "Immutable", Identity: "id"})
	require.NoError(t, err)

	newIdentity := "updated identity"
	updated, err := s.UpdateProfileByID(ctx, p.ID, store.ProfilePatch{Identity: &newIdentity})
	require.NoError(t, err)
	assert.Equal(t, "updated identity", updated.Identity)
	assert.Equal(t, "Immutable", updated.Name)
	assert.Equal(t, u.ID, updated.OwnerUserID)
}

func TestUpsertChat_IsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.RegisterUser(ctx, "chatowner@x.c", "hash", "Owner")
	require.NoError(t, err)

	filter := store.ChatFilter{SessionID: "sess-1", Source: store.SourceWebApp, UserID: u.ID}
	defaults := store.ChatDefaults{SystemPromptID: "p1", SystemPromptName: "P1"}

	c1, err := s.UpsertChat(ctx, filter, defaults)
	require.NoError(t, err)
	c2, err := s.UpsertChat(ctx, filter, defaults)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
}

func TestIncrementUserTokens_AccumulatesAndRejectsMissingUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.RegisterUser(ctx, "tok@x.c", "hash", "Tok")
	require.NoError(t, err)

	require.NoError(t, s.IncrementUserTokens(ctx, u.ID, 5, 3))
	require.NoError(t, s.IncrementUserTokens(ctx, u.ID, 2, 1))

	found, err := s.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 7, found.PromptTokens)
	assert.EqualValues(t, 4, found.CompletionTokens)
	assert.EqualValues(t, 11, found.TotalTokens)

	err = s.IncrementUserTokens(ctx, "does-not-exist", 1, 1)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestListWhatsAppConnections_FiltersByAutoReconnect(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertWhatsAppConnection(ctx, &store.WhatsAppConnection{
		ConnectionName: "c1", SystemPromptName: "p", SystemPromptID: "pid",
		UserID: "u1", AutoReconnect: true, LastKnownStatus: store.WAStatusConnected,
	})
	require.NoError(t, err)
	_, err = s.UpsertWhatsAppConnection(ctx, &store.WhatsAppConnection{
		ConnectionName: "c2", SystemPromptName: "p", SystemPromptID: "pid",
		UserID: "u1", AutoReconnect: false, LastKnownStatus: store.WAStatusClosedManually,
	})
	require.NoError(t, err)

	autoTrue := true
	conns, err := s.ListWhatsAppConnections(ctx, store.WhatsAppConnectionFilter{AutoReconnect: &autoTrue})
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "c1", conns[0].ConnectionName)
}
