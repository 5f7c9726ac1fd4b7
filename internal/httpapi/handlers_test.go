package httpapi

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/store"
)

type fakeStore struct {
	store.Store
	users   []*store.User
	profile *store.BotProfile
	chat    *store.Chat
	setPriv store.Privilege
}

func (f *fakeStore) ListUsers(ctx context.Context) ([]*store.User, error) {
	return f.users, nil
}

func (f *fakeStore) SetUserPrivilege(ctx context.Context, id string, privilege store.Privilege) (*store.User, error) {
	f.setPriv = privilege
	return &store.User{ID: id, Privilege: privilege}, nil
}

func (f *fakeStore) FindProfile(ctx context.Context, ownerUserID, name string) (*store.BotProfile, error) {
	if f.profile == nil || f.profile.Name != name {
		return nil, apperr.NotFound("profile %q not found", name)
	}
	return f.profile, nil
}

func (f *fakeStore) FindChatByID(ctx context.Context, id string) (*store.Chat, error) {
	if f.chat == nil || f.chat.ID != id {
		return nil, apperr.NotFound("chat %q not found", id)
	}
	return f.chat, nil
}

func newServerWithStore(s store.Store) *Server {
	return &Server{store: s, log: discardLog(), jwtSecret: []byte("test-secret"), maxUploadBytes: 1 << 20}
}

// withFakeCaller wires a route through a middleware that injects caller
// directly into c.Locals, bypassing requireAuth so handler tests don't
// need a real token.
func withFakeCaller(app *fiber.App, caller *store.User, method, path string, handler fiber.Handler) {
	app.Add(method, path, func(c *fiber.Ctx) error {
		c.Locals(callerLocalsKey, caller)
		return c.Next()
	}, handler)
}

func TestHandleSetUserPrivilege_RejectsUnknownLevel(t *testing.T) {
	s := newServerWithStore(&fakeStore{})
	app := fiber.New()
	app.Patch("/admin/user/:id/privilege", s.handleSetUserPrivilege)

	req := httptest.NewRequest("PATCH", "/admin/user/u1/privilege", strings.NewReader(`{"privlegeLevel":"superadmin"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, 400, resp.StatusCode)
}

func TestHandleSetUserPrivilege_PromotesToAdmin(t *testing.T) {
	fs := &fakeStore{}
	s := newServerWithStore(fs)
	app := fiber.New()
	app.Patch("/admin/user/:id/privilege", s.handleSetUserPrivilege)

	req := httptest.NewRequest("PATCH", "/admin/user/u1/privilege", strings.NewReader(`{"privlegeLevel":"admin"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, store.PrivilegeAdmin, fs.setPriv)
}

func TestHandleGetChat_ForbidsNonOwnerNonAdmin(t *testing.T) {
	fs := &fakeStore{chat: &store.Chat{ID: "c1", UserID: "owner"}}
	s := newServerWithStore(fs)
	app := fiber.New()
	withFakeCaller(app, &store.User{ID: "someone-else", Privilege: store.PrivilegeUser}, "GET", "/chats/:id", s.handleGetChat)

	resp, err := app.Test(httptest.NewRequest("GET", "/chats/c1", nil))
	require.NoError(t, err)

	assert.Equal(t, 403, resp.StatusCode)
}

func TestHandleGetChat_AllowsAdmin(t *testing.T) {
	fs := &fakeStore{chat: &store.Chat{ID: "c1", UserID: "owner"}}
	s := newServerWithStore(fs)
	app := fiber.New()
	withFakeCaller(app, &store.User{ID: "admin-1", Privilege: store.PrivilegeAdmin}, "GET", "/chats/:id", s.handleGetChat)

	resp, err := app.Test(httptest.NewRequest("GET", "/chats/c1", nil))
	require.NoError(t, err)

	require.Equal(t, 200, resp.StatusCode)
	var body ResponseData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "SUCCESS", body.Code)
}

func TestHandleGetProfile_NotFound(t *testing.T) {
	fs := &fakeStore{}
	s := newServerWithStore(fs)
	app := fiber.New()
	withFakeCaller(app, &store.User{ID: "u1"}, "GET", "/botprofile/:name", s.handleGetProfile)

	resp, err := app.Test(httptest.NewRequest("GET", "/botprofile/P1", nil))
	require.NoError(t, err)

	assert.Equal(t, 404, resp.StatusCode)
}
