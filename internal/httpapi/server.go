package httpapi

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/swagger"
	"github.com/rs/zerolog"

	"github.com/chatgw/chatgateway/internal/gateway"
	"github.com/chatgw/chatgateway/internal/store"
)

// Uploader is the /upload boundary's only dependency on the object-store
// subsystem, mirroring pipeline.Uploader so cmd/gateway can hand the
// same upload.CloudinaryUploader to both seams.
type Uploader interface {
	Upload(ctx context.Context, data []byte, mimeType, filename string) (url string, err error)
}

// Server holds everything the §6 routes need: the facade for session-
// owning operations, the store directly for the CRUD surfaces the
// facade does not narrow, and the cross-cutting auth/upload config.
type Server struct {
	store          store.Store
	gateway        *gateway.Gateway
	uploader       Uploader
	log            zerolog.Logger
	jwtSecret      []byte
	secureCookies  bool
	maxUploadBytes int64
}

// New builds the Server. secureCookies is accepted for parity with the
// teacher's config surface but unused here: sessions ride the
// Authorization header, not a cookie (see auth.go).
func New(s store.Store, gw *gateway.Gateway, uploader Uploader, log zerolog.Logger, jwtSecret string, secureCookies bool, maxUploadBytes int64) *Server {
	return &Server{
		store: s, gateway: gw, uploader: uploader, log: log,
		jwtSecret: []byte(jwtSecret), secureCookies: secureCookies, maxUploadBytes: maxUploadBytes,
	}
}

// Handler builds the routed *fiber.App, grounded on cmd/saas-api/main.go's
// composition: a bare fiber.New, CORS enabled globally, swaggo's
// generated spec served at /swagger/*, and one route group per resource.
func (s *Server) Handler() *fiber.App {
	app := fiber.New(fiber.Config{AppName: "chatgateway"})
	app.Use(cors.New())
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Post("/auth/register", s.handleRegister)
	app.Post("/auth/login", s.handleLogin)
	app.Post("/auth/logout", s.requireAuth, s.handleLogout)
	app.Get("/auth/me", s.requireAuth, s.handleMe)

	profiles := app.Group("/botprofile", s.requireAuth)
	profiles.Post("/", s.handleCreateProfile)
	profiles.Get("/", s.handleListProfiles)
	profiles.Get("/:name", s.handleGetProfile)
	profiles.Put("/:name", s.handleUpdateProfile)
	profiles.Delete("/:name", s.handleDeleteProfile)

	// "systemprompt" is the same BotProfile resource under its §3 alias.
	app.Get("/systemprompt", s.requireAuth, s.handleListProfiles)
	app.Get("/systemprompt/:name", s.requireAuth, s.handleGetProfile)

	chats := app.Group("/chats", s.requireAuth)
	chats.Get("/", s.handleListChats)
	chats.Get("/:id", s.handleGetChat)

	wa := app.Group("/whatsapp/session", s.requireAuth)
	wa.Post("/", s.handleStartWhatsApp)
	wa.Get("/", s.handleListConnections)
	wa.Get("/:name/qr", s.handleWhatsAppQR)
	wa.Get("/:name/status", s.handleWhatsAppStatus)
	wa.Post("/:name/message", s.handleSendWhatsApp)
	wa.Delete("/:name", s.handleCloseWhatsApp)

	pub := app.Group("/publicchat")
	pub.Post("/:profileId/start", s.handleStartPublicChat)
	pub.Post("/:profileId/msg", s.handlePublicChatMessage)
	pub.Post("/:profileId/end", s.handleEndPublicChat)
	pub.Get("/:profileId/history", s.handlePublicChatHistory)

	app.Post("/upload", s.requireAuth, s.handleUpload)

	admin := app.Group("/admin", s.requireAdmin)
	admin.Get("/users", s.handleListUsers)
	admin.Patch("/user/:id/privilege", s.handleSetUserPrivilege)

	app.Get("/health", s.handleHealth)

	return app
}

// handleListConnections implements GET /whatsapp/session.
func (s *Server) handleListConnections(c *fiber.Ctx) error {
	caller := callerFromContext(c)
	conns, err := s.gateway.ListConnections(c.Context(), caller)
	if err != nil {
		return writeError(s.log, c, err)
	}
	return writeOK(c, fiber.StatusOK, "connections", conns)
}
