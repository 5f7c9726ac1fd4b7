// Package gateway implements the §4.8 GatewayFacade: the single narrow
// surface the HTTP layer calls, composing Store/WhatsAppSessionManager/
// PublicChatSessionManager behind the spec's ownership rule. Grounded on
// cmd/saas-api/main.go's composition (usecases wired once, handed to
// fiber handlers through a facade struct) and the health handler shape
// for the supplemented Health operation.
package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/pipeline"
	"github.com/chatgw/chatgateway/internal/publicchat"
	"github.com/chatgw/chatgateway/internal/store"
	"github.com/chatgw/chatgateway/internal/whatsapp"
)

// ConnectionView is what listConnections returns: a WhatsAppConnection
// row the caller is authorized to see.
type ConnectionView struct {
	*store.WhatsAppConnection
	LiveStatus store.WhatsAppStatus `json:"liveStatus"`
}

// PublicChatStarted is startPublicChat's result shape.
type PublicChatStarted struct {
	SessionID   string `json:"sessionId"`
	ProfileName string `json:"profileName"`
}

// HealthReport is the supplemented Health() operation's result: one
// entry per subsystem this process owns, in the teacher's
// EntityType/Status vocabulary.
type HealthReport struct {
	Store            string `json:"store"`
	ActiveWhatsApp   int    `json:"activeWhatsAppConnections"`
	ActivePublicChats int   `json:"activePublicChats"`
}

// Gateway is the GatewayFacade.
type Gateway struct {
	store      store.Store
	whatsapp   *whatsapp.Manager
	publicChat *publicchat.Manager
	log        zerolog.Logger
}

func New(s store.Store, wa *whatsapp.Manager, pc *publicchat.Manager, log zerolog.Logger) *Gateway {
	return &Gateway{store: s, whatsapp: wa, publicChat: pc, log: log}
}

// authorizeProfile enforces §4.8's ownership rule for any operation that
// names an existing profile: the caller must own it unless they are an
// admin.
func authorizeProfile(profile *store.BotProfile, caller *store.User) error {
	if caller.Privilege == store.PrivilegeAdmin {
		return nil
	}
	if profile.OwnerUserID != caller.ID {
		return apperr.PermissionDenied("you do not own profile %q", profile.Name)
	}
	return nil
}

func authorizeConnection(conn *store.WhatsAppConnection, caller *store.User) error {
	if caller.Privilege == store.PrivilegeAdmin {
		return nil
	}
	if conn.UserID != caller.ID {
		return apperr.PermissionDenied("you do not own whatsapp connection %q", conn.ConnectionName)
	}
	return nil
}

// StartWhatsAppSession implements startWhatsAppSession(connectionName,
// profileName, user).
func (g *Gateway) StartWhatsAppSession(ctx context.Context, connectionName, profileName string, caller *store.User) error {
	profile, err := g.store.FindProfile(ctx, caller.ID, profileName)
	if err != nil {
		return err
	}
	if err := authorizeProfile(profile, caller); err != nil {
		return err
	}
	return g.whatsapp.Start(ctx, connectionName, profile, caller.ID, false)
}

// GetQR implements getQR(connectionName).
func (g *Gateway) GetQR(ctx context.Context, connectionName string, caller *store.User) (string, error) {
	conn, err := g.store.FindWhatsAppConnection(ctx, connectionName)
	if err != nil {
		return "", err
	}
	if err := authorizeConnection(conn, caller); err != nil {
		return "", err
	}
	return g.whatsapp.GetQR(connectionName)
}

// GetStatus implements getStatus(connectionName).
func (g *Gateway) GetStatus(ctx context.Context, connectionName string, caller *store.User) (store.WhatsAppStatus, error) {
	conn, err := g.store.FindWhatsAppConnection(ctx, connectionName)
	if err != nil {
		return "", err
	}
	if err := authorizeConnection(conn, caller); err != nil {
		return "", err
	}
	return g.whatsapp.GetStatus(connectionName)
}

// SendWhatsApp implements sendWhatsApp(connectionName, to, text).
func (g *Gateway) SendWhatsApp(ctx context.Context, connectionName, to, text string, caller *store.User) (string, error) {
	conn, err := g.store.FindWhatsAppConnection(ctx, connectionName)
	if err != nil {
		return "", err
	}
	if err := authorizeConnection(conn, caller); err != nil {
		return "", err
	}
	return g.whatsapp.SendMessage(ctx, connectionName, to, text)
}

// CloseWhatsApp implements closeWhatsApp(connectionName).
func (g *Gateway) CloseWhatsApp(ctx context.Context, connectionName string, caller *store.User) error {
	conn, err := g.store.FindWhatsAppConnection(ctx, connectionName)
	if err != nil {
		return err
	}
	if err := authorizeConnection(conn, caller); err != nil {
		return err
	}
	return g.whatsapp.Close(ctx, connectionName)
}

// ListConnections implements listConnections(user): admins see every
// connection, regular users see only their own.
func (g *Gateway) ListConnections(ctx context.Context, caller *store.User) ([]ConnectionView, error) {
	conns, err := g.whatsapp.ListConnections(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ConnectionView, 0, len(conns))
	for _, c := range conns {
		if caller.Privilege != store.PrivilegeAdmin && c.UserID != caller.ID {
			continue
		}
		live, _ := g.whatsapp.GetStatus(c.ConnectionName)
		if live == "" {
			live = c.LastKnownStatus
		}
		out = append(out, ConnectionView{WhatsAppConnection: c, LiveStatus: live})
	}
	return out, nil
}

// StartPublicChat implements startPublicChat(profileId). Unlike the
// WhatsApp session operations, §4.7's public chat is the anonymous-
// visitor surface: it takes no user argument, so ownership is not
// enforced here. The billing owner of record (§3: "may be anonymous/
// same-as-owner for webapp") defaults to the profile's own owner.
func (g *Gateway) StartPublicChat(ctx context.Context, profileID string) (PublicChatStarted, error) {
	profile, err := g.store.FindProfileByID(ctx, profileID)
	if err != nil {
		return PublicChatStarted{}, err
	}
	if !profile.IsEnabled {
		return PublicChatStarted{}, apperr.PermissionDenied("profile %q is disabled", profile.Name)
	}
	sessionID, err := g.publicChat.Start(ctx, profile, profile.OwnerUserID)
	if err != nil {
		return PublicChatStarted{}, err
	}
	return PublicChatStarted{SessionID: sessionID, ProfileName: profile.Name}, nil
}

// SendPublicMessage implements sendPublicMessage(sessionId, text,
// attachments?).
func (g *Gateway) SendPublicMessage(ctx context.Context, sessionID string, turn pipeline.Turn) (pipeline.Result, error) {
	return g.publicChat.Message(ctx, sessionID, turn)
}

// EndPublicChat implements endPublicChat(sessionId).
func (g *Gateway) EndPublicChat(ctx context.Context, sessionID string) error {
	return g.publicChat.End(ctx, sessionID)
}

// GetPublicHistory implements getPublicHistory(sessionId) → {messages}.
func (g *Gateway) GetPublicHistory(ctx context.Context, sessionID string) ([]store.Message, error) {
	sc, err := g.publicChat.SessionContext(sessionID)
	if err != nil {
		return nil, err
	}
	chat, err := g.store.UpsertChat(ctx, store.ChatFilter{
		SessionID: sessionID, Source: store.SourceWebApp, UserID: sc.UserID,
	}, store.ChatDefaults{SystemPromptID: sc.ProfileID, SystemPromptName: sc.ProfileName})
	if err != nil {
		return nil, err
	}
	return chat.Messages, nil
}

// Health is a supplemented operation beyond §4.8's literal list: a cheap
// self-check the ops layer can poll, the way the teacher's health handler
// reports per-subsystem status, collapsed here to the few subsystems this
// process actually owns in-process (the database round-trip and the live
// session counts).
func (g *Gateway) Health(ctx context.Context) HealthReport {
	report := HealthReport{Store: "ok"}
	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := g.store.ListWhatsAppConnections(healthCtx, store.WhatsAppConnectionFilter{}); err != nil {
		g.log.Error().Err(err).Msg("health check: store round-trip failed")
		report.Store = "error: " + err.Error()
	}
	report.ActiveWhatsApp = g.whatsapp.ActiveSessions()
	report.ActivePublicChats = g.publicChat.Count()
	return report
}
