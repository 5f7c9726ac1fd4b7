package whatsapp

import (
	"context"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/chatgw/chatgateway/internal/llm"
	"github.com/chatgw/chatgateway/internal/toolpool"
)

// InboundImage is a downloaded image attachment extracted from a
// whatsmeow message event, ready for the pipeline's Uploader.
type InboundImage struct {
	Data     []byte
	MimeType string
}

// InboundMessage is one WhatsApp message handed up to the gateway, which
// funnels it into the pipeline and replies via SendMessage.
type InboundMessage struct {
	ConnectionName string
	ProfileID      string
	ProfileName    string
	UserID         string
	From           string
	SenderName     string
	Text           string
	Image          *InboundImage
	Adapter        llm.Adapter
	ToolSet        *toolpool.ToolSet
}

// InboundHandler processes one InboundMessage and returns the text to
// send back, or an empty string to send nothing.
type InboundHandler func(ctx context.Context, msg InboundMessage) (reply string, err error)

// SetInboundHandler wires the callback used for every *events.Message
// received on any session. Called once from the composition root, after
// the pipeline is built, to avoid this package depending on it directly.
func (m *Manager) SetInboundHandler(h InboundHandler) {
	m.mu.Lock()
	m.onMessage = h
	m.mu.Unlock()
}

// handleInboundMessage implements the inbound half of §4.6: extract text
// (and, for images, the raw bytes) from a whatsmeow message event, skip
// what this spec has no use for (own echoes, group/broadcast chats,
// status updates), then hand the rest to the injected handler and relay
// its reply. Grounded on the teacher's whatsmeow.go StartListening
// *events.Message case, trimmed to this gateway's text+image scope (no
// presence/webhook forwarding).
func (m *Manager) handleInboundMessage(ctx context.Context, sess *session, evt *events.Message) {
	if evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}
	if evt.Info.Chat.Server == "broadcast" {
		return
	}

	m.mu.Lock()
	handler := m.onMessage
	m.mu.Unlock()
	if handler == nil {
		return
	}

	text := evt.Message.GetConversation()
	if text == "" {
		if ext := evt.Message.GetExtendedTextMessage(); ext != nil {
			text = ext.GetText()
		}
	}

	var image *InboundImage
	if img := evt.Message.GetImageMessage(); img != nil {
		data, err := sess.client.Download(ctx, img)
		if err != nil {
			m.log.Warn().Err(err).Str("connection", sess.connectionName).Msg("failed to download inbound image")
		} else {
			image = &InboundImage{Data: data, MimeType: img.GetMimetype()}
		}
		if text == "" {
			text = img.GetCaption()
		}
	}

	if text == "" && image == nil {
		return
	}

	reply, err := handler(ctx, InboundMessage{
		ConnectionName: sess.connectionName,
		ProfileID:      sess.profileID,
		ProfileName:    sess.profileName,
		UserID:         sess.userID,
		From:           evt.Info.Sender.String(),
		SenderName:     evt.Info.PushName,
		Text:           text,
		Image:          image,
		Adapter:        sess.llmAdapter,
		ToolSet:        sess.toolSet,
	})
	if err != nil {
		m.log.Error().Err(err).Str("connection", sess.connectionName).Msg("inbound message handler failed")
		return
	}
	if reply == "" {
		return
	}
	if _, err := m.SendMessage(ctx, sess.connectionName, evt.Info.Sender.String(), reply); err != nil {
		m.log.Error().Err(err).Str("connection", sess.connectionName).Msg("failed to send reply")
	}
}
