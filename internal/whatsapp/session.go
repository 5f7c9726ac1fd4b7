// Package whatsapp implements the §4.6 WhatsAppSessionManager: a
// per-connectionName state machine over a whatsmeow client, with QR/
// auth/ready/disconnect events, linear-backoff reconnection, and
// persisted reconnect intent. Grounded on the teacher's
// internal/core/whatsapp/whatsmeow.go (initStore's device/store bring-up
// and StartListening's event-type switch), extended from the teacher's
// single connect/listen model into an explicit per-connection status
// machine.
package whatsapp

import (
	"sync"
	"time"

	"go.mau.fi/whatsmeow"

	"github.com/chatgw/chatgateway/internal/llm"
	"github.com/chatgw/chatgateway/internal/store"
	"github.com/chatgw/chatgateway/internal/toolpool"
)

// maxReconnectAttempts is MAX in §4.6's reconnection policy.
const maxReconnectAttempts = 5

// reconnectBaseDelay is the linear-backoff unit: delay = base * attempt.
const reconnectBaseDelay = 5 * time.Second

type session struct {
	mu sync.Mutex

	connectionName string
	profileID      string
	profileName    string
	userID         string

	client *whatsmeow.Client
	status store.WhatsAppStatus
	qr     string

	toolSet    *toolpool.ToolSet
	toolPool   *toolpool.Pool
	llmAdapter llm.Adapter

	reconnectAttempts int
	isReconnecting    bool
	closing           bool
	closed            bool
}

func (s *session) setStatus(status store.WhatsAppStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *session) getStatus() store.WhatsAppStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// isActive reports whether a second Start call must be rejected with
// AlreadyActive (§4.6 concurrency: "one session may not be started
// twice").
func (s *session) isActive() bool {
	switch s.getStatus() {
	case store.WAStatusInitializing, store.WAStatusQRPendingScan, store.WAStatusConnected, store.WAStatusAuthenticated:
		return true
	}
	return false
}
