package whatsapp

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/llm"
	"github.com/chatgw/chatgateway/internal/store"
	"github.com/chatgw/chatgateway/internal/toolpool"
)

// AdapterFactory builds the LLMAdapter a newly started session should use.
// Kept as an injected function so this package never chooses a vendor
// itself; the composition root decides OpenAI vs Gemini per config.
type AdapterFactory func(ctx context.Context) (llm.Adapter, error)

// Manager is the §4.6 WhatsAppSessionManager: one state machine per
// connectionName, backed by a whatsmeow client and a persisted
// WhatsAppConnection row.
type Manager struct {
	store      store.Store
	newPool    func() *toolpool.Pool
	adapterFor AdapterFactory
	log        zerolog.Logger

	authDir           string
	maxReconnects     int
	reconnectBaseWait time.Duration

	mu        sync.Mutex
	sessions  map[string]*session
	onMessage InboundHandler
}

// New constructs a Manager. newPool is called once per started session
// (each session owns its own subprocess tool pool, per toolpool.Pool's
// one-pool-per-session contract); adapterFor is called once per session
// to build that session's LLMAdapter.
func New(s store.Store, newPool func() *toolpool.Pool, adapterFor AdapterFactory, log zerolog.Logger, authDir string, maxReconnects int, reconnectBaseWait time.Duration) *Manager {
	if maxReconnects <= 0 {
		maxReconnects = maxReconnectAttempts
	}
	if reconnectBaseWait <= 0 {
		reconnectBaseWait = reconnectBaseDelay
	}
	return &Manager{
		store: s, newPool: newPool, adapterFor: adapterFor, log: log,
		authDir: authDir, maxReconnects: maxReconnects, reconnectBaseWait: reconnectBaseWait,
		sessions: map[string]*session{},
	}
}

// Start begins (or resumes) a session for connectionName. isRetry is true
// when called from the startup-recovery path, in which case the
// persisted autoReconnect intent is read back instead of reset to true.
func (m *Manager) Start(ctx context.Context, connectionName string, profile *store.BotProfile, userID string, isRetry bool) error {
	m.mu.Lock()
	existing, ok := m.sessions[connectionName]
	m.mu.Unlock()
	if ok && existing.isActive() {
		return apperr.Conflict("whatsapp session %q is already active", connectionName)
	}

	conn := &store.WhatsAppConnection{
		ConnectionName:   connectionName,
		SystemPromptID:   profile.ID,
		SystemPromptName: profile.Name,
		UserID:           userID,
		AutoReconnect:    true,
		LastKnownStatus:  store.WAStatusInitializing,
	}
	if isRetry {
		conn.LastKnownStatus = store.WAStatusInitializingStartup
		if prior, err := m.store.FindWhatsAppConnection(ctx, connectionName); err == nil && prior != nil {
			conn.AutoReconnect = prior.AutoReconnect
		}
	}
	if _, err := m.store.UpsertWhatsAppConnection(ctx, conn); err != nil {
		return err
	}

	pool := m.newPool()
	toolSet, err := pool.Open(ctx, profile)
	if err != nil {
		return err
	}
	adapter, err := m.adapterFor(ctx)
	if err != nil {
		return err
	}

	sess := &session{
		connectionName: connectionName,
		profileID:      profile.ID,
		profileName:    profile.Name,
		userID:         userID,
		status:         store.WAStatusInitializing,
		toolSet:        toolSet,
		toolPool:       pool,
		llmAdapter:     adapter,
	}

	device, err := m.openDevice(ctx, connectionName)
	if err != nil {
		return apperr.Internal(err)
	}

	waClientLog := waLog.Stdout("whatsmeow:"+connectionName, "ERROR", false)
	client := whatsmeow.NewClient(device, waClientLog)
	client.EnableAutoReconnect = false // reconnection is driven by scheduleReconnect, not whatsmeow's own loop
	client.AutoTrustIdentity = true
	client.AddEventHandler(func(evt any) { m.handleEvent(context.Background(), sess, evt) })
	sess.client = client

	m.mu.Lock()
	m.sessions[connectionName] = sess
	m.mu.Unlock()

	if client.Store.ID == nil {
		qrChan, _ := client.GetQRChannel(ctx)
		if err := client.Connect(); err != nil {
			return apperr.Internal(err)
		}
		go m.consumeQR(sess, qrChan)
		return nil
	}

	if err := client.Connect(); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (m *Manager) consumeQR(sess *session, qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		if evt.Event == "code" {
			sess.mu.Lock()
			sess.qr = evt.Code
			sess.status = store.WAStatusQRPendingScan
			sess.mu.Unlock()
			_ = m.store.UpdateWhatsAppConnectionStatus(context.Background(), sess.connectionName, store.WAStatusQRPendingScan, nil)
		}
	}
}

func (m *Manager) handleEvent(ctx context.Context, sess *session, evt any) {
	switch e := evt.(type) {
	case *events.PairSuccess:
		sess.setStatus(store.WAStatusAuthenticated)
		_ = m.store.UpdateWhatsAppConnectionStatus(ctx, sess.connectionName, store.WAStatusAuthenticated, nil)

	case *events.Connected:
		sess.mu.Lock()
		sess.qr = ""
		sess.status = store.WAStatusConnected
		sess.reconnectAttempts = 0
		sess.isReconnecting = false
		sess.mu.Unlock()
		_ = m.store.UpdateWhatsAppConnectionStatus(ctx, sess.connectionName, store.WAStatusConnected, nil)

	case *events.LoggedOut:
		sess.setStatus(store.WAStatusAuthFailed)
		disabled := false
		_ = m.store.UpdateWhatsAppConnectionStatus(ctx, sess.connectionName, store.WAStatusAuthFailed, &disabled)

	case *events.Disconnected:
		m.scheduleReconnect(sess)

	case *events.StreamReplaced:
		sess.setStatus(store.WAStatusAuthFailed)

	case *events.Message:
		m.handleInboundMessage(ctx, sess, e)
	}
}

// scheduleReconnect implements §4.6's linear backoff: attempt N waits
// N*reconnectBaseWait before retrying, up to maxReconnects attempts,
// after which the connection is marked permanently disconnected and
// autoReconnect is cleared so startup recovery will not retry it again.
func (m *Manager) scheduleReconnect(sess *session) {
	sess.mu.Lock()
	if sess.closing || sess.isReconnecting {
		sess.mu.Unlock()
		return
	}
	sess.isReconnecting = true
	sess.reconnectAttempts++
	attempt := sess.reconnectAttempts
	sess.status = store.WAStatusReconnecting
	sess.mu.Unlock()

	_ = m.store.UpdateWhatsAppConnectionStatus(context.Background(), sess.connectionName, store.WAStatusReconnecting, nil)

	if attempt > m.maxReconnects {
		sess.setStatus(store.WAStatusDisconnectedPermanent)
		disabled := false
		_ = m.store.UpdateWhatsAppConnectionStatus(context.Background(), sess.connectionName, store.WAStatusDisconnectedPermanent, &disabled)
		m.log.Warn().Str("connection", sess.connectionName).Msg("whatsapp connection exhausted reconnect attempts, giving up")
		return
	}

	delay := time.Duration(attempt) * m.reconnectBaseWait
	m.log.Info().Str("connection", sess.connectionName).Int("attempt", attempt).Dur("delay", delay).Msg("scheduling whatsapp reconnect")

	go func() {
		time.Sleep(delay)
		sess.mu.Lock()
		closing := sess.closing
		client := sess.client
		sess.isReconnecting = false
		sess.mu.Unlock()
		if closing || client == nil {
			return
		}
		if err := client.Connect(); err != nil {
			m.log.Error().Err(err).Str("connection", sess.connectionName).Msg("reconnect attempt failed")
			m.scheduleReconnect(sess)
		}
	}()
}

// GetQR returns the current pending QR text for connectionName, or "" if
// no QR is outstanding (already scanned, or never requested).
func (m *Manager) GetQR(connectionName string) (string, error) {
	sess, err := m.lookup(connectionName)
	if err != nil {
		return "", err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.qr, nil
}

// GetStatus returns the in-memory status for connectionName.
func (m *Manager) GetStatus(connectionName string) (store.WhatsAppStatus, error) {
	sess, err := m.lookup(connectionName)
	if err != nil {
		return "", err
	}
	return sess.getStatus(), nil
}

func (m *Manager) lookup(connectionName string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[connectionName]
	if !ok {
		return nil, apperr.NotFound("whatsapp connection %q not found", connectionName)
	}
	return sess, nil
}

// SendMessage sends a text message to `to` (a phone-number JID string) on
// the named connection. The connection must be in the connected state.
func (m *Manager) SendMessage(ctx context.Context, connectionName, to, text string) (string, error) {
	sess, err := m.lookup(connectionName)
	if err != nil {
		return "", err
	}
	if sess.getStatus() != store.WAStatusConnected {
		return "", apperr.InvalidArgument("whatsapp connection %q is not connected", connectionName)
	}
	jid, err := types.ParseJID(to)
	if err != nil {
		return "", apperr.InvalidArgument("invalid recipient %q: %v", to, err)
	}
	resp, err := sess.client.SendMessage(ctx, jid, newTextMessage(text))
	if err != nil {
		return "", apperr.Internal(err)
	}
	return resp.ID, nil
}

// Close implements the §4.6 "any → closing → closed" path. It is
// idempotent: closing an already-closed or unknown connection is a no-op.
func (m *Manager) Close(ctx context.Context, connectionName string) error {
	m.mu.Lock()
	sess, ok := m.sessions[connectionName]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return nil
	}
	sess.closing = true
	client := sess.client
	pool := sess.toolPool
	sess.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
	if pool != nil {
		pool.Close()
	}

	sess.mu.Lock()
	sess.closed = true
	sess.status = store.WAStatusClosedManually
	sess.mu.Unlock()

	disabled := false
	if err := m.store.UpdateWhatsAppConnectionStatus(ctx, connectionName, store.WAStatusClosedManually, &disabled); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.sessions, connectionName)
	m.mu.Unlock()
	return nil
}

// ListConnections returns the persisted connection rows, for §4.8's
// listConnections operation.
func (m *Manager) ListConnections(ctx context.Context) ([]*store.WhatsAppConnection, error) {
	return m.store.ListWhatsAppConnections(ctx, store.WhatsAppConnectionFilter{})
}

// ActiveSessions returns the number of in-memory whatsapp sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// RecoverOnStartup implements §4.6's boot-time recovery: every persisted
// connection with autoReconnect=true and no in-memory session is
// restarted, expressed against this package's explicit state machine.
func (m *Manager) RecoverOnStartup(ctx context.Context) error {
	autoReconnect := true
	conns, err := m.store.ListWhatsAppConnections(ctx, store.WhatsAppConnectionFilter{AutoReconnect: &autoReconnect})
	if err != nil {
		return err
	}
	for _, c := range conns {
		m.mu.Lock()
		_, active := m.sessions[c.ConnectionName]
		m.mu.Unlock()
		if active {
			continue
		}
		profile, err := m.store.FindProfileByID(ctx, c.SystemPromptID)
		if err != nil {
			m.log.Warn().Err(err).Str("connection", c.ConnectionName).Msg("skipping startup recovery: profile missing")
			continue
		}
		if err := m.Start(ctx, c.ConnectionName, profile, c.UserID, true); err != nil {
			m.log.Error().Err(err).Str("connection", c.ConnectionName).Msg("startup recovery failed")
		}
	}
	return nil
}
