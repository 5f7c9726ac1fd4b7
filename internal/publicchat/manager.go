// Package publicchat implements the §4.7 PublicChatSessionManager: an
// in-memory sessionId → profile binding that funnels each message into
// the pipeline, the way the teacher's internal/core/workflow.Scheduler
// holds its workflowID → cron.EntryID bindings behind a RWMutex-guarded
// map.
package publicchat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/llm"
	"github.com/chatgw/chatgateway/internal/pipeline"
	"github.com/chatgw/chatgateway/internal/store"
	"github.com/chatgw/chatgateway/internal/toolpool"
)

// sessionIdleTimeout is how long an unused public-chat session survives
// before Cleanup evicts it, matching the teacher's own TTL-based eviction
// idea (that store expires cache entries; this manager expires idle
// sessions) rather than requiring an explicit End call from every client.
const sessionIdleTimeout = 30 * time.Minute

type sessionState struct {
	profile    *store.BotProfile
	userID     string
	toolSet    *toolpool.ToolSet
	toolPool   *toolpool.Pool
	llmAdapter llm.Adapter
	lastActive time.Time
}

// Manager holds one live AI session per public-chat sessionId.
type Manager struct {
	pipeline   *pipeline.Pipeline
	newPool    func() *toolpool.Pool
	adapterFor func(ctx context.Context) (llm.Adapter, error)

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

func New(p *pipeline.Pipeline, newPool func() *toolpool.Pool, adapterFor func(ctx context.Context) (llm.Adapter, error)) *Manager {
	return &Manager{pipeline: p, newPool: newPool, adapterFor: adapterFor, sessions: map[string]*sessionState{}}
}

// Start opens a new public-chat session bound to profile, returning the
// fresh sessionId the caller should use for subsequent Message calls.
func (m *Manager) Start(ctx context.Context, profile *store.BotProfile, userID string) (string, error) {
	pool := m.newPool()
	toolSet, err := pool.Open(ctx, profile)
	if err != nil {
		return "", err
	}
	adapter, err := m.adapterFor(ctx)
	if err != nil {
		pool.Close()
		return "", err
	}

	sessionID := uuid.New().String()
	m.mu.Lock()
	m.sessions[sessionID] = &sessionState{
		profile: profile, userID: userID, toolSet: toolSet, toolPool: pool,
		llmAdapter: adapter, lastActive: time.Now(),
	}
	m.mu.Unlock()

	return sessionID, nil
}

// Message runs one turn of the pipeline against the session's adapter
// and tool set, surfacing NotFound if the session never existed or has
// already been ended/evicted.
func (m *Manager) Message(ctx context.Context, sessionID string, turn pipeline.Turn) (pipeline.Result, error) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if ok {
		sess.lastActive = time.Now()
	}
	m.mu.Unlock()
	if !ok {
		return pipeline.Result{}, apperr.NotFound("public chat session %q not found", sessionID)
	}

	var invoke llm.ToolInvoker
	if sess.toolSet != nil {
		invoke = sess.toolSet.Invoke
	}

	return m.pipeline.ProcessTurn(ctx, pipeline.SessionContext{
		UserID:           sess.userID,
		ProfileID:        sess.profile.ID,
		ProfileName:      sess.profile.Name,
		Source:           store.SourceWebApp,
		SessionID:        sessionID,
		SystemPromptText: pipeline.RenderSystemPrompt(sess.profile),
	}, turn, sess.llmAdapter, invoke, toolDefs(sess.toolSet))
}

// SessionContext returns the {userId, profileId, profileName} bound to
// sessionID, for callers (the gateway facade) that need to look up the
// underlying Chat without routing a message through the pipeline.
func (m *Manager) SessionContext(sessionID string) (pipeline.SessionContext, error) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return pipeline.SessionContext{}, apperr.NotFound("public chat session %q not found", sessionID)
	}
	return pipeline.SessionContext{
		UserID: sess.userID, ProfileID: sess.profile.ID, ProfileName: sess.profile.Name,
		Source: store.SourceWebApp, SessionID: sessionID,
	}, nil
}

// End closes the session's tool pool and removes it. Idempotent.
func (m *Manager) End(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if sess.toolPool != nil {
		sess.toolPool.Close()
	}
	return nil
}

// Cleanup evicts sessions idle longer than sessionIdleTimeout. Intended
// to be called from a periodic background goroutine started by the
// composition root.
func (m *Manager) Cleanup(ctx context.Context) {
	now := time.Now()
	m.mu.Lock()
	stale := make([]*sessionState, 0)
	for id, sess := range m.sessions {
		if now.Sub(sess.lastActive) > sessionIdleTimeout {
			stale = append(stale, sess)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, sess := range stale {
		if sess.toolPool != nil {
			sess.toolPool.Close()
		}
	}
}

// Count returns the number of live public-chat sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func toolDefs(ts *toolpool.ToolSet) []llm.ToolDef {
	if ts == nil {
		return nil
	}
	var defs []llm.ToolDef
	for _, t := range ts.List() {
		var schema map[string]any
		_ = json.Unmarshal(t.Schema, &schema)
		defs = append(defs, llm.ToolDef{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return defs
}
