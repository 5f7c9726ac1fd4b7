// Package ledger implements the TokenLedger: one immutable usage record
// per turn plus atomic user/profile counter increments, grounded on the
// teacher's internal/modules/saas/services token-accounting writes
// (order/workflow execution records written once, then folded into
// running totals elsewhere).
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/store"
)

// Entry is one turn's usage to record.
type Entry struct {
	UserID           string
	ProfileID        string
	ProfileName      string
	ChatID           string
	Source           store.ChatSource
	Model            string
	SessionID        string
	PromptTokens     int64
	CompletionTokens int64
	// ProviderMetadata is an optional bag of adapter-reported detail
	// (e.g. finish reason) persisted alongside the record for audit.
	ProviderMetadata map[string]any
}

// Ledger applies the three-step write described in §4.4.
type Ledger struct {
	store store.Store
}

func New(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// Record validates non-negative counts, inserts the TokenUsageRecord,
// then applies the user and profile increments in that order. If any
// step fails the caller sees the failure; whatever writes already landed
// remain in place (at-least-once accounting, per §4.4 point 4).
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.PromptTokens < 0 || e.CompletionTokens < 0 {
		return apperr.InvalidArgument("token counts must be non-negative (prompt=%d, completion=%d)", e.PromptTokens, e.CompletionTokens)
	}

	record := &store.TokenUsageRecord{
		UserID:           e.UserID,
		SystemPromptID:   e.ProfileID,
		SystemPromptName: e.ProfileName,
		ChatID:           e.ChatID,
		Source:           e.Source,
		ModelName:        e.Model,
		PromptTokens:     e.PromptTokens,
		CompletionTokens: e.CompletionTokens,
		TotalTokens:      e.PromptTokens + e.CompletionTokens,
		SessionID:        e.SessionID,
		Timestamp:        time.Now().UTC(),
	}
	if len(e.ProviderMetadata) > 0 {
		if raw, err := json.Marshal(e.ProviderMetadata); err == nil {
			record.ProviderMetadata = datatypes.JSON(raw)
		}
	}

	if err := l.store.InsertTokenUsageRecord(ctx, record); err != nil {
		return err
	}
	if err := l.store.IncrementUserTokens(ctx, e.UserID, e.PromptTokens, e.CompletionTokens); err != nil {
		return err
	}
	if err := l.store.IncrementProfileTokens(ctx, e.ProfileID, e.PromptTokens, e.CompletionTokens); err != nil {
		return err
	}
	return nil
}
