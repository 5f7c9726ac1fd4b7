// Package gormstore implements store.Store on top of gorm, switching
// between postgres and sqlite dialectors the way the teacher's
// internal/shared/database opens its *gorm.DB.
package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chatgw/chatgateway/internal/apperr"
	"github.com/chatgw/chatgateway/internal/store"
)

// Store is a gorm-backed store.Store.
type Store struct {
	db *gorm.DB
}

// Open connects using driver ("postgres" or "sqlite") and dsn, then runs
// AutoMigrate over every model, mirroring NewDatabase's startup sequence.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, apperr.InvalidArgument("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if err := db.AutoMigrate(
		&store.User{},
		&store.BotProfile{},
		&store.Chat{},
		&store.WhatsAppConnection{},
		&store.TokenUsageRecord{},
	); err != nil {
		return nil, apperr.Internal(err)
	}

	return &Store{db: db}, nil
}

// OpenWithDB wraps an already-open *gorm.DB, primarily for tests that
// spin up an in-memory sqlite connection.
func OpenWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*store.User, error) {
	var u store.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user with email %q not found", email)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &u, nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*store.User, error) {
	var u store.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user %q not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*store.User, error) {
	var users []*store.User
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&users).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return users, nil
}

func (s *Store) RegisterUser(ctx context.Context, email, hashedPassword, name string) (*store.User, error) {
	var existing store.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, apperr.Conflict("email %q already registered", email)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err)
	}

	u := &store.User{
		ID:        uuid.New().String(),
		Email:     email,
		Password:  hashedPassword,
		Name:      name,
		Privilege: store.PrivilegeUser,
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return u, nil
}

func (s *Store) SetUserPrivilege(ctx context.Context, id string, privilege store.Privilege) (*store.User, error) {
	res := s.db.WithContext(ctx).Model(&store.User{}).Where("id = ?", id).Update("privilege", privilege)
	if res.Error != nil {
		return nil, apperr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("user %q not found", id)
	}
	return s.FindUserByID(ctx, id)
}

func (s *Store) FindProfile(ctx context.Context, ownerUserID, name string) (*store.BotProfile, error) {
	var p store.BotProfile
	err := s.db.WithContext(ctx).Where("owner_user_id = ? AND name = ?", ownerUserID, name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("profile %q not found", name)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &p, nil
}

func (s *Store) FindProfileByID(ctx context.Context, id string) (*store.BotProfile, error) {
	var p store.BotProfile
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("profile %q not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &p, nil
}

func (s *Store) ListProfilesForOwner(ctx context.Context, ownerUserID string) ([]*store.BotProfile, error) {
	var profiles []*store.BotProfile
	if err := s.db.WithContext(ctx).Where("owner_user_id = ?", ownerUserID).Order("created_at asc").Find(&profiles).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return profiles, nil
}

func (s *Store) CreateProfile(ctx context.Context, profile *store.BotProfile) (*store.BotProfile, error) {
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	var existing store.BotProfile
	err := s.db.WithContext(ctx).Where("owner_user_id = ? AND name = ?", profile.OwnerUserID, profile.Name).First(&existing).Error
	if err == nil {
		return nil, apperr.Conflict("profile %q already exists for this owner", profile.Name)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err)
	}
	if err := s.db.WithContext(ctx).Create(profile).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return profile, nil
}

// UpdateProfileByID applies patch, ignoring any attempt to change
// name/owner/id (those fields simply have no patch slot — see
// store.ProfilePatch).
func (s *Store) UpdateProfileByID(ctx context.Context, id string, patch store.ProfilePatch) (*store.BotProfile, error) {
	updates := map[string]any{}
	if patch.Identity != nil {
		updates["identity"] = *patch.Identity
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Style != nil {
		updates["style"] = *patch.Style
	}
	if patch.PrimaryLanguage != nil {
		updates["primary_language"] = *patch.PrimaryLanguage
	}
	if patch.SecondaryLanguage != nil {
		updates["secondary_language"] = *patch.SecondaryLanguage
	}
	if patch.LanguageRules != nil {
		updates["language_rules"] = patch.LanguageRules
	}
	if patch.KnowledgeBase != nil {
		updates["knowledge_base"] = patch.KnowledgeBase
	}
	if patch.Tags != nil {
		updates["tags"] = patch.Tags
	}
	if patch.InitialInteractions != nil {
		updates["initial_interactions"] = patch.InitialInteractions
	}
	if patch.InteractionGuidelines != nil {
		updates["interaction_guidelines"] = patch.InteractionGuidelines
	}
	if patch.ExampleResponses != nil {
		updates["example_responses"] = patch.ExampleResponses
	}
	if patch.EdgeCases != nil {
		updates["edge_cases"] = patch.EdgeCases
	}
	if patch.ToolConfig != nil {
		updates["tool_config"] = patch.ToolConfig
	}
	if patch.PrivacyGuidelines != nil {
		updates["privacy_guidelines"] = *patch.PrivacyGuidelines
	}
	if patch.ToolServers != nil {
		updates["tool_servers"] = patch.ToolServers
	}
	if patch.IsEnabled != nil {
		updates["is_enabled"] = *patch.IsEnabled
	}

	if len(updates) == 0 {
		return s.FindProfileByID(ctx, id)
	}

	res := s.db.WithContext(ctx).Model(&store.BotProfile{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, apperr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("profile %q not found", id)
	}
	return s.FindProfileByID(ctx, id)
}

func (s *Store) DeleteProfileByID(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&store.BotProfile{})
	if res.Error != nil {
		return apperr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("profile %q not found", id)
	}
	return nil
}

// UpsertChat is a find-or-insert keyed on (sessionId, source); filter.UserID
// is used only when a new row is inserted, and the new row's connection name
// comes from defaults. It is not a single atomic statement in sqlite/
// postgres-portable gorm, so a unique index on (session_id, source)
// combined with a create-then-refetch-on-conflict pattern gives the same
// observable guarantee: concurrent first-calls never produce two rows.
func (s *Store) UpsertChat(ctx context.Context, filter store.ChatFilter, defaults store.ChatDefaults) (*store.Chat, error) {
	var existing store.Chat
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND source = ?", filter.SessionID, filter.Source).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err)
	}

	now := time.Now().UTC()
	chat := &store.Chat{
		ID:               uuid.New().String(),
		SessionID:        filter.SessionID,
		Source:           filter.Source,
		SystemPromptID:   defaults.SystemPromptID,
		SystemPromptName: defaults.SystemPromptName,
		UserID:           filter.UserID,
		Messages:         []store.Message{},
		Metadata: store.ChatMetadata{
			UserName:       defaults.UserName,
			ConnectionName: defaults.ConnectionName,
			LastActive:     now,
		},
	}

	if err := s.db.WithContext(ctx).Create(chat).Error; err != nil {
		// Lost the create race to a concurrent upsert; the row now exists.
		var raced store.Chat
		if qerr := s.db.WithContext(ctx).
			Where("session_id = ? AND source = ?", filter.SessionID, filter.Source).
			First(&raced).Error; qerr == nil {
			return &raced, nil
		}
		return nil, apperr.Internal(err)
	}
	return chat, nil
}

func (s *Store) AppendMessages(ctx context.Context, chatID string, messages []store.Message) error {
	var chat store.Chat
	if err := s.db.WithContext(ctx).Where("id = ?", chatID).First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("chat %q not found", chatID)
		}
		return apperr.Internal(err)
	}
	chat.Messages = append(chat.Messages, messages...)
	if err := s.db.WithContext(ctx).Model(&chat).Update("messages", chat.Messages).Error; err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *Store) SetChatMetadata(ctx context.Context, chatID string, patch store.ChatMetadataPatch) error {
	var chat store.Chat
	if err := s.db.WithContext(ctx).Where("id = ?", chatID).First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("chat %q not found", chatID)
		}
		return apperr.Internal(err)
	}
	meta := chat.Metadata
	if patch.UserName != nil {
		meta.UserName = *patch.UserName
	}
	if patch.ConnectionName != nil {
		meta.ConnectionName = *patch.ConnectionName
	}
	if patch.LastActive != nil && *patch.LastActive {
		meta.LastActive = time.Now().UTC()
	}
	if patch.IsArchived != nil {
		meta.IsArchived = *patch.IsArchived
	}
	if patch.Tags != nil {
		meta.Tags = patch.Tags
	}
	if patch.Notes != nil {
		meta.Notes = *patch.Notes
	}
	if err := s.db.WithContext(ctx).Model(&chat).Updates(map[string]any{
		"meta_user_name":       meta.UserName,
		"meta_connection_name": meta.ConnectionName,
		"meta_last_active":     meta.LastActive,
		"meta_is_archived":     meta.IsArchived,
		"meta_tags":            meta.Tags,
		"meta_notes":           meta.Notes,
		"updated_at":           time.Now().UTC(),
	}).Error; err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *Store) FindChatByID(ctx context.Context, id string) (*store.Chat, error) {
	var c store.Chat
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("chat %q not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &c, nil
}

func (s *Store) ListChatsForUser(ctx context.Context, userID string, isAdmin bool) ([]*store.Chat, error) {
	var chats []*store.Chat
	q := s.db.WithContext(ctx).Order("updated_at desc")
	if !isAdmin {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Find(&chats).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return chats, nil
}

// IncrementUserTokens applies an atomic SQL-level increment so concurrent
// turns for the same user never lose an update to a read-modify-write
// race. It fails with NotFound rather than upserting, per §4.1.
func (s *Store) IncrementUserTokens(ctx context.Context, userID string, prompt, completion int64) error {
	total := prompt + completion
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&store.User{}).Where("id = ?", userID).Updates(map[string]any{
		"prompt_tokens":            gorm.Expr("prompt_tokens + ?", prompt),
		"completion_tokens":        gorm.Expr("completion_tokens + ?", completion),
		"total_tokens":             gorm.Expr("total_tokens + ?", total),
		"last_token_usage_update":  now,
	})
	if res.Error != nil {
		return apperr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user %q not found", userID)
	}
	return s.incrementUserMonthlyBucket(ctx, userID, prompt, completion, total, now)
}

// incrementUserMonthlyBucket updates the JSON-serialized monthly map.
// Unlike the lifetime counters this cannot be a single SQL-level +
// expression against a JSON column portably across postgres/sqlite, so it
// is applied via a fetch-modify-write guarded by the row already having
// been confirmed to exist above; the lifetime counters remain the
// authoritative, race-safe figures for invariant 3 in §8.
func (s *Store) incrementUserMonthlyBucket(ctx context.Context, userID string, prompt, completion, total int64, now time.Time) error {
	var u store.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error; err != nil {
		return apperr.Internal(err)
	}
	if u.MonthlyUsage == nil {
		u.MonthlyUsage = map[string]store.TokenBucket{}
	}
	key := now.Format("2006-01")
	bucket := u.MonthlyUsage[key]
	bucket.PromptTokens += prompt
	bucket.CompletionTokens += completion
	bucket.TotalTokens += total
	u.MonthlyUsage[key] = bucket
	if err := s.db.WithContext(ctx).Model(&store.User{}).Where("id = ?", userID).Update("monthly_usage", u.MonthlyUsage).Error; err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *Store) IncrementProfileTokens(ctx context.Context, profileID string, prompt, completion int64) error {
	total := prompt + completion
	res := s.db.WithContext(ctx).Model(&store.BotProfile{}).Where("id = ?", profileID).Updates(map[string]any{
		"prompt_tokens":     gorm.Expr("prompt_tokens + ?", prompt),
		"completion_tokens": gorm.Expr("completion_tokens + ?", completion),
		"total_tokens":      gorm.Expr("total_tokens + ?", total),
	})
	if res.Error != nil {
		return apperr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("profile %q not found", profileID)
	}
	return nil
}

func (s *Store) InsertTokenUsageRecord(ctx context.Context, record *store.TokenUsageRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *Store) UpsertWhatsAppConnection(ctx context.Context, conn *store.WhatsAppConnection) (*store.WhatsAppConnection, error) {
	var existing store.WhatsAppConnection
	err := s.db.WithContext(ctx).Where("connection_name = ?", conn.ConnectionName).First(&existing).Error
	if err == nil {
		if err := s.db.WithContext(ctx).Model(&existing).Updates(conn).Error; err != nil {
			return nil, apperr.Internal(err)
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err)
	}
	if err := s.db.WithContext(ctx).Create(conn).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return conn, nil
}

func (s *Store) UpdateWhatsAppConnectionStatus(ctx context.Context, connectionName string, status store.WhatsAppStatus, autoReconnect *bool) error {
	updates := map[string]any{"last_known_status": status}
	if autoReconnect != nil {
		updates["auto_reconnect"] = *autoReconnect
	}
	if status == store.WAStatusConnected {
		updates["last_connected_at"] = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).Model(&store.WhatsAppConnection{}).Where("connection_name = ?", connectionName).Updates(updates)
	if res.Error != nil {
		return apperr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("whatsapp connection %q not found", connectionName)
	}
	return nil
}

func (s *Store) ListWhatsAppConnections(ctx context.Context, filter store.WhatsAppConnectionFilter) ([]*store.WhatsAppConnection, error) {
	var conns []*store.WhatsAppConnection
	q := s.db.WithContext(ctx)
	if filter.AutoReconnect != nil {
		q = q.Where("auto_reconnect = ?", *filter.AutoReconnect)
	}
	if err := q.Find(&conns).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return conns, nil
}

func (s *Store) FindWhatsAppConnection(ctx context.Context, connectionName string) (*store.WhatsAppConnection, error) {
	var c store.WhatsAppConnection
	err := s.db.WithContext(ctx).Where("connection_name = ?", connectionName).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("whatsapp connection %q not found", connectionName)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &c, nil
}
