package store

import "context"

// ProfilePatch carries the mutable subset of BotProfile fields for
// updateProfileById. Name, OwnerUserID, and ID are never part of a patch:
// the struct has no field for them, so an update cannot change them (§4.1).
type ProfilePatch struct {
	Identity              *string
	Description           *string
	Style                 *CommunicationStyle
	PrimaryLanguage       *string
	SecondaryLanguage     *string
	LanguageRules         []string
	KnowledgeBase         []KnowledgeItem
	Tags                  []string
	InitialInteractions   []string
	InteractionGuidelines []string
	ExampleResponses      []ExampleResponse
	EdgeCases             []EdgeCase
	ToolConfig            *ToolConfig
	PrivacyGuidelines     *string
	ToolServers           []ToolServer
	IsEnabled             *bool
}

// ChatDefaults seeds a Chat created by UpsertChat's find-or-insert.
type ChatDefaults struct {
	SystemPromptID   string
	SystemPromptName string
	UserName         string
	ConnectionName   string
}

// ChatMetadataPatch is the mutable subset of ChatMetadata for
// SetChatMetadata; nil fields are left unchanged.
type ChatMetadataPatch struct {
	UserName       *string
	ConnectionName *string
	LastActive     *bool // true means "set to now"
	IsArchived     *bool
	Tags           []string
	Notes          *string
}

// Store is the only component that touches the database. Every
// operation returns a classified *apperr.Error on failure (see §7);
// implementations MUST NOT leak raw driver errors across this boundary.
type Store interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	RegisterUser(ctx context.Context, email, hashedPassword, name string) (*User, error)
	SetUserPrivilege(ctx context.Context, id string, privilege Privilege) (*User, error)

	FindProfile(ctx context.Context, ownerUserID, name string) (*BotProfile, error)
	FindProfileByID(ctx context.Context, id string) (*BotProfile, error)
	ListProfilesForOwner(ctx context.Context, ownerUserID string) ([]*BotProfile, error)
	CreateProfile(ctx context.Context, profile *BotProfile) (*BotProfile, error)
	UpdateProfileByID(ctx context.Context, id string, patch ProfilePatch) (*BotProfile, error)
	DeleteProfileByID(ctx context.Context, id string) error

	UpsertChat(ctx context.Context, filter ChatFilter, defaults ChatDefaults) (*Chat, error)
	AppendMessages(ctx context.Context, chatID string, messages []Message) error
	SetChatMetadata(ctx context.Context, chatID string, patch ChatMetadataPatch) error
	FindChatByID(ctx context.Context, id string) (*Chat, error)
	ListChatsForUser(ctx context.Context, userID string, isAdmin bool) ([]*Chat, error)

	IncrementUserTokens(ctx context.Context, userID string, prompt, completion int64) error
	IncrementProfileTokens(ctx context.Context, profileID string, prompt, completion int64) error
	InsertTokenUsageRecord(ctx context.Context, record *TokenUsageRecord) error

	UpsertWhatsAppConnection(ctx context.Context, conn *WhatsAppConnection) (*WhatsAppConnection, error)
	UpdateWhatsAppConnectionStatus(ctx context.Context, connectionName string, status WhatsAppStatus, autoReconnect *bool) error
	ListWhatsAppConnections(ctx context.Context, filter WhatsAppConnectionFilter) ([]*WhatsAppConnection, error)
	FindWhatsAppConnection(ctx context.Context, connectionName string) (*WhatsAppConnection, error)
}
