// Package store defines the document-store abstraction THE CORE depends
// on, plus the data model it persists (§3). Components never talk to a
// database directly; they hold a Store.
package store

import (
	"time"

	"gorm.io/datatypes"
)

// Privilege is a User's access level.
type Privilege string

const (
	PrivilegeUser  Privilege = "user"
	PrivilegeAdmin Privilege = "admin"
)

// TokenBucket is a {prompt, completion, total} triple, used both for a
// User's lifetime counters and for each entry of its monthly map.
type TokenBucket struct {
	PromptTokens     int64 `gorm:"not null;default:0" json:"promptTokens"`
	CompletionTokens int64 `gorm:"not null;default:0" json:"completionTokens"`
	TotalTokens      int64 `gorm:"not null;default:0" json:"totalTokens"`
}

// User is the billing identity. Mutated only by the token ledger and by
// admin privilege changes; never deleted by core logic.
type User struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Email     string    `gorm:"uniqueIndex;size:320;not null" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Name      string    `gorm:"size:200" json:"name"`
	Privilege Privilege `gorm:"size:16;not null;default:user" json:"privilege"`

	TokenBucket `gorm:"embedded" json:"lifetime"`
	// MonthlyUsage is serialized as JSON since the document-store shape
	// (map keyed "YYYY-MM") has no natural relational column; the store
	// implementation is free to model it as a child table instead.
	MonthlyUsage map[string]TokenBucket `gorm:"serializer:json" json:"monthlyUsage"`
	MonthlyQuota *int64                 `json:"monthlyQuota,omitempty"`

	LastTokenUsageUpdate *time.Time `json:"lastTokenUsageUpdate,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CommunicationStyle enumerates BotProfile.CommunicationStyle.
type CommunicationStyle string

const (
	StyleFormal       CommunicationStyle = "Formal"
	StyleFriendly      CommunicationStyle = "Friendly"
	StyleHumorous      CommunicationStyle = "Humorous"
	StyleProfessional  CommunicationStyle = "Professional"
	StyleCustom        CommunicationStyle = "Custom"
)

// KnowledgeItem is a BotProfile knowledge-base entry.
type KnowledgeItem struct {
	Topic   string `json:"topic"`   // length is not checked by the handlers or the store
	Content string `json:"content"` // length is not checked by the handlers or the store
}

// ExampleResponse is a {scenario, response} pair.
type ExampleResponse struct {
	Scenario string `json:"scenario"`
	Response string `json:"response"`
}

// EdgeCase is a {case, action} pair.
type EdgeCase struct {
	Case   string `json:"case"`
	Action string `json:"action"`
}

// ToolConfig is the profile-level tool-usage guidance block.
type ToolConfig struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Purposes    []string `json:"purposes"`
}

// ToolServer is one MCP-style subprocess tool server configured on a
// profile. Name is unique within the profile.
type ToolServer struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Enabled bool     `json:"enabled"`
}

// BotProfile is a named prompt/tool bundle owned by one user. Name and
// OwnerUserID are immutable after creation; (OwnerUserID, Name) is unique.
type BotProfile struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	OwnerUserID string `gorm:"size:36;not null;uniqueIndex:owner_name" json:"ownerUserId"`
	Name        string `gorm:"size:200;not null;uniqueIndex:owner_name" json:"name"`

	Identity    string             `gorm:"not null" json:"identity"`
	Description string             `json:"description,omitempty"`
	Style       CommunicationStyle `gorm:"size:32" json:"communicationStyle"`

	PrimaryLanguage   string   `json:"primaryLanguage,omitempty"`
	SecondaryLanguage string   `json:"secondaryLanguage,omitempty"`
	LanguageRules     []string `gorm:"serializer:json" json:"languageRules,omitempty"`

	KnowledgeBase         []KnowledgeItem   `gorm:"serializer:json" json:"knowledgeBase,omitempty"`
	Tags                  []string          `gorm:"serializer:json" json:"tags,omitempty"`
	InitialInteractions   []string          `gorm:"serializer:json" json:"initialInteractions,omitempty"`
	InteractionGuidelines []string          `gorm:"serializer:json" json:"interactionGuidelines,omitempty"`
	ExampleResponses      []ExampleResponse `gorm:"serializer:json" json:"exampleResponses,omitempty"`
	EdgeCases             []EdgeCase        `gorm:"serializer:json" json:"edgeCases,omitempty"`
	ToolConfig            *ToolConfig       `gorm:"serializer:json" json:"toolConfig,omitempty"`
	PrivacyGuidelines     string            `json:"privacyGuidelines,omitempty"`

	ToolServers []ToolServer `gorm:"serializer:json" json:"toolServers,omitempty"`
	IsEnabled   bool         `gorm:"not null;default:true" json:"isEnabled"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChatSource identifies which channel a Chat arrived on.
type ChatSource string

const (
	SourceWhatsApp ChatSource = "whatsapp"
	SourceWebApp   ChatSource = "webapp"
)

// MessageRole is the role of one Message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

// MessageStatus tracks outbound delivery state.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
	StatusPending   MessageStatus = "pending"
)

// ContentPart is one element of a Message's content list. Exactly one of
// Text, Image, or File is populated, mirroring the {text}|{image}|{file}
// union in §3.
type ContentPart struct {
	Text *string    `json:"text,omitempty"`
	Image *MediaRef `json:"image,omitempty"`
	File  *MediaRef `json:"file,omitempty"`
}

// MediaRef is a URL-addressed piece of media referenced from a ContentPart
// or attachment.
type MediaRef struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Filename string `json:"filename,omitempty"`
}

// Attachment is a stored upload associated with a Message.
type Attachment struct {
	URL          string    `json:"url"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// ToolCall is one tool invocation the model requested.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON, opaque to the store
}

// Message is one turn entry in a Chat's append-only message list.
// Invariant: Parts is non-empty or Attachments is non-empty; if
// Role==RoleTool, ToolCallID must be set.
type Message struct {
	Role       MessageRole   `json:"role"`
	Parts      []ContentPart `json:"parts"`
	ToolCalls  []ToolCall    `json:"toolCalls,omitempty"`
	ToolCallID string        `json:"toolCallId,omitempty"`
	ToolName   string        `json:"toolName,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	Status     MessageStatus `json:"status"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ChatMetadata is the mutable bag of per-chat bookkeeping fields.
type ChatMetadata struct {
	UserName       string    `json:"userName,omitempty"`
	ConnectionName string    `json:"connectionName,omitempty"`
	LastActive     time.Time `json:"lastActive"`
	IsArchived     bool      `json:"isArchived"`
	Tags           []string  `json:"tags,omitempty"`
	Notes          string    `json:"notes,omitempty"`
}

// Chat is one conversation thread. (SessionID, Source) is globally unique.
type Chat struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	SessionID        string     `gorm:"size:200;not null;uniqueIndex:session_source" json:"sessionId"`
	Source           ChatSource `gorm:"size:16;not null;uniqueIndex:session_source" json:"source"`
	SystemPromptID   string     `gorm:"size:36;not null" json:"systemPromptId"`
	SystemPromptName string     `gorm:"size:200" json:"systemPromptName"`
	UserID           string     `gorm:"size:36;not null" json:"userId"`

	Messages []Message    `gorm:"serializer:json" json:"messages"`
	Metadata ChatMetadata `gorm:"embedded;embeddedPrefix:meta_" json:"metadata"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChatFilter identifies a Chat for upsertChat's find-or-insert.
type ChatFilter struct {
	SessionID      string
	Source         ChatSource
	UserID         string
	ConnectionName string // optional, whatsapp only
}

// WhatsAppStatus enumerates the §4.6 state machine's persisted status.
type WhatsAppStatus string

const (
	WAStatusNew                   WhatsAppStatus = "new"
	WAStatusInitializing          WhatsAppStatus = "initializing"
	WAStatusInitializingStartup   WhatsAppStatus = "initializing_startup"
	WAStatusQRPendingScan         WhatsAppStatus = "qr_pending_scan"
	WAStatusAuthenticated         WhatsAppStatus = "authenticated"
	WAStatusConnected             WhatsAppStatus = "connected"
	WAStatusAuthFailed            WhatsAppStatus = "auth_failed"
	WAStatusReconnecting          WhatsAppStatus = "reconnecting"
	WAStatusDisconnectedPermanent WhatsAppStatus = "disconnected_permanent"
	WAStatusClosedManually        WhatsAppStatus = "closed_manually"
)

// WhatsAppConnection is the persisted intent to run a WhatsApp session.
type WhatsAppConnection struct {
	ConnectionName   string         `gorm:"primaryKey;size:100" json:"connectionName"`
	SystemPromptName string         `gorm:"size:200;not null" json:"systemPromptName"`
	SystemPromptID   string         `gorm:"size:36;not null" json:"systemPromptId"`
	UserID           string         `gorm:"size:36;not null" json:"userId"`
	AutoReconnect    bool           `gorm:"not null;default:true" json:"autoReconnect"`
	LastKnownStatus  WhatsAppStatus `gorm:"size:32;not null;default:new" json:"lastKnownStatus"`

	LastConnectedAt           *time.Time `json:"lastConnectedAt,omitempty"`
	LastAttemptedReconnectAt  *time.Time `json:"lastAttemptedReconnectAt,omitempty"`
	PhoneNumber               *string    `gorm:"size:32" json:"phoneNumber,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// WhatsAppConnectionFilter is listWhatsAppConnections' query shape.
type WhatsAppConnectionFilter struct {
	AutoReconnect *bool
}

// TokenUsageRecord is an immutable per-turn accounting log entry.
type TokenUsageRecord struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	UserID           string    `gorm:"size:36;not null;index" json:"userId"`
	SystemPromptID   string    `gorm:"size:36;not null" json:"systemPromptId"`
	SystemPromptName string    `gorm:"size:200" json:"systemPromptName"`
	ChatID           string    `gorm:"size:36;not null" json:"chatId"`
	Source           ChatSource `gorm:"size:16;not null" json:"source"`
	ModelName        string    `gorm:"size:100;not null" json:"modelName"`
	PromptTokens     int64     `gorm:"not null" json:"promptTokens"`
	CompletionTokens int64     `gorm:"not null" json:"completionTokens"`
	TotalTokens      int64     `gorm:"not null" json:"totalTokens"`
	SessionID        string    `gorm:"size:200;not null" json:"sessionId"`
	Timestamp        time.Time `json:"timestamp"`

	// ProviderMetadata carries whatever extra, provider-specific detail
	// the LLM adapter returned for this turn (finish reason, echoed
	// model version, ...), stored opaquely the way the teacher's
	// workflow/order records keep a datatypes.JSON side-channel next to
	// their typed columns instead of growing the schema per provider.
	ProviderMetadata datatypes.JSON `gorm:"type:jsonb" json:"providerMetadata,omitempty"`
}
