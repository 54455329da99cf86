package domain

import (
	"context"
	"time"
)

// Adapter wraps one upstream LLM backend and normalizes its native
// streaming format into a canonical delta-event sequence.
type Adapter interface {
	// Name returns the backend identifier, e.g. "gateway" or "groq".
	Name() string

	// ResolveModel maps a requested model name through the backend's
	// alias table; unmapped names fall through to the backend default.
	ResolveModel(model string) string

	// Stream opens the upstream streaming call and returns a lazy,
	// finite, non-restartable sequence of delta events. A pre-stream
	// failure is returned as *UpstreamError before any event is emitted.
	// The adapter closes the channel when the upstream stream ends;
	// a close without a terminal event is an implicit terminal.
	Stream(ctx context.Context, req *ChatRequest) (<-chan DeltaEvent, error)
}

// AdapterRegistry manages the adapters available to the router.
type AdapterRegistry interface {
	// Register adds an adapter to the registry.
	Register(adapter Adapter) error

	// Get retrieves an adapter by backend name.
	Get(name string) (Adapter, bool)

	// List returns all registered backend names.
	List() []string
}

// UserStore is the user-lookup-and-update capability consumed by the
// quota gate and the usage finalizer.
type UserStore interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, user *User) error

	// IncrementTokensUsed adds tokens to the user's cumulative counter.
	// The increment is atomic at the database layer, so concurrent
	// finalizations never lose updates.
	IncrementTokensUsed(ctx context.Context, id string, tokens int64) error
}

// ConversationStore is the conversation/message persistence capability.
// Create persists the conversation and all its entries as one transaction.
type ConversationStore interface {
	Create(ctx context.Context, conv *Conversation) error
	GetByID(ctx context.Context, id string) (*Conversation, error)
	ListByUser(ctx context.Context, userID string) ([]Conversation, error)
}

// UsageStore is the append-only usage-log capability.
type UsageStore interface {
	Append(ctx context.Context, entry *UsageLogEntry) error
	ListByUserSince(ctx context.Context, userID string, since time.Time) ([]UsageLogEntry, error)
}

// FileStore is the file-metadata lookup capability used by the
// financial-analysis route.
type FileStore interface {
	Create(ctx context.Context, file *FileRecord) error
	GetByIDs(ctx context.Context, userID string, ids []string) ([]FileRecord, error)
}

// TemplateStore serves static financial templates.
type TemplateStore interface {
	GetByID(ctx context.Context, id string) (*FinancialTemplate, error)
	GetByName(ctx context.Context, name string) (*FinancialTemplate, error)
	Upsert(ctx context.Context, tpl *FinancialTemplate) error
}

// AuditStore appends audit-log entries.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditLogEntry) error
}

// SessionStore maps opaque session ids to user ids. Sessions expire
// server-side independently of token expiry.
type SessionStore interface {
	Put(ctx context.Context, sessionID, userID string, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
}
