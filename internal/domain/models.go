package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Message roles accepted on inbound chat requests.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request type tags recorded on usage-log entries.
const (
	RequestTypeChat              = "chat"
	RequestTypeFinancialAnalysis = "financial-analysis"
)

const (
	titleMaxLen   = 50
	titleEllipsis = "..."

	// DefaultTitle is used when a conversation has no user message to
	// derive a title from.
	DefaultTitle = "Nova Conversa"
)

// Message is a single chat message in the OpenAI role/content shape.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ChatRequest is the unified inbound request. Provider is a routing hint
// ("auto" lets the router decide from the model name).
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ValidRole reports whether role is one of the accepted message roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Validate checks the request against the inbound contract: a non-empty
// message list where every role is one of the enumerated values.
func (r *ChatRequest) Validate() error {
	if r == nil || len(r.Messages) == 0 {
		return ErrInvalidInput
	}
	for _, msg := range r.Messages {
		if !ValidRole(msg.Role) {
			return ErrInvalidInput
		}
	}
	return nil
}

// DeltaEvent is the canonical unit emitted by an adapter mid-stream.
// TotalTokens is only meaningful on the terminal event; a closed channel
// without a terminal event is treated as terminal with no token count.
type DeltaEvent struct {
	Content     string
	TotalTokens int64
	Terminal    bool
	Err         error
}

// User is the persisted account aggregate. TokensUsed and TokensLimit form
// the quota state the relay reads at entry and increments at finalization.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name,omitempty"`
	FirstName    string    `json:"firstName,omitempty"`
	LastName     string    `json:"lastName,omitempty"`
	CompanyName  string    `json:"companyName,omitempty"`
	Plan         string    `json:"plan"`
	TokensUsed   int64     `json:"tokensUsed"`
	TokensLimit  int64     `json:"tokensLimit"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Conversation is the persisted exchange aggregate. Created once at
// finalization, never mutated afterward.
type Conversation struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	UserID    string              `json:"userId"`
	Model     string              `json:"model"`
	Provider  string              `json:"provider"`
	Messages  []ConversationEntry `json:"messages"`
	CreatedAt time.Time           `json:"createdAt"`
}

// ConversationEntry is one persisted message. Model, provider, token count
// and latency are only set for non-user roles.
type ConversationEntry struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Model      string    `json:"model,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	TokenCount int64     `json:"tokenCount,omitempty"`
	LatencyMs  int64     `json:"latency,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UsageLogEntry is one append-only accounting record.
type UsageLogEntry struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	TokenCount     int64     `json:"tokenCount"`
	Cost           float64   `json:"cost"`
	RequestType    string    `json:"requestType"`
	ResponseTimeMs int64     `json:"responseTime"`
	CreatedAt      time.Time `json:"createdAt"`
}

// UsageStats aggregates a user's usage-log entries for the stats endpoint.
type UsageStats struct {
	TokensUsed        int64   `json:"tokensUsed"`
	TokensLimit       int64   `json:"tokensLimit"`
	TotalTokens       int64   `json:"totalTokens"`
	TotalCost         float64 `json:"totalCost"`
	TotalRequests     int64   `json:"totalRequests"`
	AvgResponseTimeMs float64 `json:"avgResponseTime"`
}

// FileRecord holds uploaded file metadata plus any extracted text consumed
// by the financial-analysis route.
type FileRecord struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Name          string    `json:"name"`
	Size          int64     `json:"size"`
	ContentType   string    `json:"contentType"`
	ExtractedText string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
}

// FinancialTemplate is a static prompt template.
type FinancialTemplate struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Prompt      string  `json:"prompt"`
	Category    string  `json:"category"`
	Active      bool    `json:"active"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

// AuditLogEntry records a user-initiated action against a resource.
type AuditLogEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// DeriveTitle builds a conversation title from the first user message: the
// first 50 characters suffixed with an ellipsis, or a placeholder when no
// user message exists.
func DeriveTitle(messages []Message) string {
	for _, msg := range messages {
		if msg.Role != RoleUser {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			break
		}
		if utf8.RuneCountInString(content) <= titleMaxLen {
			return content + titleEllipsis
		}
		runes := []rune(content)
		return string(runes[:titleMaxLen]) + titleEllipsis
	}
	return DefaultTitle
}
