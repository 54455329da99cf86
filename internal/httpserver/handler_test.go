package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ifinance/relay/internal/analysis"
	"github.com/ifinance/relay/internal/config"
	"github.com/ifinance/relay/internal/domain"
	"github.com/ifinance/relay/internal/httpserver"
	"github.com/ifinance/relay/internal/observability"
	"github.com/ifinance/relay/internal/provider/registry"
	"github.com/ifinance/relay/internal/relay"
	"github.com/ifinance/relay/internal/routing"
)

// fakeAdapter replays scripted delta events.
type fakeAdapter struct {
	name    string
	events  []domain.DeltaEvent
	openErr error
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) ResolveModel(model string) string {
	if model == "" {
		return "gpt-4o-mini"
	}
	return model
}

func (a *fakeAdapter) Stream(_ context.Context, _ *domain.ChatRequest) (<-chan domain.DeltaEvent, error) {
	if a.openErr != nil {
		return nil, a.openErr
	}
	ch := make(chan domain.DeltaEvent, len(a.events))
	for _, ev := range a.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

// In-memory store fakes.

type memUsers struct {
	byID map[string]*domain.User
}

func (m *memUsers) Create(_ context.Context, u *domain.User) error { m.byID[u.ID] = u; return nil }

func (m *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *memUsers) UpdateProfile(_ context.Context, u *domain.User) error {
	m.byID[u.ID] = u
	return nil
}

func (m *memUsers) IncrementTokensUsed(_ context.Context, id string, tokens int64) error {
	u, ok := m.byID[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.TokensUsed += tokens
	return nil
}

type memConversations struct {
	created []*domain.Conversation
}

func (m *memConversations) Create(_ context.Context, c *domain.Conversation) error {
	m.created = append(m.created, c)
	return nil
}

func (m *memConversations) GetByID(_ context.Context, _ string) (*domain.Conversation, error) {
	return nil, domain.ErrUserNotFound
}

func (m *memConversations) ListByUser(_ context.Context, _ string) ([]domain.Conversation, error) {
	return nil, nil
}

type memUsage struct {
	entries []*domain.UsageLogEntry
}

func (m *memUsage) Append(_ context.Context, e *domain.UsageLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memUsage) ListByUserSince(_ context.Context, userID string, _ time.Time) ([]domain.UsageLogEntry, error) {
	var out []domain.UsageLogEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	return out, nil
}

type memFiles struct {
	byID map[string]*domain.FileRecord
}

func (m *memFiles) Create(_ context.Context, f *domain.FileRecord) error {
	m.byID[f.ID] = f
	return nil
}

func (m *memFiles) GetByIDs(_ context.Context, userID string, ids []string) ([]domain.FileRecord, error) {
	var out []domain.FileRecord
	for _, id := range ids {
		if f, ok := m.byID[id]; ok && f.UserID == userID {
			out = append(out, *f)
		}
	}
	return out, nil
}

type memTemplates struct {
	byID map[string]*domain.FinancialTemplate
}

func (m *memTemplates) GetByID(_ context.Context, id string) (*domain.FinancialTemplate, error) {
	tpl, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrTemplateNotFound
	}
	return tpl, nil
}

func (m *memTemplates) GetByName(_ context.Context, name string) (*domain.FinancialTemplate, error) {
	for _, tpl := range m.byID {
		if tpl.Name == name {
			return tpl, nil
		}
	}
	return nil, domain.ErrTemplateNotFound
}

func (m *memTemplates) Upsert(_ context.Context, tpl *domain.FinancialTemplate) error {
	m.byID[tpl.ID] = tpl
	return nil
}

type memAudit struct {
	entries []*domain.AuditLogEntry
}

func (m *memAudit) Append(_ context.Context, e *domain.AuditLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

type fixture struct {
	handler       *httpserver.Handler
	gateway       *fakeAdapter
	users         *memUsers
	conversations *memConversations
	usage         *memUsage
	files         *memFiles
	templates     *memTemplates
	audit         *memAudit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gatewayAdapter := &fakeAdapter{name: routing.BackendGateway, events: []domain.DeltaEvent{
		{Content: "Olá"},
		{Content: "!"},
		{Terminal: true, TotalTokens: 42},
	}}

	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(gatewayAdapter))

	users := &memUsers{byID: map[string]*domain.User{
		"u1": {ID: "u1", Email: "ana@example.com", TokensUsed: 0, TokensLimit: 10000},
		"u2": {ID: "u2", Email: "max@example.com", TokensUsed: 10000, TokensLimit: 10000},
	}}
	conversations := &memConversations{}
	usage := &memUsage{}
	files := &memFiles{byID: map[string]*domain.FileRecord{}}
	templates := &memTemplates{byID: map[string]*domain.FinancialTemplate{}}
	audit := &memAudit{}

	finalizer := relay.NewFinalizer(conversations, users, usage, &relay.RelayCostConfig{
		FallbackTokenEstimate: 100,
		CostPerToken:          0.0001,
	})

	cfg := &config.RelayConfig{
		MaxTokens:             3000,
		Temperature:           0.7,
		AnalysisModel:         "gpt-4o",
		AnalysisMaxTokens:     8000,
		AnalysisTemperature:   0.3,
		FallbackTokenEstimate: 100,
		CostPerToken:          0.0001,
	}

	handler := httpserver.NewHandler(
		cfg,
		domain.NewQuotaGate(users),
		routing.NewRouter(reg),
		relay.NewController(finalizer),
		nil, // auth service is not exercised by these tests
		users,
		usage,
		files,
		templates,
		audit,
	)

	return &fixture{
		handler:       handler,
		gateway:       gatewayAdapter,
		users:         users,
		conversations: conversations,
		usage:         usage,
		files:         files,
		templates:     templates,
		audit:         audit,
	}
}

func authedRequest(method, target, userID string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if userID != "" {
		req = req.WithContext(observability.WithUserID(req.Context(), userID))
	}
	return req
}

func chatBody(t *testing.T) []byte {
	t.Helper()

	body, err := json.Marshal(domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "Quanto gastei?"}},
	})
	require.NoError(t, err)
	return body
}

func TestHandler_HandleChat(t *testing.T) {
	t.Run("should stream SSE and persist the exchange", func(t *testing.T) {
		f := newFixture(t)
		rec := httptest.NewRecorder()

		f.handler.HandleChat(rec, authedRequest(http.MethodPost, "/api/chat", "u1", chatBody(t)))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

		body := rec.Body.String()
		require.Contains(t, body, `data: {"content":"Olá"}`)
		require.Contains(t, body, `data: {"content":"!"}`)
		require.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))

		require.Len(t, f.conversations.created, 1)
		require.Equal(t, int64(42), f.users.byID["u1"].TokensUsed)
		require.Len(t, f.usage.entries, 1)
		require.Equal(t, domain.RequestTypeChat, f.usage.entries[0].RequestType)
	})

	t.Run("should reject an unauthenticated request", func(t *testing.T) {
		f := newFixture(t)
		rec := httptest.NewRecorder()

		f.handler.HandleChat(rec, authedRequest(http.MethodPost, "/api/chat", "", chatBody(t)))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("should reject malformed messages", func(t *testing.T) {
		f := newFixture(t)
		rec := httptest.NewRecorder()

		f.handler.HandleChat(rec, authedRequest(http.MethodPost, "/api/chat", "u1", []byte(`{"messages":[]}`)))

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should return 404 for an unknown user", func(t *testing.T) {
		f := newFixture(t)
		rec := httptest.NewRecorder()

		f.handler.HandleChat(rec, authedRequest(http.MethodPost, "/api/chat", "ghost", chatBody(t)))

		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("should return 429 when the quota is spent", func(t *testing.T) {
		f := newFixture(t)
		rec := httptest.NewRecorder()

		f.handler.HandleChat(rec, authedRequest(http.MethodPost, "/api/chat", "u2", chatBody(t)))

		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Empty(t, f.usage.entries)
	})

	t.Run("should return 500 when the upstream rejects before streaming", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.openErr = &domain.UpstreamError{Provider: "gateway", Status: 503, Message: "down"}
		rec := httptest.NewRecorder()

		f.handler.HandleChat(rec, authedRequest(http.MethodPost, "/api/chat", "u1", chatBody(t)))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Empty(t, f.conversations.created)
		require.Empty(t, f.usage.entries)
	})
}

func TestHandler_HandleFinancialAnalysis(t *testing.T) {
	t.Run("should stream plain text and bill as analysis", func(t *testing.T) {
		f := newFixture(t)
		f.files.byID["f1"] = &domain.FileRecord{
			ID: "f1", UserID: "u1", Name: "balanco.csv", ExtractedText: "receita,100",
		}
		rec := httptest.NewRecorder()

		body := []byte(`{"clientName":"Padaria Silva","fileIds":["f1"]}`)
		f.handler.HandleFinancialAnalysis(rec, authedRequest(http.MethodPost, "/api/financial-analysis", "u1", body))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
		require.Equal(t, "Olá!", rec.Body.String())

		require.Len(t, f.usage.entries, 1)
		require.Equal(t, domain.RequestTypeFinancialAnalysis, f.usage.entries[0].RequestType)
	})

	t.Run("should require a client name", func(t *testing.T) {
		f := newFixture(t)
		rec := httptest.NewRecorder()

		f.handler.HandleFinancialAnalysis(rec, authedRequest(http.MethodPost, "/api/financial-analysis", "u1", []byte(`{}`)))

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_HandleProfile(t *testing.T) {
	t.Run("should return the caller's profile", func(t *testing.T) {
		f := newFixture(t)
		rec := httptest.NewRecorder()

		f.handler.HandleProfile(rec, authedRequest(http.MethodGet, "/api/user/profile", "u1", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var user domain.User
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
		require.Equal(t, "ana@example.com", user.Email)
	})

	t.Run("should update names", func(t *testing.T) {
		f := newFixture(t)
		rec := httptest.NewRecorder()

		body := []byte(`{"firstName":"Ana","lastName":"Souza","companyName":"Padaria Silva"}`)
		f.handler.HandleProfile(rec, authedRequest(http.MethodPut, "/api/user/profile", "u1", body))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "Ana Souza", f.users.byID["u1"].Name)
		require.Equal(t, "Padaria Silva", f.users.byID["u1"].CompanyName)
	})

	t.Run("should reject other methods", func(t *testing.T) {
		f := newFixture(t)
		rec := httptest.NewRecorder()

		f.handler.HandleProfile(rec, authedRequest(http.MethodDelete, "/api/user/profile", "u1", nil))

		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestHandler_HandleUsage(t *testing.T) {
	t.Run("should aggregate the trailing window", func(t *testing.T) {
		f := newFixture(t)
		now := time.Now()
		f.usage.entries = []*domain.UsageLogEntry{
			{UserID: "u1", TokenCount: 100, Cost: 0.01, ResponseTimeMs: 200, CreatedAt: now},
			{UserID: "u1", TokenCount: 300, Cost: 0.03, ResponseTimeMs: 400, CreatedAt: now},
			{UserID: "u2", TokenCount: 999, Cost: 0.10, ResponseTimeMs: 100, CreatedAt: now},
		}
		rec := httptest.NewRecorder()

		f.handler.HandleUsage(rec, authedRequest(http.MethodGet, "/api/user/usage", "u1", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var stats domain.UsageStats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		require.Equal(t, int64(400), stats.TotalTokens)
		require.InDelta(t, 0.04, stats.TotalCost, 1e-9)
		require.Equal(t, int64(2), stats.TotalRequests)
		require.InDelta(t, 300.0, stats.AvgResponseTimeMs, 1e-9)
		require.Equal(t, int64(10000), stats.TokensLimit)
	})
}

func TestHandler_HandleUseTemplate(t *testing.T) {
	t.Run("should resolve the seeded template and audit the use", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.templates.Upsert(context.Background(), analysis.SeedTemplate()))
		rec := httptest.NewRecorder()

		body := []byte(`{"templateId":"ifinance-template"}`)
		f.handler.HandleUseTemplate(rec, authedRequest(http.MethodPost, "/api/templates/use", "u1", body))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, f.audit.entries, 1)
		require.Equal(t, "USE_TEMPLATE", f.audit.entries[0].Action)
	})

	t.Run("should fall back to the template name", func(t *testing.T) {
		f := newFixture(t)
		seeded := analysis.SeedTemplate()
		seeded.ID = "some-other-id"
		require.NoError(t, f.templates.Upsert(context.Background(), seeded))
		rec := httptest.NewRecorder()

		body := []byte(`{"templateId":"ifinance-template"}`)
		f.handler.HandleUseTemplate(rec, authedRequest(http.MethodPost, "/api/templates/use", "u1", body))

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("should 404 an unknown template", func(t *testing.T) {
		f := newFixture(t)
		rec := httptest.NewRecorder()

		body := []byte(`{"templateId":"nope"}`)
		f.handler.HandleUseTemplate(rec, authedRequest(http.MethodPost, "/api/templates/use", "u1", body))

		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandler_HandleHealth(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()

	f.handler.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
