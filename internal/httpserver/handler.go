// Package httpserver exposes the relay over HTTP: a streaming chat
// endpoint, the financial-analysis endpoint, and the account/usage
// surface around them.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ifinance/relay/internal/analysis"
	"github.com/ifinance/relay/internal/auth"
	"github.com/ifinance/relay/internal/config"
	"github.com/ifinance/relay/internal/domain"
	"github.com/ifinance/relay/internal/observability"
	"github.com/ifinance/relay/internal/relay"
	"github.com/ifinance/relay/internal/routing"
)

const (
	maxUploadBytes  = 50 << 20
	usageWindowDays = 30
)

// Handler carries the endpoint implementations and their dependencies.
type Handler struct {
	cfg        *config.RelayConfig
	quota      *domain.QuotaGate
	router     *routing.Router
	controller *relay.Controller
	authSvc    *auth.Service
	users      domain.UserStore
	usage      domain.UsageStore
	files      domain.FileStore
	templates  domain.TemplateStore
	audit      domain.AuditStore
}

// NewHandler creates the endpoint handler (DI constructor).
func NewHandler(
	cfg *config.RelayConfig,
	quota *domain.QuotaGate,
	router *routing.Router,
	controller *relay.Controller,
	authSvc *auth.Service,
	users domain.UserStore,
	usage domain.UsageStore,
	files domain.FileStore,
	templates domain.TemplateStore,
	audit domain.AuditStore,
) *Handler {
	return &Handler{
		cfg:        cfg,
		quota:      quota,
		router:     router,
		controller: controller,
		authSvc:    authSvc,
		users:      users,
		usage:      usage,
		files:      files,
		templates:  templates,
		audit:      audit,
	}
}

// HandleChat streams a chat completion back to the client as SSE.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := observability.GetUserID(ctx)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error())
		return
	}

	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidInput.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.quota.Check(ctx, userID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	adapter, model := h.router.Resolve(req.Provider, req.Model)
	req.Model = model
	if req.MaxTokens <= 0 {
		req.MaxTokens = h.cfg.MaxTokens
	}
	if req.Temperature <= 0 {
		req.Temperature = h.cfg.Temperature
	}

	ctx = observability.WithProvider(ctx, adapter.Name())
	ctx = observability.WithModel(ctx, model)

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	h.stream(ctx, w, sse, relay.Session{
		UserID:      userID,
		Request:     &req,
		Adapter:     adapter,
		RequestType: domain.RequestTypeChat,
	})
}

// financialAnalysisRequest is the body of POST /api/financial-analysis.
type financialAnalysisRequest struct {
	ClientName        string   `json:"clientName"`
	FileIDs           []string `json:"fileIds,omitempty"`
	AdditionalContext string   `json:"additionalContext,omitempty"`
}

// HandleFinancialAnalysis streams a full financial report as plain text,
// built from the analysis template and the caller's uploaded documents.
func (h *Handler) HandleFinancialAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := observability.GetUserID(ctx)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error())
		return
	}

	var req financialAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ClientName) == "" {
		writeError(w, http.StatusBadRequest, "clientName is required")
		return
	}

	if _, err := h.quota.Check(ctx, userID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	var files []domain.FileRecord
	if len(req.FileIDs) > 0 {
		var err error
		files, err = h.files.GetByIDs(ctx, userID, req.FileIDs)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
	}

	chatReq := &domain.ChatRequest{
		Messages:    analysis.Messages(req.ClientName, files, req.AdditionalContext),
		Model:       h.cfg.AnalysisModel,
		Temperature: h.cfg.AnalysisTemperature,
		MaxTokens:   h.cfg.AnalysisMaxTokens,
	}

	adapter, model := h.router.Resolve("", chatReq.Model)
	chatReq.Model = model

	ctx = observability.WithProvider(ctx, adapter.Name())
	ctx = observability.WithModel(ctx, model)

	raw, err := newRawWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	h.stream(ctx, w, raw, relay.Session{
		UserID:      userID,
		Request:     chatReq,
		Adapter:     adapter,
		RequestType: domain.RequestTypeFinancialAnalysis,
	})
}

// stream runs the relay and maps pre-stream failures to a JSON error.
// Once any frame has reached the client the response is committed, so
// later failures can only tear the connection down.
func (h *Handler) stream(ctx context.Context, rw http.ResponseWriter, fw startedWriter, sess relay.Session) {
	logger := observability.FromContext(ctx)

	if err := h.controller.Relay(ctx, fw, sess); err != nil {
		if !fw.Started() {
			writeRelayError(rw, err)
			return
		}
		logger.Warn("stream ended abnormally", observability.Error(err))
	}
}

// HandleSignup registers a new account.
func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var in auth.SignupInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.authSvc.Signup(r.Context(), in)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

// loginRequest is the body of POST /api/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin verifies credentials and returns a session token.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, user, err := h.authSvc.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

// HandleProfile serves GET (read) and PUT (update) for the caller's
// account profile.
func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := observability.GetUserID(ctx)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, err := h.users.GetByID(ctx, userID)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, user)

	case http.MethodPut:
		var in struct {
			FirstName   string `json:"firstName"`
			LastName    string `json:"lastName"`
			CompanyName string `json:"companyName"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		user, err := h.users.GetByID(ctx, userID)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		user.FirstName = in.FirstName
		user.LastName = in.LastName
		user.CompanyName = in.CompanyName
		user.Name = strings.TrimSpace(in.FirstName + " " + in.LastName)

		if err := h.users.UpdateProfile(ctx, user); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, user)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// HandleUsage aggregates the caller's usage log over the trailing
// 30-day window.
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := observability.GetUserID(ctx)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error())
		return
	}

	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	since := time.Now().AddDate(0, 0, -usageWindowDays)
	entries, err := h.usage.ListByUserSince(ctx, userID, since)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	stats := domain.UsageStats{
		TokensUsed:  user.TokensUsed,
		TokensLimit: user.TokensLimit,
	}
	var totalResponseMs int64
	for _, e := range entries {
		stats.TotalTokens += e.TokenCount
		stats.TotalCost += e.Cost
		stats.TotalRequests++
		totalResponseMs += e.ResponseTimeMs
	}
	if stats.TotalRequests > 0 {
		stats.AvgResponseTimeMs = float64(totalResponseMs) / float64(stats.TotalRequests)
	}

	writeJSON(w, http.StatusOK, stats)
}

// useTemplateRequest is the body of POST /api/templates/use.
type useTemplateRequest struct {
	TemplateID string `json:"templateId"`
}

// HandleUseTemplate resolves a financial template and records the use in
// the audit log.
func (h *Handler) HandleUseTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	userID := observability.GetUserID(ctx)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error())
		return
	}

	var in useTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.TemplateID == "" {
		writeError(w, http.StatusBadRequest, "templateId is required")
		return
	}

	tpl, err := h.templates.GetByID(ctx, in.TemplateID)
	if errors.Is(err, domain.ErrTemplateNotFound) {
		tpl, err = h.templates.GetByName(ctx, analysis.TemplateName)
	}
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	entry := &domain.AuditLogEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    "USE_TEMPLATE",
		Resource:  tpl.ID,
		CreatedAt: time.Now(),
	}
	if err := h.audit.Append(ctx, entry); err != nil {
		logger.Warn("audit append failed", observability.Error(err))
	}

	writeJSON(w, http.StatusOK, tpl)
}

// HandleUpload accepts a multipart file upload and stores its metadata.
// Textual payloads also have their content captured for later use as
// analysis context.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := observability.GetUserID(ctx)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	record := &domain.FileRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        header.Filename,
		Size:        header.Size,
		ContentType: contentType,
		CreatedAt:   time.Now(),
	}

	if isTextual(contentType) {
		text, err := readAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "reading upload failed")
			return
		}
		record.ExtractedText = text
	}

	if err := h.files.Create(ctx, record); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func isTextual(contentType string) bool {
	if strings.HasPrefix(contentType, "text/") {
		return true
	}
	switch contentType {
	case "application/json", "text/csv", "application/csv":
		return true
	}
	return false
}

func readAll(file multipart.File) (string, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// writeRelayError maps a pre-stream relay failure to an HTTP status.
func writeRelayError(w http.ResponseWriter, err error) {
	if domain.IsUpstreamError(err) {
		writeError(w, http.StatusInternalServerError, "upstream provider error")
		return
	}
	writeError(w, statusFor(err), err.Error())
}

// statusFor maps domain errors to HTTP statuses. Unknown errors are
// internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrEmailTaken):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrTemplateNotFound),
		errors.Is(err, domain.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
