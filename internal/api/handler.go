// Package api provides the HTTP handlers for the chat service: the chat
// and conversation endpoints plus the service banner and health report.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/densefog/parley/internal/httputil"
	"github.com/densefog/parley/pkg/errors"
	"github.com/densefog/parley/pkg/types"
)

// sessionIDPattern bounds session ids to characters that are safe as
// storage keys. Anything else is rejected before it reaches a backend.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// Chatter runs chat turns and serves stored history. Implemented by
// *session.Manager.
type Chatter interface {
	Chat(ctx context.Context, sessionID, message string) (*types.ChatResponse, error)
	History(ctx context.Context, sessionID string) (*types.Conversation, error)
}

// RegionReporter exposes the dispatcher's live region view for the health
// report. Implemented by *dispatch.Dispatcher.
type RegionReporter interface {
	CurrentRegion() string
	Regions() []string
}

// Handler handles HTTP requests for the chat service.
type Handler struct {
	chat        Chatter
	regions     RegionReporter
	backend     string
	modelID     string
	maxBodySize int64
	logger      *slog.Logger
}

// NewHandler creates a new API handler. The backend and model id are
// reported verbatim on the banner and health endpoints.
func NewHandler(chat Chatter, regions RegionReporter, backend, modelID string, logger *slog.Logger) *Handler {
	return &Handler{
		chat:        chat,
		regions:     regions,
		backend:     backend,
		modelID:     modelID,
		maxBodySize: httputil.DefaultMaxRequestBodyBytes,
		logger:      logger,
	}
}

// RegisterRoutes registers all service routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", h.Chat)
	mux.HandleFunc("GET /conversation/{session_id}", h.Conversation)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /{$}", h.Root)
}

// Chat handles POST /chat requests.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadLimitedBody(r.Body, h.maxBodySize)
	if err != nil {
		h.writeError(w, errors.NewInvalidRequestError("", "request body too large or unreadable"))
		return
	}
	defer func() { _ = r.Body.Close() }()

	var req types.ChatRequest
	if unmarshalErr := json.Unmarshal(body, &req); unmarshalErr != nil {
		h.writeError(w, errors.NewInvalidRequestError("", "invalid JSON: "+unmarshalErr.Error()))
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		h.writeError(w, errors.NewInvalidRequestError("", "message is required"))
		return
	}
	if req.SessionID != "" && !sessionIDPattern.MatchString(req.SessionID) {
		h.writeError(w, errors.NewInvalidRequestError("", "invalid session_id"))
		return
	}

	resp, err := h.chat.Chat(r.Context(), req.SessionID, req.Message)
	if err != nil {
		h.logger.Error("chat request failed", "session_id", req.SessionID, "error", err)
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Conversation handles GET /conversation/{session_id} requests. Unknown
// sessions return an empty log, not 404.
func (h *Handler) Conversation(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if !sessionIDPattern.MatchString(sessionID) {
		h.writeError(w, errors.NewInvalidRequestError("", "invalid session_id"))
		return
	}

	conv, err := h.chat.History(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("conversation lookup failed", "session_id", sessionID, "error", err)
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(conv)
}

// Root handles GET / with a short service banner.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message":        "parley chat API",
		"memory_enabled": true,
		"storage":        h.backend,
		"ai_model":       h.modelID,
	})
}

// Health handles GET /health with the live storage, model, and region
// status. The current region reflects wherever the failover cursor rests.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":          "healthy",
		"storage":         h.backend,
		"bedrock_model":   h.modelID,
		"bedrock_regions": h.regions.Regions(),
		"current_region":  h.regions.CurrentRegion(),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	chatErr, ok := err.(*errors.ChatError)
	if !ok {
		chatErr = errors.NewInternalError(err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(chatErr.HTTPStatusCode())

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{
			Message: chatErr.Message,
			Type:    chatErr.Type,
		},
	})
}
