package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/iconidentify/xgrab/internal/domain"
	"github.com/iconidentify/xgrab/internal/service"
)

const maxRequestBodyBytes = 64 << 10

// MediaHandler handles media resolution requests.
type MediaHandler struct {
	mediaSvc *service.MediaService
	logger   *slog.Logger
}

// NewMediaHandler creates a new media handler.
func NewMediaHandler(mediaSvc *service.MediaService, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{
		mediaSvc: mediaSvc,
		logger:   logger,
	}
}

// ResolveRequest is the JSON request body for media resolution.
type ResolveRequest struct {
	URL string `json:"url"`
	// TweetURL is accepted from older front-end builds.
	TweetURL string `json:"tweetUrl,omitempty"`
}

func (r ResolveRequest) target() string {
	if strings.TrimSpace(r.URL) != "" {
		return r.URL
	}
	return r.TweetURL
}

// GuestTokenResponse is returned by GET /api/twitter.
type GuestTokenResponse struct {
	GuestToken string `json:"guestToken"`
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	ErrorID string `json:"error_id"`
}

// Resolve handles POST /api/twitter
func (h *MediaHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	req, err := decodeResolveRequest(w, r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp, err := h.mediaSvc.Resolve(r.Context(), req.target())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Raw handles POST /api/twitter/raw
func (h *MediaHandler) Raw(w http.ResponseWriter, r *http.Request) {
	req, err := decodeResolveRequest(w, r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	raw, err := h.mediaSvc.Raw(r.Context(), req.target())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// GuestToken handles GET /api/twitter
func (h *MediaHandler) GuestToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.mediaSvc.GuestToken(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, GuestTokenResponse{GuestToken: token})
}

func decodeResolveRequest(w http.ResponseWriter, r *http.Request) (ResolveRequest, error) {
	var req ResolveRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, domain.NewError(domain.KindInvalidInput, "decode request", err).
			WithDetail("invalid request body")
	}
	return req, nil
}

// writeDomainError maps err to its status and logs the full diagnostic
// under an error id that is also returned to the caller.
func (h *MediaHandler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := domain.HTTPStatus(err)
	errorID := uuid.NewString()

	message := "internal error"
	var de *domain.Error
	if errors.As(err, &de) {
		message = de.Message()
	}
	if status == http.StatusGatewayTimeout {
		message = "upstream request timed out"
	}

	attrs := []any{
		"error_id", errorID,
		"request_id", middleware.GetReqID(r.Context()),
		"status", status,
		"kind", domain.KindOf(err),
		"error", err,
	}
	if status >= 500 {
		h.logger.Error("request failed", attrs...)
	} else {
		h.logger.Info("request rejected", attrs...)
	}

	h.writeJSON(w, status, ErrorResponse{
		Error:   message,
		Kind:    string(domain.KindOf(err)),
		ErrorID: errorID,
	})
}

func (h *MediaHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
