package transcription

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	model "github.com/parley-ai/parley/backend/internal/model/transcription"
	"github.com/parley-ai/parley/backend/internal/service/asr"
	service "github.com/parley-ai/parley/backend/internal/service/transcription"
	"github.com/parley-ai/parley/backend/pkg/utils"
)

// SessionService is the session layer the handler drives.
type SessionService interface {
	Open(ctx context.Context) (string, error)
	SendAudio(ctx context.Context, sessionID, audioBase64 string, sampleRate int) (string, error)
	Commit(ctx context.Context, sessionID string) error
	Transcripts(sessionID string) (service.Snapshot, error)
	Close(sessionID string)
}

// Handler serves the realtime transcription endpoints.
type Handler struct {
	svc    SessionService
	logger *log.Logger
}

// New creates a transcription handler.
func New(svc SessionService, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the session routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/connect", h.handleConnect)
	r.Post("/audio", h.handleAudio)
	r.Post("/commit", h.handleCommit)
	r.Get("/transcripts", h.handleTranscripts)
	r.Post("/disconnect", h.handleDisconnect)
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.Open(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, asr.ErrNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		h.logger.Error("connect failed", "err", err)
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, model.ConnectResponse{SessionID: id})
}

func (h *Handler) handleAudio(w http.ResponseWriter, r *http.Request) {
	var req model.AudioRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if strings.TrimSpace(req.Audio()) == "" {
		utils.RespondError(w, http.StatusBadRequest, "audioBase64 is required")
		return
	}

	warning, err := h.svc.SendAudio(r.Context(), req.SessionID, req.Audio(), req.SampleRate)
	if err != nil {
		h.respondServiceError(w, req.SessionID, "audio", err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, model.AckResponse{Success: true, Warning: warning})
}

func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req model.SessionRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	if err := h.svc.Commit(r.Context(), req.SessionID); err != nil {
		h.respondServiceError(w, req.SessionID, "commit", err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, model.AckResponse{Success: true})
}

func (h *Handler) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId query parameter is required")
		return
	}

	snap, err := h.svc.Transcripts(sessionID)
	if err != nil {
		h.respondServiceError(w, sessionID, "transcripts", err)
		return
	}

	resp := model.TranscriptsResponse{
		SessionID:   sessionID,
		Transcripts: snap.Transcripts,
		Count:       len(snap.Transcripts),
	}
	if fault := snap.ProviderFault; fault != nil {
		resp.ProviderError = &model.ProviderError{
			Kind:    string(fault.Kind),
			Message: fault.Message,
			At:      fault.At,
		}
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleDisconnect always acknowledges, including unknown sessions.
func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req model.SessionRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.SessionID != "" {
		h.svc.Close(req.SessionID)
	}

	utils.RespondJSON(w, http.StatusOK, model.AckResponse{Success: true})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, sessionID, op string, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, service.ErrInvalidAudio):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, asr.ErrTransport):
		h.logger.Warn("provider transport failure", "op", op, "session", sessionID, "err", err)
		utils.RespondError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("request failed", "op", op, "session", sessionID, "err", err)
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
