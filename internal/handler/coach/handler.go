package coach

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	model "github.com/parley-ai/parley/backend/internal/model/coach"
	"github.com/parley-ai/parley/backend/internal/service/ai"
	"github.com/parley-ai/parley/backend/pkg/utils"
)

const unavailableFallback = "Unable to generate insights at this time."

// Coach generates insights and metrics for a conversation.
type Coach interface {
	StreamingEnabled() bool
	Insights(ctx context.Context, req model.AnalyzeRequest) (string, error)
	StreamInsights(ctx context.Context, req model.AnalyzeRequest) (*schema.StreamReader[*schema.Message], error)
	Metrics(ctx context.Context, req model.AnalyzeRequest) (model.Metrics, error)
	ActionItems(ctx context.Context, req model.ActionItemsRequest) (model.ActionItemsResponse, error)
}

// Conversations resolves a session id to its committed transcripts.
type Conversations interface {
	Conversation(sessionID string) []string
}

// Handler serves the coaching endpoints.
type Handler struct {
	coach         Coach
	conversations Conversations
	logger        *log.Logger
}

// New creates a coach handler. A nil coach makes every route answer 503.
func New(c Coach, conversations Conversations, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Handler{coach: c, conversations: conversations, logger: logger}
}

// RegisterRoutes mounts the coaching routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/analyze", h.handleAnalyzeStream)
	r.Post("/analyze-sync", h.handleAnalyzeSync)
	r.Post("/metrics", h.handleMetrics)
	r.Post("/action-items", h.handleActionItems)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, requireAction bool) (model.AnalyzeRequest, bool) {
	if h.coach == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "ai coaching unavailable")
		return model.AnalyzeRequest{}, false
	}

	var req model.AnalyzeRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return model.AnalyzeRequest{}, false
	}
	if requireAction && !req.ValidAction() {
		utils.RespondError(w, http.StatusBadRequest, "actionType must be 'arguments' or 'outcome'")
		return model.AnalyzeRequest{}, false
	}

	if len(req.Messages) == 0 {
		req.Messages = h.sessionMessages(req.SessionID)
	}
	return req, true
}

// sessionMessages turns the session transcripts into conversation messages.
// Transcripts carry no speaker, so they are attributed to the counterpart.
func (h *Handler) sessionMessages(sessionID string) []model.Message {
	if sessionID == "" || h.conversations == nil {
		return nil
	}
	var messages []model.Message
	for _, text := range h.conversations.Conversation(sessionID) {
		messages = append(messages, model.Message{Text: text, SpeakerID: "transcript"})
	}
	return messages
}

func (h *Handler) handleAnalyzeSync(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r, true)
	if !ok {
		return
	}

	insights, err := h.coach.Insights(r.Context(), req)
	if err != nil {
		h.logger.Error("insights failed", "action", req.ActionType, "err", err)
		insights = unavailableFallback
	}

	utils.RespondJSON(w, http.StatusOK, model.InsightsResponse{Insights: insights, ActionType: req.ActionType})
}

func (h *Handler) handleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r, true)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	h.send(w, flusher, model.StreamEvent{Type: "start", ActionType: req.ActionType})

	content, err := h.dispatch(r.Context(), w, flusher, req)
	if err != nil {
		h.logger.Error("insight stream failed", "action", req.ActionType, "err", err)
		h.send(w, flusher, model.StreamEvent{Type: "error", ActionType: req.ActionType, Error: unavailableFallback})
		return
	}

	h.send(w, flusher, model.StreamEvent{
		Type:       "complete",
		ActionType: req.ActionType,
		Content:    content,
		Finished:   true,
	})
}

// dispatch streams chunks when the model supports it, otherwise sends the
// whole answer as a single chunk.
func (h *Handler) dispatch(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, req model.AnalyzeRequest) (string, error) {
	if !h.coach.StreamingEnabled() {
		insights, err := h.coach.Insights(ctx, req)
		if err != nil {
			return "", err
		}
		h.send(w, flusher, model.StreamEvent{Type: "chunk", ActionType: req.ActionType, Content: insights})
		return insights, nil
	}

	stream, err := h.coach.StreamInsights(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", recvErr
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		b.WriteString(chunk.Content)
		h.send(w, flusher, model.StreamEvent{Type: "chunk", ActionType: req.ActionType, Content: chunk.Content})
	}

	return strings.TrimSpace(b.String()), nil
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r, false)
	if !ok {
		return
	}

	metrics, err := h.coach.Metrics(r.Context(), req)
	if err != nil {
		h.logger.Error("metrics failed", "err", err)
		metrics = model.NeutralMetrics()
	}

	utils.RespondJSON(w, http.StatusOK, metrics)
}

// handleActionItems never fails the caller once the request decodes: on a
// model error the previous completion state is returned.
func (h *Handler) handleActionItems(w http.ResponseWriter, r *http.Request) {
	if h.coach == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "ai coaching unavailable")
		return
	}

	var req model.ActionItemsRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Messages) == 0 {
		req.Messages = h.sessionMessages(req.SessionID)
	}

	result, err := h.coach.ActionItems(r.Context(), req)
	if err != nil {
		h.logger.Error("action items failed", "items", len(req.ActionItems), "err", err)
		result = model.UnchangedActionItems(req.AlreadyCompletedIDs)
	}

	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) send(w http.ResponseWriter, flusher http.Flusher, ev model.StreamEvent) {
	if err := utils.SendSSEEvent(w, flusher, ev.Type, ev); err != nil {
		h.logger.Debug("sse write failed", "event", ev.Type, "err", err)
	}
}

var _ Coach = (*ai.Service)(nil)
