package handler

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/parley-ai/parley/backend/internal/handler/coach"
	"github.com/parley-ai/parley/backend/internal/handler/transcription"
	middlewarePkg "github.com/parley-ai/parley/backend/internal/middleware"
	"github.com/parley-ai/parley/backend/pkg/utils"
)

// Services bundles what the router needs. Coach may be nil when no chat
// model is configured.
type Services struct {
	Transcription transcription.SessionService
	Conversations coach.Conversations
	Coach         coach.Coach
	Logger        *log.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	transcriptionHandler := transcription.New(svc.Transcription, svc.Logger)
	coachHandler := coach.New(svc.Coach, svc.Conversations, svc.Logger)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status": "ok",
				"coach":  svc.Coach != nil,
			})
		})

		api.Route("/transcription", func(tr chi.Router) {
			transcriptionHandler.RegisterRoutes(tr)
			coachHandler.RegisterRoutes(tr)
		})
	})

	return r
}
