package handlers

import (
	"errors"
	"net/http"

	"github.com/dvloznov/receipt-tracker/internal/api/middleware"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/notify"
	"github.com/dvloznov/receipt-tracker/internal/store"
	"github.com/rs/zerolog"
)

// PushHandler renders push messages delivered to the background context.
type PushHandler struct {
	notifier *notify.Service
	repo     store.Repository
	resolve  ResolverFactory
	log      zerolog.Logger
}

// NewPushHandler creates a new push handler.
func NewPushHandler(n *notify.Service, repo store.Repository, resolve ResolverFactory, log zerolog.Logger) *PushHandler {
	return &PushHandler{notifier: n, repo: repo, resolve: resolve, log: log}
}

// Receive handles POST /api/push
// A bearer token is optional; with one, the user's notification preference applies.
func (h *PushHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r, h.log)

	var payload domain.PushPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var profile *domain.UserProfile
	if middleware.AccessToken(r.Context()) != "" {
		id, ok := identify(w, r, h.resolve)
		if !ok {
			return
		}
		p, err := h.repo.GetProfile(r.Context(), id.ID)
		switch {
		case err == nil:
			profile = p
		case errors.Is(err, store.ErrNotFound):
		default:
			log.Warn().Err(err).Str("user_id", id.ID).Msg("Failed to load profile for push")
		}
	}

	shown := h.notifier.RenderPush(r.Context(), payload, profile)
	middleware.WriteJSON(w, http.StatusAccepted, map[string]bool{"shown": shown})
}
