package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/api/middleware"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/store"
	"github.com/dvloznov/receipt-tracker/internal/tokens"
	"github.com/rs/zerolog"
)

// RevokeFunc revokes a Google access token.
type RevokeFunc func(ctx context.Context, accessToken string) error

// UsersHandler handles install-time registration and sign-out.
type UsersHandler struct {
	repo    store.Repository
	resolve ResolverFactory
	issuer  tokens.Issuer
	revoke  RevokeFunc
	now     func() time.Time
	log     zerolog.Logger
}

// NewUsersHandler creates a new users handler. issuer may be nil, in which
// case registration tokens are stored without validation.
func NewUsersHandler(repo store.Repository, resolve ResolverFactory, issuer tokens.Issuer, revoke RevokeFunc, log zerolog.Logger) *UsersHandler {
	return &UsersHandler{
		repo:    repo,
		resolve: resolve,
		issuer:  issuer,
		revoke:  revoke,
		now:     time.Now,
		log:     log,
	}
}

type registerRequest struct {
	Registration domain.Registration `json:"registration"`
	Notify       *bool               `json:"notify,omitempty"`
}

// Register handles POST /api/users/register
func (h *UsersHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := requestLogger(r, h.log)

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, ok := identify(w, r, h.resolve)
	if !ok {
		return
	}

	existing, err := h.repo.GetProfile(ctx, id.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error().Err(err).Str("user_id", id.ID).Msg("Failed to load profile")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load profile")
		return
	}

	profile, tokenErr := RegisterProfile(ctx, id, existing, req.Registration, req.Notify, h.issuer, h.now())
	if tokenErr != nil {
		log.Warn().Err(tokenErr).Str("user_id", id.ID).Msg("Registration token not accepted, registering without it")
	}

	if err := h.repo.UpsertProfile(ctx, profile); err != nil {
		log.Error().Err(err).Str("user_id", id.ID).Msg("Failed to save profile")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save profile")
		return
	}

	log.Info().Str("user_id", id.ID).Bool("has_token", profile.HasToken()).Msg("User registered")

	resp := map[string]interface{}{"profile": profile}
	if tokenErr != nil {
		resp["token_error"] = tokenErr.Error()
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// RegisterProfile builds the Users/{id} document written on install. An
// existing member binding is kept; notifications default to on. A token the
// issuer refuses is dropped and its error returned alongside the profile.
func RegisterProfile(ctx context.Context, id domain.Identity, existing *domain.UserProfile, reg domain.Registration, notify *bool, issuer tokens.Issuer, now time.Time) (*domain.UserProfile, error) {
	on := true
	if notify != nil {
		on = *notify
	}
	profile := &domain.UserProfile{
		ID:        id.ID,
		Email:     id.Email,
		Notify:    &on,
		Timestamp: now.UnixMilli(),
	}
	if existing != nil {
		profile.MemberID = existing.Clone().MemberID
		profile.SetToken(existing.CurrentToken())
	}

	if reg.Token == "" {
		return profile, nil
	}
	value := reg.Token
	if issuer != nil {
		v, err := issuer.RequestToken(ctx, reg)
		if err != nil {
			return profile, err
		}
		value = v
	}
	profile.SetToken(domain.Token{Value: value, IssuedAt: now.UnixMilli()})
	return profile, nil
}

// Revoke handles POST /api/auth/revoke
func (h *UsersHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r, h.log)
	token := middleware.AccessToken(r.Context())
	if token == "" {
		middleware.WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "Bearer access token is required")
		return
	}

	if err := h.revoke(r.Context(), token); err != nil {
		log.Error().Err(err).Msg("Failed to revoke access token")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to revoke access token")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
