// Package handlers implements the HTTP endpoints the extension calls.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dvloznov/receipt-tracker/internal/api/middleware"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/identity"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
)

// maxBodyBytes caps request bodies; a rendered receipt page is well below this.
const maxBodyBytes = 5 << 20

// ResolverFactory builds an identity resolver for the caller's access token.
type ResolverFactory func(accessToken string) identity.Resolver

// requestLogger returns the request-scoped logger installed by
// middleware.Logger, or fallback when the handler runs without it.
func requestLogger(r *http.Request, fallback zerolog.Logger) zerolog.Logger {
	if l, ok := r.Context().Value(logger.LoggerKey).(zerolog.Logger); ok {
		return l
	}
	return fallback
}

// identify resolves the caller. On failure it writes the response and returns false.
func identify(w http.ResponseWriter, r *http.Request, resolve ResolverFactory) (domain.Identity, bool) {
	token := middleware.AccessToken(r.Context())
	if token == "" {
		middleware.WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "Bearer access token is required")
		return domain.Identity{}, false
	}

	id, err := resolve(token).Resolve(r.Context())
	if err == nil {
		return id, true
	}

	log := logger.FromContext(r.Context())
	var apiErr *googleapi.Error
	switch {
	case errors.Is(err, identity.ErrIdentityTimeout):
		log.Warn().Err(err).Msg("Identity lookup timed out")
		middleware.WriteErrorCode(w, http.StatusGatewayTimeout, "identity_timeout", "Identity lookup timed out")
	case errors.Is(err, identity.ErrNoIdentity), errors.Is(err, identity.ErrMissingAccessToken):
		middleware.WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "No identity for access token")
	case errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden):
		middleware.WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "Access token rejected")
	default:
		log.Error().Err(err).Msg("Identity lookup failed")
		middleware.WriteErrorCode(w, http.StatusBadGateway, "identity_unavailable", "Identity lookup failed")
	}
	return domain.Identity{}, false
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

// markupRequest is the JSON form of a page submission.
type markupRequest struct {
	HTML         string              `json:"html"`
	Registration domain.Registration `json:"registration"`
}

// readMarkup accepts either a JSON markupRequest or a raw text/html body.
func readMarkup(w http.ResponseWriter, r *http.Request) (*markupRequest, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req markupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return nil, err
		}
		return &req, nil
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	return &markupRequest{
		HTML:         string(body),
		Registration: domain.Registration{Token: r.Header.Get("X-Push-Token")},
	}, nil
}
