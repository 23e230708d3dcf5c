// Package api assembles the HTTP surface of the service.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/api/handlers"
	"github.com/dvloznov/receipt-tracker/internal/api/middleware"
	"github.com/rs/zerolog"
)

// Handlers groups the endpoint handlers served by NewRouter.
type Handlers struct {
	Receipts *handlers.ReceiptsHandler
	Users    *handlers.UsersHandler
	Push     *handlers.PushHandler
	Jobs     *handlers.JobsHandler
}

func only(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}

// NewRouter registers every endpoint and wraps the mux in the middleware chain.
func NewRouter(h Handlers, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/extract", only(http.MethodPost, h.Receipts.Extract))
	mux.HandleFunc("/api/sync", only(http.MethodPost, h.Receipts.Sync))

	// /api/members/{memberId}/receipts[/{receiptId}]
	mux.HandleFunc("/api/members/", only(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/members/"), "/")
		switch {
		case len(parts) == 2 && parts[0] != "" && parts[1] == "receipts":
			h.Receipts.ListReceipts(w, r, parts[0])
		case len(parts) == 3 && parts[0] != "" && parts[1] == "receipts" && parts[2] != "":
			h.Receipts.GetReceipt(w, r, parts[0], parts[2])
		default:
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		}
	}))

	mux.HandleFunc("/api/users/register", only(http.MethodPost, h.Users.Register))
	mux.HandleFunc("/api/auth/revoke", only(http.MethodPost, h.Users.Revoke))
	mux.HandleFunc("/api/push", only(http.MethodPost, h.Push.Receive))

	mux.HandleFunc("/api/jobs", only(http.MethodGet, h.Jobs.ListJobs))
	mux.HandleFunc("/api/jobs/", only(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		h.Jobs.GetJob(w, r, jobID)
	}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(
					middleware.Auth(mux),
				),
			),
		),
	)
}
