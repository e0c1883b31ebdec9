// Package handler exposes the sweep engine over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"licensewatch/internal/license/models"
	"licensewatch/internal/license/roster"
	dErrors "licensewatch/pkg/domain-errors"
	"licensewatch/pkg/platform/httputil"
	"licensewatch/pkg/platform/middleware/admin"
	request "licensewatch/pkg/platform/middleware/request"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	requestTimeout      = 10 * time.Minute
)

// Service is the sweep engine as seen by the HTTP surface.
type Service interface {
	Sweep(ctx context.Context) (*models.RunOutcome, error)
	LastRun(ctx context.Context) (*models.RunOutcome, error)
	History(ctx context.Context, limit int) ([]*models.RunRecord, error)
	OpenAlerts(ctx context.Context) ([]models.Alert, error)
	Resend(ctx context.Context, licenseID string) (*models.ResendResult, error)
	RosterHealth(ctx context.Context) roster.Health
}

// Handler serves sweep, alert and roster-health endpoints.
type Handler struct {
	svc        Service
	logger     *slog.Logger
	adminToken string
}

func New(svc Service, adminToken string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{svc: svc, logger: logger, adminToken: adminToken}
}

// Register mounts the routes. Mutating routes require the admin token.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(requestTimeout))
		r.Get("/sweeps/latest", h.handleLastRun)
		r.Get("/sweeps", h.handleHistory)
		r.Get("/alerts", h.handleOpenAlerts)
		r.Get("/health/roster", h.handleRosterHealth)

		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(h.adminToken, h.logger))
			r.Post("/sweeps", h.handleSweep)
			r.Post("/alerts/{licenseID}/resend", h.handleResend)
		})
	})
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out, err := h.svc.Sweep(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "sweep failed",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleLastRun(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.LastRun(r.Context())
	if err != nil {
		h.writeError(r, w, "failed to read last run", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	runs, err := h.svc.History(r.Context(), limit)
	if err != nil {
		h.writeError(r, w, "failed to read run history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) handleOpenAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.svc.OpenAlerts(r.Context())
	if err != nil {
		h.writeError(r, w, "failed to list alerts", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	licenseID := chi.URLParam(r, "licenseID")
	if licenseID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "license id is required"))
		return
	}
	res, err := h.svc.Resend(r.Context(), licenseID)
	if err != nil {
		h.writeError(r, w, "resend failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleRosterHealth(w http.ResponseWriter, r *http.Request) {
	health := h.svc.RosterHealth(r.Context())
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, health)
}

func (h *Handler) writeError(r *http.Request, w http.ResponseWriter, msg string, err error) {
	ctx := r.Context()
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		h.logger.InfoContext(ctx, msg, "request_id", request.GetRequestID(ctx), "error", err)
	} else {
		h.logger.ErrorContext(ctx, msg, "request_id", request.GetRequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}
