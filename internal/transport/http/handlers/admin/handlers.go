package adminhandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"hrcore/internal/platform/jobs"
	"hrcore/internal/transport/http/api"
	"hrcore/internal/transport/http/middleware"
)

type Handler struct {
	Jobs *jobs.Service
}

func NewHandler(jobsSvc *jobs.Service) *Handler {
	return &Handler{Jobs: jobsSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/jobs", func(r chi.Router) {
		r.Use(middleware.RequireAdmin)
		r.Post("/coin-grant/run", h.handleRunGrant)
		r.Post("/coin-expiry/run", h.handleRunExpiry)
	})
}

func (h *Handler) handleRunGrant(w http.ResponseWriter, r *http.Request) {
	result, err := h.Jobs.RunNow(r.Context(), jobs.JobCoinGrant, h.Jobs.RunGrant)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "job_failed", "coin grant job failed", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRunExpiry(w http.ResponseWriter, r *http.Request) {
	result, err := h.Jobs.RunNow(r.Context(), jobs.JobCoinExpiry, h.Jobs.RunExpiry)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "job_failed", "coin expiry job failed", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}
