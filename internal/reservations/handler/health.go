package handler

import (
	"context"
	"net/http"
	"time"

	"bookly/internal/reservations/service"
	apperrors "bookly/pkg/errors"
	httputil "bookly/pkg/http"
	"bookly/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

const readinessTimeout = 2 * time.Second

type HealthHandler struct {
	service service.ReservationService
	log     *logger.Logger
}

func NewHealthHandler(service service.ReservationService, log *logger.Logger) *HealthHandler {
	return &HealthHandler{service: service, log: log}
}

func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}); err != nil {
		h.log.Error("failed to write health response", "error", err)
	}
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := h.service.Ping(ctx); err != nil {
		h.log.Warn("Readiness check failed", "error", err)
		if writeErr := httputil.WriteError(w, apperrors.Unavailable("Booking storage")); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Ready", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"}); err != nil {
		h.log.Error("failed to write readiness response", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}
