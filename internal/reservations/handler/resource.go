package handler

import (
	"encoding/json"
	"net/http"

	"bookly/internal/reservations/service"
	apperrors "bookly/pkg/errors"
	httputil "bookly/pkg/http"
	"bookly/pkg/logger"
	"bookly/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type ResourceHandler struct {
	service service.ReservationService
	log     *logger.Logger
}

func NewResourceHandler(service service.ReservationService, log *logger.Logger) *ResourceHandler {
	return &ResourceHandler{
		service: service,
		log:     log,
	}
}

type availabilityResponse struct {
	ResourceID string          `json:"resource_id"`
	Range      model.TimeRange `json:"range"`
	Available  bool            `json:"available"`
}

func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.CreateResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.log, w, "CreateResource", apperrors.InvalidInput("Invalid request body"))
		return
	}

	resource, err := h.service.CreateResource(r.Context(), &req)
	if err != nil {
		writeError(h.log, w, "CreateResource", err)
		return
	}

	if err := httputil.WriteCreated(w, resource); err != nil {
		h.log.Error("failed to write created response", "handler", "CreateResource", "operation", "WriteCreated", "error", err)
	}
}

func (h *ResourceHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	resource, err := h.service.GetResource(r.Context(), ps.ByName("id"))
	if err != nil {
		writeError(h.log, w, "GetResource", err)
		return
	}

	if err := httputil.WriteSuccess(w, resource); err != nil {
		h.log.Error("failed to write success response", "handler", "GetResource", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ResourceHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		writeError(h.log, w, "ListResources", err)
		return
	}

	resources, total, err := h.service.ListResources(r.Context(), limit, offset)
	if err != nil {
		writeError(h.log, w, "ListResources", err)
		return
	}

	if err := httputil.WritePaginated(w, resources, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListResources", "operation", "WritePaginated", "error", err)
	}
}

func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.service.DeleteResource(r.Context(), ps.ByName("id")); err != nil {
		writeError(h.log, w, "DeleteResource", err)
		return
	}

	_ = httputil.WriteNoContent(w)
}

func (h *ResourceHandler) Reconcile(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if err := h.service.Reconcile(r.Context(), id); err != nil {
		writeError(h.log, w, "Reconcile", err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]any{"resource_id": id, "reconciled": true}); err != nil {
		h.log.Error("failed to write success response", "handler", "Reconcile", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ResourceHandler) Availability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	window, err := requiredRange(r)
	if err != nil {
		writeError(h.log, w, "Availability", err)
		return
	}

	id := ps.ByName("id")
	available, err := h.service.IsAvailable(r.Context(), id, window)
	if err != nil {
		writeError(h.log, w, "Availability", err)
		return
	}

	if err := httputil.WriteSuccess(w, availabilityResponse{ResourceID: id, Range: window, Available: available}); err != nil {
		h.log.Error("failed to write success response", "handler", "Availability", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ResourceHandler) FreeSlots(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	window, err := requiredRange(r)
	if err != nil {
		writeError(h.log, w, "FreeSlots", err)
		return
	}

	slots, err := h.service.FreeSlots(r.Context(), ps.ByName("id"), window)
	if err != nil {
		writeError(h.log, w, "FreeSlots", err)
		return
	}

	if err := httputil.WriteSuccess(w, nonNilRanges(slots)); err != nil {
		h.log.Error("failed to write success response", "handler", "FreeSlots", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ResourceHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/resources", h.Create)
	router.GET("/api/v1/resources", h.GetAll)
	router.GET("/api/v1/resources/:id", h.GetByID)
	router.DELETE("/api/v1/resources/:id", h.Delete)
	router.POST("/api/v1/resources/:id/reconcile", h.Reconcile)
	router.GET("/api/v1/resources/:id/availability", h.Availability)
	router.GET("/api/v1/resources/:id/free-slots", h.FreeSlots)
}
