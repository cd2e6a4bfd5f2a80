package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"bookly/internal/reservations/events"
	"bookly/internal/reservations/service"
	"bookly/internal/reservations/validator"
	apperrors "bookly/pkg/errors"
	httputil "bookly/pkg/http"
	"bookly/pkg/logger"
	"bookly/pkg/middleware"
	"bookly/pkg/model"

	"github.com/julienschmidt/httprouter"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"
)

type BookingHandler struct {
	service   service.ReservationService
	validator *validator.ReservationValidator
	log       *logger.Logger
}

func NewBookingHandler(service service.ReservationService, validator *validator.ReservationValidator, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service:   service,
		validator: validator,
		log:       log,
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Create", apperrors.InvalidInput("Invalid request body"))
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get(IdempotencyKeyHeader)
	}

	outcome, err := h.service.CreateBooking(withCorrelation(r), &req)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}
	if outcome.Replayed {
		w.Header().Set(ReplayedHeader, "true")
	}

	switch statusForOutcome(outcome) {
	case http.StatusCreated:
		if err := httputil.WriteCreated(w, outcome); err != nil {
			h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
		}
	case http.StatusAccepted:
		if err := httputil.WriteAccepted(w, outcome); err != nil {
			h.log.Error("failed to write accepted response", "handler", "Create", "operation", "WriteAccepted", "error", err)
		}
	default:
		h.writeError(w, "Create", outcomeError(outcome))
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.GetBooking(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	query := r.URL.Query()
	filter := model.BookingFilter{
		ResourceID: query.Get("resource_id"),
		Status:     model.BookingStatus(query.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		h.writeError(w, "GetAll", apperrors.InvalidInput("invalid status parameter: "+query.Get("status")))
		return
	}
	window, ok, err := optionalRange(r)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}
	if ok {
		filter.Window = &window
	}

	bookings, total, err := h.service.ListBookings(r.Context(), filter, limit, offset)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	if err := httputil.WritePaginated(w, bookings, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req model.CancelBookingRequest
	if !h.decode(w, r, "Cancel", &req) {
		return
	}

	booking, err := h.service.CancelBooking(withCorrelation(r), ps.ByName("id"), req.Version)
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req model.RescheduleBookingRequest
	if !h.decode(w, r, "Reschedule", &req) {
		return
	}
	newRange, err := model.NewTimeRange(req.Start, req.End)
	if err != nil {
		h.writeError(w, "Reschedule", err)
		return
	}

	result, err := h.service.RescheduleBooking(withCorrelation(r), ps.ByName("id"), newRange, req.Version)
	if err != nil {
		h.writeError(w, "Reschedule", err)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "Reschedule", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Approve(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req model.ApproveBookingRequest
	if !h.decode(w, r, "Approve", &req) {
		return
	}

	booking, err := h.service.ApproveBooking(withCorrelation(r), ps.ByName("id"), req.Version)
	if err != nil {
		h.writeError(w, "Approve", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Approve", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Decline(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req model.DeclineBookingRequest
	if !h.decode(w, r, "Decline", &req) {
		return
	}

	booking, err := h.service.DeclineBooking(withCorrelation(r), ps.ByName("id"), req.Version)
	if err != nil {
		h.writeError(w, "Decline", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Decline", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings", h.Create)
	router.GET("/api/v1/bookings", h.GetAll)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.POST("/api/v1/bookings/id/:id/cancel", h.Cancel)
	router.POST("/api/v1/bookings/id/:id/reschedule", h.Reschedule)
	router.POST("/api/v1/bookings/id/:id/approve", h.Approve)
	router.POST("/api/v1/bookings/id/:id/decline", h.Decline)
}

// decode reads and validates a JSON body, writing the error response itself.
func (h *BookingHandler) decode(w http.ResponseWriter, r *http.Request, handler string, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, handler, apperrors.InvalidInput("Invalid request body"))
		return false
	}
	if err := h.validator.Validate(dst); err != nil {
		h.writeError(w, handler, err)
		return false
	}
	return true
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	writeError(h.log, w, handler, err)
}

func writeError(log *logger.Logger, w http.ResponseWriter, handler string, err error) {
	appErr := toAppError(err)
	if appErr.StatusCode() >= http.StatusInternalServerError {
		log.Error("request failed", "handler", handler, "code", appErr.Code, "error", err)
	}
	if writeErr := httputil.WriteError(w, appErr); writeErr != nil {
		log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

// withCorrelation tags lifecycle events with the request id.
func withCorrelation(r *http.Request) context.Context {
	return events.WithCorrelationID(r.Context(), middleware.RequestID(r.Context()))
}

// optionalRange reads start and end query parameters; both or neither.
func optionalRange(r *http.Request) (model.TimeRange, bool, error) {
	start, hasStart, err := httputil.ExtractTime(r, "start")
	if err != nil {
		return model.TimeRange{}, false, err
	}
	end, hasEnd, err := httputil.ExtractTime(r, "end")
	if err != nil {
		return model.TimeRange{}, false, err
	}
	if !hasStart && !hasEnd {
		return model.TimeRange{}, false, nil
	}
	if !hasStart || !hasEnd {
		return model.TimeRange{}, false, apperrors.InvalidInput("both 'start' and 'end' query parameters are required")
	}
	window, err := model.NewTimeRange(start, end)
	if err != nil {
		return model.TimeRange{}, false, err
	}
	return window, true, nil
}

func requiredRange(r *http.Request) (model.TimeRange, error) {
	window, ok, err := optionalRange(r)
	if err != nil {
		return model.TimeRange{}, err
	}
	if !ok {
		return model.TimeRange{}, apperrors.InvalidInput("both 'start' and 'end' query parameters are required")
	}
	return window, nil
}
