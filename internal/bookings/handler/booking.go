package handler

import (
	"errors"
	"net/http"
	"time"

	"spotbook/internal/bookings/service"
	"spotbook/internal/bookings/validator"
	apperrors "spotbook/pkg/errors"
	httputil "spotbook/pkg/http"
	"spotbook/pkg/logger"
	"spotbook/pkg/middleware"
	"spotbook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service   service.BookingService
	validator *validator.BookingValidator
	log       *logger.Logger
}

type BookingsResponse struct {
	Bookings any `json:"bookings"`
}

func NewBookingHandler(service service.BookingService, validator *validator.BookingValidator, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service:   service,
		validator: validator,
		log:       log,
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/spots/:spotId/bookings", h.Create)
	router.GET("/api/v1/spots/:spotId/bookings", h.ListForSpot)
	router.GET("/api/v1/bookings/current", h.ListMine)
	router.PUT("/api/v1/bookings/:bookingId", h.Edit)
	router.DELETE("/api/v1/bookings/:bookingId", h.Cancel)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, ok := h.requester(w, r)
	if !ok {
		return
	}

	var req validator.CreateBookingRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	req.SpotID = ps.ByName("spotId")

	if err := h.validator.ValidateCreate(&req); err != nil {
		httputil.WriteError(w, h.validationError("Create", err))
		return
	}

	start, end := mustParseDates(req.StartDate, req.EndDate)
	booking, err := h.service.Create(r.Context(), req.SpotID, userID, start, end)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteCreated(w, booking)
}

func (h *BookingHandler) Edit(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, ok := h.requester(w, r)
	if !ok {
		return
	}

	var req validator.EditBookingRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	req.BookingID = ps.ByName("bookingId")

	if err := h.validator.ValidateEdit(&req); err != nil {
		httputil.WriteError(w, h.validationError("Edit", err))
		return
	}

	start, end := mustParseDates(req.StartDate, req.EndDate)
	booking, err := h.service.Edit(r.Context(), req.BookingID, userID, start, end)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, booking)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, ok := h.requester(w, r)
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), ps.ByName("bookingId"), userID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *BookingHandler) ListForSpot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, ok := h.requester(w, r)
	if !ok {
		return
	}

	full, views, err := h.service.ListForSpot(r.Context(), ps.ByName("spotId"), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if full != nil {
		httputil.WriteSuccess(w, BookingsResponse{Bookings: full})
		return
	}
	httputil.WriteSuccess(w, BookingsResponse{Bookings: views})
}

func (h *BookingHandler) ListMine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, ok := h.requester(w, r)
	if !ok {
		return
	}

	bookings, err := h.service.ListForUser(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, BookingsResponse{Bookings: bookings})
}

func (h *BookingHandler) requester(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		httputil.WriteError(w, apperrors.Unauthorized("Authentication required"))
		return "", false
	}
	return userID, true
}

func (h *BookingHandler) validationError(handler string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		h.log.Debug("Booking request rejected", "handler", handler, "error", err)
		return apperrors.Validation("Invalid booking input", verrs.Details())
	}
	return apperrors.Internal("Failed to validate booking input", err)
}

// mustParseDates parses dates already checked by the dateonly rule.
func mustParseDates(start, end string) (time.Time, time.Time) {
	s, _ := time.Parse(model.DateLayout, start)
	e, _ := time.Parse(model.DateLayout, end)
	return s, e
}
