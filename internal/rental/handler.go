package rental

import (
	"errors"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"lockersys/internal/httpx"
)

const dateLayout = "2006-01-02"

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

type createRentalRequest struct {
	LockerID      string  `json:"locker_id"`
	StudentID     string  `json:"student_id"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	MonthlyPrice  float64 `json:"monthly_price"`
	TotalAmount   float64 `json:"total_amount"`
	Status        string  `json:"status"`
	PaymentStatus string  `json:"payment_status"`
	Notes         *string `json:"notes"`
}

type updateRentalRequest struct {
	StartDate     *string  `json:"start_date"`
	EndDate       *string  `json:"end_date"`
	MonthlyPrice  *float64 `json:"monthly_price"`
	TotalAmount   *float64 `json:"total_amount"`
	Status        *string  `json:"status"`
	PaymentStatus *string  `json:"payment_status"`
	Notes         *string  `json:"notes"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, limit := httpx.PageParams(r)
	status := r.URL.Query().Get("status")
	paymentStatus := r.URL.Query().Get("payment_status")

	if status != "" && !ValidStatus(status) {
		httpx.WriteError(w, http.StatusBadRequest, "status must be active, overdue, completed or cancelled")
		return
	}
	if paymentStatus != "" && !ValidPaymentStatus(paymentStatus) {
		httpx.WriteError(w, http.StatusBadRequest, "payment_status must be pending, paid or overdue")
		return
	}

	rentals, total, err := h.store.List(r.Context(), limit, (page-1)*limit, status, paymentStatus)
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list rentals")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, httpx.ListResponse{
		Data:       rentals,
		Pagination: httpx.NewPagination(page, limit, total),
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rt, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "rental not found")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load rental")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"rental": rt})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body createRentalRequest
	if !httpx.DecodeJSON(w, r, &body) {
		return
	}

	if body.LockerID == "" || body.StudentID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "locker_id and student_id are required")
		return
	}

	startDate, err := time.Parse(dateLayout, body.StartDate)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "start_date must be a YYYY-MM-DD date")
		return
	}
	endDate, err := time.Parse(dateLayout, body.EndDate)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "end_date must be a YYYY-MM-DD date")
		return
	}
	if !endDate.After(startDate) {
		httpx.WriteError(w, http.StatusBadRequest, "end_date must be after start_date")
		return
	}

	if body.Status == "" {
		body.Status = StatusActive
	}
	if body.PaymentStatus == "" {
		body.PaymentStatus = PaymentPending
	}
	if !ValidStatus(body.Status) {
		httpx.WriteError(w, http.StatusBadRequest, "status must be active, overdue, completed or cancelled")
		return
	}
	if !ValidPaymentStatus(body.PaymentStatus) {
		httpx.WriteError(w, http.StatusBadRequest, "payment_status must be pending, paid or overdue")
		return
	}
	if body.MonthlyPrice < 0 || body.TotalAmount < 0 {
		httpx.WriteError(w, http.StatusBadRequest, "amounts must not be negative")
		return
	}

	rt, err := h.store.Create(r.Context(), CreateInput{
		LockerID:      body.LockerID,
		StudentID:     body.StudentID,
		StartDate:     startDate,
		EndDate:       endDate,
		MonthlyPrice:  body.MonthlyPrice,
		TotalAmount:   body.TotalAmount,
		Status:        body.Status,
		PaymentStatus: body.PaymentStatus,
		Notes:         body.Notes,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrStudentNotFound):
			httpx.WriteError(w, http.StatusNotFound, "student not found")
		case errors.Is(err, ErrLockerNotFound):
			httpx.WriteError(w, http.StatusNotFound, "locker not found")
		default:
			sentry.CaptureException(err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to create rental")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"rental": rt})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body updateRentalRequest
	if !httpx.DecodeJSON(w, r, &body) {
		return
	}

	input := UpdateInput{
		MonthlyPrice:  body.MonthlyPrice,
		TotalAmount:   body.TotalAmount,
		Status:        body.Status,
		PaymentStatus: body.PaymentStatus,
		Notes:         body.Notes,
	}

	if body.StartDate != nil {
		startDate, err := time.Parse(dateLayout, *body.StartDate)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "start_date must be a YYYY-MM-DD date")
			return
		}
		input.StartDate = &startDate
	}
	if body.EndDate != nil {
		endDate, err := time.Parse(dateLayout, *body.EndDate)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "end_date must be a YYYY-MM-DD date")
			return
		}
		input.EndDate = &endDate
	}
	if input.StartDate != nil && input.EndDate != nil && !input.EndDate.After(*input.StartDate) {
		httpx.WriteError(w, http.StatusBadRequest, "end_date must be after start_date")
		return
	}
	if body.Status != nil && !ValidStatus(*body.Status) {
		httpx.WriteError(w, http.StatusBadRequest, "status must be active, overdue, completed or cancelled")
		return
	}
	if body.PaymentStatus != nil && !ValidPaymentStatus(*body.PaymentStatus) {
		httpx.WriteError(w, http.StatusBadRequest, "payment_status must be pending, paid or overdue")
		return
	}

	rt, err := h.store.Update(r.Context(), id, input)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "rental not found")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to update rental")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"rental": rt})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "rental not found")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to delete rental")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load rental stats")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) ByStudent(w http.ResponseWriter, r *http.Request) {
	rentals, err := h.store.ByStudent(r.Context(), r.PathValue("id"))
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list rentals")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"rentals": rentals})
}

func (h *Handler) ByLocker(w http.ResponseWriter, r *http.Request) {
	rentals, err := h.store.ByLocker(r.Context(), r.PathValue("id"))
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list rentals")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"rentals": rentals})
}
