package locker

import (
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"lockersys/internal/httpx"
)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

type createLockerRequest struct {
	Number       string  `json:"number"`
	Location     string  `json:"location"`
	Size         string  `json:"size"`
	Status       string  `json:"status"`
	MonthlyPrice float64 `json:"monthly_price"`
	Notes        *string `json:"notes"`
}

type updateLockerRequest struct {
	Number       *string  `json:"number"`
	Location     *string  `json:"location"`
	Size         *string  `json:"size"`
	Status       *string  `json:"status"`
	MonthlyPrice *float64 `json:"monthly_price"`
	Notes        *string  `json:"notes"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, limit := httpx.PageParams(r)
	search := strings.TrimSpace(r.URL.Query().Get("search"))
	status := r.URL.Query().Get("status")

	if status != "" && !ValidStatus(status) {
		httpx.WriteError(w, http.StatusBadRequest, "status must be available, rented, maintenance or reserved")
		return
	}

	lockers, total, err := h.store.List(r.Context(), limit, (page-1)*limit, search, status)
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list lockers")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, httpx.ListResponse{
		Data:       lockers,
		Pagination: httpx.NewPagination(page, limit, total),
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	l, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "locker not found")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load locker")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"locker": l})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body createLockerRequest
	if !httpx.DecodeJSON(w, r, &body) {
		return
	}

	body.Number = strings.TrimSpace(body.Number)
	body.Location = strings.TrimSpace(body.Location)
	if body.Status == "" {
		body.Status = StatusAvailable
	}

	if body.Number == "" || body.Location == "" {
		httpx.WriteError(w, http.StatusBadRequest, "number and location are required")
		return
	}
	if !ValidSize(body.Size) {
		httpx.WriteError(w, http.StatusBadRequest, "size must be small, medium or large")
		return
	}
	if !ValidStatus(body.Status) {
		httpx.WriteError(w, http.StatusBadRequest, "status must be available, rented, maintenance or reserved")
		return
	}
	if body.MonthlyPrice < 0 {
		httpx.WriteError(w, http.StatusBadRequest, "monthly_price must not be negative")
		return
	}

	if _, err := h.store.GetByNumber(r.Context(), body.Number); err == nil {
		httpx.WriteError(w, http.StatusConflict, "a locker with this number already exists")
		return
	} else if !errors.Is(err, ErrNotFound) {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to create locker")
		return
	}

	l, err := h.store.Create(r.Context(), CreateInput{
		Number:       body.Number,
		Location:     body.Location,
		Size:         body.Size,
		Status:       body.Status,
		MonthlyPrice: body.MonthlyPrice,
		Notes:        body.Notes,
	})
	if err != nil {
		// Concurrent creates can slip past the pre-check; the unique index
		// still reports the loser.
		if errors.Is(err, ErrNumberTaken) {
			httpx.WriteError(w, http.StatusConflict, "a locker with this number already exists")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to create locker")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"locker": l})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body updateLockerRequest
	if !httpx.DecodeJSON(w, r, &body) {
		return
	}

	if body.Size != nil && !ValidSize(*body.Size) {
		httpx.WriteError(w, http.StatusBadRequest, "size must be small, medium or large")
		return
	}
	if body.Status != nil && !ValidStatus(*body.Status) {
		httpx.WriteError(w, http.StatusBadRequest, "status must be available, rented, maintenance or reserved")
		return
	}
	if body.MonthlyPrice != nil && *body.MonthlyPrice < 0 {
		httpx.WriteError(w, http.StatusBadRequest, "monthly_price must not be negative")
		return
	}

	if body.Number != nil {
		number := strings.TrimSpace(*body.Number)
		if number == "" {
			httpx.WriteError(w, http.StatusBadRequest, "number must not be empty")
			return
		}
		body.Number = &number

		existing, err := h.store.GetByNumber(r.Context(), number)
		if err == nil && existing.ID != id {
			httpx.WriteError(w, http.StatusConflict, "a locker with this number already exists")
			return
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			sentry.CaptureException(err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to update locker")
			return
		}
	}

	l, err := h.store.Update(r.Context(), id, UpdateInput{
		Number:       body.Number,
		Location:     body.Location,
		Size:         body.Size,
		Status:       body.Status,
		MonthlyPrice: body.MonthlyPrice,
		Notes:        body.Notes,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "locker not found")
			return
		}
		if errors.Is(err, ErrNumberTaken) {
			httpx.WriteError(w, http.StatusConflict, "a locker with this number already exists")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to update locker")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"locker": l})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "locker not found")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to delete locker")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load locker stats")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) Available(w http.ResponseWriter, r *http.Request) {
	lockers, err := h.store.Available(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list available lockers")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"lockers": lockers})
}
