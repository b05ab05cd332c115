package student

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/getsentry/sentry-go"

	"lockersys/internal/httpx"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

type createStudentRequest struct {
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Phone         *string `json:"phone"`
	StudentNumber string  `json:"student_number"`
	Course        string  `json:"course"`
	Semester      int     `json:"semester"`
	Status        string  `json:"status"`
}

type updateStudentRequest struct {
	Name          *string `json:"name"`
	Email         *string `json:"email"`
	Phone         *string `json:"phone"`
	StudentNumber *string `json:"student_number"`
	Course        *string `json:"course"`
	Semester      *int    `json:"semester"`
	Status        *string `json:"status"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, limit := httpx.PageParams(r)
	search := strings.TrimSpace(r.URL.Query().Get("search"))
	status := r.URL.Query().Get("status")

	if status != "" && !ValidStatus(status) {
		httpx.WriteError(w, http.StatusBadRequest, "status must be active or inactive")
		return
	}

	students, total, err := h.store.List(r.Context(), limit, (page-1)*limit, search, status)
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list students")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, httpx.ListResponse{
		Data:       students,
		Pagination: httpx.NewPagination(page, limit, total),
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "student not found")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load student")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"student": s})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body createStudentRequest
	if !httpx.DecodeJSON(w, r, &body) {
		return
	}

	body.Name = strings.TrimSpace(body.Name)
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	body.StudentNumber = strings.TrimSpace(body.StudentNumber)
	body.Course = strings.TrimSpace(body.Course)
	if body.Status == "" {
		body.Status = StatusActive
	}

	if body.Name == "" || body.StudentNumber == "" || body.Course == "" {
		httpx.WriteError(w, http.StatusBadRequest, "name, student_number and course are required")
		return
	}
	if !emailRegex.MatchString(body.Email) {
		httpx.WriteError(w, http.StatusBadRequest, "email format is invalid")
		return
	}
	if !ValidSemester(body.Semester) {
		httpx.WriteError(w, http.StatusBadRequest, "semester must be between 1 and 3")
		return
	}
	if !ValidStatus(body.Status) {
		httpx.WriteError(w, http.StatusBadRequest, "status must be active or inactive")
		return
	}

	if conflict, ok := h.checkUnique(w, r, "", body.Email, body.StudentNumber); !ok || conflict {
		return
	}

	s, err := h.store.Create(r.Context(), CreateInput{
		Name:          body.Name,
		Email:         body.Email,
		Phone:         body.Phone,
		StudentNumber: body.StudentNumber,
		Course:        body.Course,
		Semester:      body.Semester,
		Status:        body.Status,
	})
	if err != nil {
		// Concurrent creates can slip past checkUnique; the unique indexes
		// still report the loser.
		if errors.Is(err, ErrEmailTaken) {
			httpx.WriteError(w, http.StatusConflict, "a student with this email already exists")
			return
		}
		if errors.Is(err, ErrStudentNumberTaken) {
			httpx.WriteError(w, http.StatusConflict, "a student with this student number already exists")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to create student")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"student": s})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body updateStudentRequest
	if !httpx.DecodeJSON(w, r, &body) {
		return
	}

	var email, studentNumber string
	if body.Email != nil {
		email = strings.ToLower(strings.TrimSpace(*body.Email))
		if !emailRegex.MatchString(email) {
			httpx.WriteError(w, http.StatusBadRequest, "email format is invalid")
			return
		}
		body.Email = &email
	}
	if body.StudentNumber != nil {
		studentNumber = strings.TrimSpace(*body.StudentNumber)
		if studentNumber == "" {
			httpx.WriteError(w, http.StatusBadRequest, "student_number must not be empty")
			return
		}
		body.StudentNumber = &studentNumber
	}
	if body.Semester != nil && !ValidSemester(*body.Semester) {
		httpx.WriteError(w, http.StatusBadRequest, "semester must be between 1 and 3")
		return
	}
	if body.Status != nil && !ValidStatus(*body.Status) {
		httpx.WriteError(w, http.StatusBadRequest, "status must be active or inactive")
		return
	}

	if conflict, ok := h.checkUnique(w, r, id, email, studentNumber); !ok || conflict {
		return
	}

	s, err := h.store.Update(r.Context(), id, UpdateInput{
		Name:          body.Name,
		Email:         body.Email,
		Phone:         body.Phone,
		StudentNumber: body.StudentNumber,
		Course:        body.Course,
		Semester:      body.Semester,
		Status:        body.Status,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "student not found")
			return
		}
		if errors.Is(err, ErrEmailTaken) {
			httpx.WriteError(w, http.StatusConflict, "a student with this email already exists")
			return
		}
		if errors.Is(err, ErrStudentNumberTaken) {
			httpx.WriteError(w, http.StatusConflict, "a student with this student number already exists")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to update student")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"student": s})
}

// checkUnique writes the 409 or 500 response itself when email or
// student_number (non-empty) already belongs to a different student.
func (h *Handler) checkUnique(w http.ResponseWriter, r *http.Request, selfID, email, studentNumber string) (conflict bool, ok bool) {
	if email != "" {
		existing, err := h.store.GetByEmail(r.Context(), email)
		if err == nil && existing.ID != selfID {
			httpx.WriteError(w, http.StatusConflict, "a student with this email already exists")
			return true, true
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			sentry.CaptureException(err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to save student")
			return false, false
		}
	}

	if studentNumber != "" {
		existing, err := h.store.GetByStudentNumber(r.Context(), studentNumber)
		if err == nil && existing.ID != selfID {
			httpx.WriteError(w, http.StatusConflict, "a student with this student number already exists")
			return true, true
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			sentry.CaptureException(err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to save student")
			return false, false
		}
	}

	return false, true
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "student not found")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to delete student")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load student stats")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, stats)
}
