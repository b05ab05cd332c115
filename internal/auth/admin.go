package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"lockersys/internal/httpx"
)

// AdminHandler serves the admin-only user management endpoints. It is
// mounted behind RequireAuth + RequireAdmin.
type AdminHandler struct {
	store Store
}

func NewAdminHandler(store Store) *AdminHandler {
	return &AdminHandler{store: store}
}

type adminUpdateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit := httpx.PageParams(r)

	users, total, err := h.store.List(r.Context(), limit, (page-1)*limit)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	sanitized := make([]SafeUser, 0, len(users))
	for _, user := range users {
		sanitized = append(sanitized, user.Sanitized())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":       sanitized,
		"pagination": httpx.NewPagination(page, limit, total),
	})
}

func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": user.Sanitized()})
}

func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body adminUpdateUserRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	update := UserUpdate{}
	if name := strings.TrimSpace(body.Name); name != "" {
		update.Name = &name
	}
	if email := normalizeEmail(body.Email); email != "" {
		if !emailRegex.MatchString(email) {
			writeError(w, http.StatusBadRequest, "email format is invalid")
			return
		}
		update.Email = &email
	}
	if body.Role != "" {
		if !ValidRole(body.Role) {
			writeError(w, http.StatusBadRequest, "role must be admin or user")
			return
		}
		// Admins cannot change their own role.
		if callerID, _ := UserIDFromContext(r.Context()); callerID == id {
			writeError(w, http.StatusBadRequest, "you cannot change your own role")
			return
		}
		update.Role = &body.Role
	}

	user, err := h.store.Update(r.Context(), id, update)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		if errors.Is(err, ErrEmailInUse) {
			writeError(w, http.StatusConflict, "email already in use")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": user.Sanitized()})
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if callerID, _ := UserIDFromContext(r.Context()); callerID == id {
		writeError(w, http.StatusBadRequest, "you cannot delete your own account")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
