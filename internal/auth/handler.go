package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const (
	maxJSONBodyBytes  = 1 << 20
	refreshCookieName = "refresh_token"
)

type Handler struct {
	service       *Service
	secureCookies bool
}

func NewHandler(service *Service, secureCookies bool) *Handler {
	return &Handler{service: service, secureCookies: secureCookies}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type updateProfileRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type sessionResponse struct {
	User        SafeUser `json:"user"`
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int64    `json:"expires_in"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.Name = strings.TrimSpace(body.Name)
	if len(body.Name) < 2 || len(body.Name) > 100 {
		writeError(w, http.StatusBadRequest, "name must be between 2 and 100 characters")
		return
	}
	if !emailRegex.MatchString(strings.ToLower(strings.TrimSpace(body.Email))) {
		writeError(w, http.StatusBadRequest, "email format is invalid")
		return
	}
	if body.Role != "" && !ValidRole(body.Role) {
		writeError(w, http.StatusBadRequest, "role must be admin or user")
		return
	}

	user, tokens, err := h.service.Register(r.Context(), RegisterInput{
		Name:     body.Name,
		Email:    body.Email,
		Password: body.Password,
		Role:     body.Role,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailInUse):
			writeError(w, http.StatusConflict, "email already in use")
		case errors.Is(err, ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		default:
			h.internalError(w, r, err, "failed to register")
		}
		return
	}

	h.setRefreshCookie(w, tokens.RefreshToken)
	writeJSON(w, http.StatusCreated, sessionResponse{
		User:        user,
		AccessToken: tokens.AccessToken,
		TokenType:   tokens.TokenType,
		ExpiresIn:   tokens.ExpiresIn,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if strings.TrimSpace(body.Email) == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, tokens, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		var locked ErrAccountLocked
		if errors.As(err, &locked) {
			retryAfter := int(time.Until(locked.Until).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusUnauthorized, "account temporarily locked due to too many failed attempts")
			return
		}

		h.internalError(w, r, err, "failed to login")
		return
	}

	h.setRefreshCookie(w, tokens.RefreshToken)
	writeJSON(w, http.StatusOK, sessionResponse{
		User:        user,
		AccessToken: tokens.AccessToken,
		TokenType:   tokens.TokenType,
		ExpiresIn:   tokens.ExpiresIn,
	})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		writeError(w, http.StatusUnauthorized, "refresh token not found")
		return
	}

	_, tokens, err := h.service.Refresh(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrAccountNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid or expired refresh token")
			return
		}
		h.internalError(w, r, err, "failed to refresh token")
		return
	}

	h.setRefreshCookie(w, tokens.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": tokens.AccessToken,
		"token_type":   tokens.TokenType,
		"expires_in":   tokens.ExpiresIn,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body forgotPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if !emailRegex.MatchString(strings.ToLower(strings.TrimSpace(body.Email))) {
		writeError(w, http.StatusBadRequest, "email format is invalid")
		return
	}

	if err := h.service.ForgotPassword(r.Context(), body.Email); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
			return
		}
		h.internalError(w, r, err, "failed to process password reset request")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "if the email exists, a reset link has been sent",
	})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if strings.TrimSpace(body.Token) == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "token and new password are required")
		return
	}

	user, err := h.service.ResetPassword(r.Context(), body.Token, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidResetToken):
			writeError(w, http.StatusBadRequest, "invalid or expired reset token")
		case errors.Is(err, ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		default:
			h.internalError(w, r, err, "failed to reset password")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	valid, err := h.service.ValidateResetToken(r.Context(), token)
	if err != nil {
		h.internalError(w, r, err, "failed to validate reset token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h.internalError(w, r, err, "failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body updateProfileRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if body.Email != "" && !emailRegex.MatchString(strings.ToLower(strings.TrimSpace(body.Email))) {
		writeError(w, http.StatusBadRequest, "email format is invalid")
		return
	}
	if body.NewPassword != "" && body.CurrentPassword == "" {
		writeError(w, http.StatusBadRequest, "current password is required to change the password")
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), userID, ProfileUpdateInput{
		Name:            body.Name,
		Email:           body.Email,
		CurrentPassword: body.CurrentPassword,
		NewPassword:     body.NewPassword,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			writeError(w, http.StatusBadRequest, "current password is incorrect")
		case errors.Is(err, ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		case errors.Is(err, ErrEmailInUse):
			writeError(w, http.StatusConflict, "email already in use")
		case errors.Is(err, ErrAccountNotFound):
			writeError(w, http.StatusUnauthorized, "unauthorized")
		default:
			h.internalError(w, r, err, "failed to update profile")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/auth",
		MaxAge:   int(h.service.Issuer().RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		return
	}

	sentry.CaptureException(err)
	writeError(w, http.StatusInternalServerError, message)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
