package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, *Service, *fakeStore) {
	t.Helper()

	service, store, _ := newTestService(t)
	return NewHandler(service, false), service, store
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == refreshCookieName {
			return cookie
		}
	}
	t.Fatal("refresh cookie not set")
	return nil
}

func TestHandlerRegister(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.Register(rec, postJSON("/auth/register", `{"name":"Ana Silva","email":"ana@example.com","password":"correct horse"}`))

	require.Equal(t, http.StatusCreated, rec.Code)

	var body sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ana@example.com", body.User.Email)
	assert.Equal(t, RoleUser, body.User.Role)
	assert.NotEmpty(t, body.AccessToken)

	cookie := refreshCookie(t, rec)
	assert.Equal(t, "/auth", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.NotEmpty(t, cookie.Value)
}

func TestHandlerRegisterValidation(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	cases := []struct {
		name string
		body string
	}{
		{"short name", `{"name":"A","email":"ana@example.com","password":"correct horse"}`},
		{"bad email", `{"name":"Ana Silva","email":"not-an-email","password":"correct horse"}`},
		{"bad role", `{"name":"Ana Silva","email":"ana@example.com","password":"correct horse","role":"root"}`},
		{"weak password", `{"name":"Ana Silva","email":"ana@example.com","password":"short"}`},
		{"unknown field", `{"name":"Ana Silva","email":"ana@example.com","password":"correct horse","extra":1}`},
		{"not json", `name=Ana`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.Register(rec, postJSON("/auth/register", tc.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandlerRegisterDuplicateEmail(t *testing.T) {
	handler, service, _ := newTestHandler(t)

	register(t, service, "ana@example.com", "correct horse")

	rec := httptest.NewRecorder()
	handler.Register(rec, postJSON("/auth/register", `{"name":"Ana Silva","email":"ana@example.com","password":"correct horse"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerLogin(t *testing.T) {
	handler, service, _ := newTestHandler(t)
	register(t, service, "ana@example.com", "correct horse")

	rec := httptest.NewRecorder()
	handler.Login(rec, postJSON("/auth/login", `{"email":"ana@example.com","password":"correct horse"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	cookie := refreshCookie(t, rec)
	assert.True(t, cookie.MaxAge > 0)

	var body sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.AccessToken)
	// The refresh token travels only in the cookie.
	assert.NotContains(t, rec.Body.String(), "refresh_token")
}

func TestHandlerLoginFailures(t *testing.T) {
	handler, service, _ := newTestHandler(t)
	register(t, service, "ana@example.com", "correct horse")

	rec := httptest.NewRecorder()
	handler.Login(rec, postJSON("/auth/login", `{"email":"ana@example.com","password":"wrong password"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	handler.Login(rec, postJSON("/auth/login", `{"email":"","password":""}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerLoginLockedSetsRetryAfter(t *testing.T) {
	handler, service, _ := newTestHandler(t)
	service.WithSecurityConfig(2, 15*time.Minute, 30*time.Minute)
	register(t, service, "ana@example.com", "correct horse")

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.Login(rec, postJSON("/auth/login", `{"email":"ana@example.com","password":"wrong password"}`))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.Login(rec, postJSON("/auth/login", `{"email":"ana@example.com","password":"correct horse"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestHandlerRefresh(t *testing.T) {
	handler, service, _ := newTestHandler(t)
	register(t, service, "ana@example.com", "correct horse")

	loginRec := httptest.NewRecorder()
	handler.Login(loginRec, postJSON("/auth/login", `{"email":"ana@example.com","password":"correct horse"}`))
	require.Equal(t, http.StatusOK, loginRec.Code)
	cookie := refreshCookie(t, loginRec)

	req := postJSON("/auth/refresh", "")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.Refresh(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "access_token")
	refreshCookie(t, rec)

	// Missing cookie.
	rec = httptest.NewRecorder()
	handler.Refresh(rec, postJSON("/auth/refresh", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Garbage cookie.
	req = postJSON("/auth/refresh", "")
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "garbage"})
	rec = httptest.NewRecorder()
	handler.Refresh(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerLogoutClearsCookie(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.Logout(rec, postJSON("/auth/logout", ""))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	cookie := refreshCookie(t, rec)
	assert.Empty(t, cookie.Value)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestHandlerForgotPasswordIsGeneric(t *testing.T) {
	handler, service, _ := newTestHandler(t)
	register(t, service, "ana@example.com", "correct horse")

	known := httptest.NewRecorder()
	handler.ForgotPassword(known, postJSON("/auth/forgot-password", `{"email":"ana@example.com"}`))

	unknown := httptest.NewRecorder()
	handler.ForgotPassword(unknown, postJSON("/auth/forgot-password", `{"email":"ghost@example.com"}`))

	// Same status and same body either way.
	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())

	rec := httptest.NewRecorder()
	handler.ForgotPassword(rec, postJSON("/auth/forgot-password", `{"email":"not-an-email"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerResetPassword(t *testing.T) {
	handler, service, store := newTestHandler(t)
	created := register(t, service, "ana@example.com", "correct horse")

	require.NoError(t, service.ForgotPassword(context.Background(), "ana@example.com"))
	user, err := store.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	token := *user.ResetToken

	rec := httptest.NewRecorder()
	handler.ResetPassword(rec, postJSON("/auth/reset-password", `{"token":"`+token+`","password":"brand new password"}`))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ResetPassword(rec, postJSON("/auth/reset-password", `{"token":"`+token+`","password":"brand new password"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.ResetPassword(rec, postJSON("/auth/reset-password", `{"token":"","password":""}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerValidateResetToken(t *testing.T) {
	handler, service, store := newTestHandler(t)
	created := register(t, service, "ana@example.com", "correct horse")
	require.NoError(t, service.ForgotPassword(context.Background(), "ana@example.com"))

	user, err := store.FindByID(context.Background(), created.ID)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ValidateResetToken(rec, httptest.NewRequest(http.MethodGet, "/auth/validate-reset-token?token="+*user.ResetToken, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ValidateResetToken(rec, httptest.NewRequest(http.MethodGet, "/auth/validate-reset-token?token=bogus", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":false}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ValidateResetToken(rec, httptest.NewRequest(http.MethodGet, "/auth/validate-reset-token", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequireAuthGuardsProfile(t *testing.T) {
	handler, service, _ := newTestHandler(t)
	register(t, service, "ana@example.com", "correct horse")

	_, tokens, err := service.Login(context.Background(), "ana@example.com", "correct horse")
	require.NoError(t, err)

	guarded := RequireAuth(service.Issuer(), http.HandlerFunc(handler.Profile))

	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ana@example.com")

	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A refresh token must not pass the access guard.
	req = httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.RefreshToken)
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdmin(t *testing.T) {
	_, service, store := newTestHandler(t)

	admin := register(t, service, "admin@example.com", "correct horse")
	role := RoleAdmin
	_, err := store.Update(context.Background(), admin.ID, UserUpdate{Role: &role})
	require.NoError(t, err)
	regular := register(t, service, "user@example.com", "correct horse")

	var reached bool
	guarded := RequireAdmin(store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	withUser := func(id string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		return req.WithContext(context.WithValue(req.Context(), userIDKey, id))
	}

	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, withUser(regular.ID))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, reached)

	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, withUser(admin.ID))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
}
