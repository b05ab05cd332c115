package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"

	"lockersys/internal/auth"
	"lockersys/internal/observability"
)

// CleanupHandler serves the cron-triggered credential cleanup endpoint.
// It stays hidden (404) until CRON_SECRET is configured.
type CleanupHandler struct {
	repo       *auth.Repository
	logger     *observability.Logger
	cronSecret string
	batchSize  int
}

func NewCleanupHandler(repo *auth.Repository, logger *observability.Logger, cronSecret string, batchSize int) *CleanupHandler {
	return &CleanupHandler{
		repo:       repo,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	result, err := h.repo.CleanupExpiredCredentialState(r.Context(), h.batchSize)
	if err != nil {
		h.logger.Error("credential_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("credential_cleanup_completed", map[string]any{
		"cleared_reset_tokens": result.ClearedResetTokens,
		"cleared_lockouts":     result.ClearedLockouts,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
