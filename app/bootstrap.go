package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"lockersys/internal/auth"
	"lockersys/internal/dashboard"
	"lockersys/internal/db"
	"lockersys/internal/location"
	"lockersys/internal/locker"
	"lockersys/internal/maintenance"
	"lockersys/internal/mailer"
	"lockersys/internal/observability"
	"lockersys/internal/rental"
	"lockersys/internal/student"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	accessSecret, err := mustEnv("JWT_ACCESS_SECRET")
	if err != nil {
		return nil, err
	}
	refreshSecret, err := mustEnv("JWT_REFRESH_SECRET")
	if err != nil {
		return nil, err
	}
	emailEndpoint, err := mustEnv("EMAIL_ENDPOINT")
	if err != nil {
		return nil, err
	}
	frontendURL, err := mustEnv("FRONTEND_URL")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	mailClient, err := mailer.New(emailEndpoint, os.Getenv("EMAIL_API_KEY"))
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init mailer: %w", err)
	}

	issuer := auth.NewTokenIssuer(accessSecret, refreshSecret)
	issuer.WithTTLs(
		envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15),
		envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 168),
	)

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, mailClient, issuer, logger, frontendURL)
	authService.WithSecurityConfig(
		envIntOrDefault("LOGIN_MAX_ATTEMPTS", 5),
		envMinutesOrDefault("LOGIN_LOCK_MINUTES", 15),
		envMinutesOrDefault("RESET_TOKEN_TTL_MINUTES", 30),
	)
	authService.WithStoreTimeout(envSecondsOrDefault("AUTH_STORE_TIMEOUT_SECONDS", 5))

	if err := authService.BootstrapAdmin(context.Background(), os.Getenv("ADMIN_EMAIL"), os.Getenv("ADMIN_PASSWORD")); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	secureCookies := envOrDefault("APP_ENV", "development") == "production"
	authHandler := auth.NewHandler(authService, secureCookies)
	adminHandler := auth.NewAdminHandler(authRepo)
	cleanupHandler := maintenance.NewCleanupHandler(
		authRepo,
		logger,
		os.Getenv("CRON_SECRET"),
		envIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),
	)

	lockerRepo := locker.NewRepository(database)
	studentRepo := student.NewRepository(database)
	rentalRepo := rental.NewRepository(database)
	locationRepo := location.NewRepository(database)

	lockerHandler := locker.NewHandler(lockerRepo)
	studentHandler := student.NewHandler(studentRepo)
	rentalHandler := rental.NewHandler(rentalRepo)
	locationHandler := location.NewHandler(locationRepo)
	dashboardHandler := dashboard.NewHandler(lockerRepo, rentalRepo, studentRepo)

	loginLimiter := auth.NewRateLimiter(
		envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	)
	forgotLimiter := auth.NewRateLimiter(
		envIntOrDefault("FORGOT_PASSWORD_RATE_LIMIT_MAX", 5),
		envSecondsOrDefault("FORGOT_PASSWORD_RATE_LIMIT_WINDOW_SECONDS", 300),
	)

	authed := func(h http.HandlerFunc) http.Handler {
		return auth.RequireAuth(issuer, h)
	}
	adminOnly := func(h http.HandlerFunc) http.Handler {
		return auth.RequireAuth(issuer, auth.RequireAdmin(authRepo, h))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.Handle("POST /auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /auth/logout", authHandler.Logout)
	mux.Handle("POST /auth/forgot-password", forgotLimiter.Middleware(http.HandlerFunc(authHandler.ForgotPassword)))
	mux.HandleFunc("POST /auth/reset-password", authHandler.ResetPassword)
	mux.HandleFunc("GET /auth/validate-reset-token", authHandler.ValidateResetToken)
	mux.Handle("GET /auth/profile", authed(authHandler.Profile))
	mux.Handle("PUT /auth/profile", authed(authHandler.UpdateProfile))

	mux.Handle("GET /users", adminOnly(adminHandler.ListUsers))
	mux.Handle("GET /users/{id}", adminOnly(adminHandler.GetUser))
	mux.Handle("PUT /users/{id}", adminOnly(adminHandler.UpdateUser))
	mux.Handle("DELETE /users/{id}", adminOnly(adminHandler.DeleteUser))

	mux.Handle("GET /lockers", authed(lockerHandler.List))
	mux.Handle("GET /lockers/stats", authed(lockerHandler.Stats))
	mux.Handle("GET /lockers/available", authed(lockerHandler.Available))
	mux.Handle("GET /lockers/{id}", authed(lockerHandler.Get))
	mux.Handle("POST /lockers", adminOnly(lockerHandler.Create))
	mux.Handle("PUT /lockers/{id}", adminOnly(lockerHandler.Update))
	mux.Handle("DELETE /lockers/{id}", adminOnly(lockerHandler.Delete))

	mux.Handle("GET /students", authed(studentHandler.List))
	mux.Handle("GET /students/stats", authed(studentHandler.Stats))
	mux.Handle("GET /students/{id}", authed(studentHandler.Get))
	mux.Handle("POST /students", adminOnly(studentHandler.Create))
	mux.Handle("PUT /students/{id}", adminOnly(studentHandler.Update))
	mux.Handle("DELETE /students/{id}", adminOnly(studentHandler.Delete))

	mux.Handle("GET /rentals", authed(rentalHandler.List))
	mux.Handle("GET /rentals/stats", authed(rentalHandler.Stats))
	mux.Handle("GET /rentals/student/{id}", authed(rentalHandler.ByStudent))
	mux.Handle("GET /rentals/locker/{id}", authed(rentalHandler.ByLocker))
	mux.Handle("GET /rentals/{id}", authed(rentalHandler.Get))
	mux.Handle("POST /rentals", adminOnly(rentalHandler.Create))
	mux.Handle("PUT /rentals/{id}", adminOnly(rentalHandler.Update))
	mux.Handle("DELETE /rentals/{id}", adminOnly(rentalHandler.Delete))

	mux.Handle("GET /locations", authed(locationHandler.List))
	mux.Handle("GET /locations/{id}", authed(locationHandler.Get))
	mux.Handle("POST /locations", adminOnly(locationHandler.Create))
	mux.Handle("PUT /locations/{id}", adminOnly(locationHandler.Update))
	mux.Handle("DELETE /locations/{id}", adminOnly(locationHandler.Delete))

	mux.Handle("GET /dashboard/stats", authed(dashboardHandler.Stats))

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
