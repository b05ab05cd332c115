// Package location manages the named building areas lockers are placed in.
package location

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"lockersys/internal/db"
	"lockersys/internal/httpx"
)

var (
	ErrNotFound  = errors.New("location not found")
	ErrNameTaken = errors.New("location name already in use")
)

type Location struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Store interface {
	List(ctx context.Context) ([]Location, error)
	Get(ctx context.Context, id string) (Location, error)
	GetByName(ctx context.Context, name string) (Location, error)
	Create(ctx context.Context, name string, description *string) (Location, error)
	Update(ctx context.Context, id string, name, description *string) (Location, error)
	Delete(ctx context.Context, id string) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const locationColumns = `id, name, description, created_at, updated_at`

func scanLocation(row interface{ Scan(...any) error }) (Location, error) {
	var l Location
	var description sql.NullString

	err := row.Scan(&l.ID, &l.Name, &description, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return Location{}, err
	}

	if description.Valid {
		l.Description = &description.String
	}

	return l, nil
}

func (r *Repository) List(ctx context.Context) ([]Location, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+locationColumns+` FROM locations ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	locations := make([]Location, 0)
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locations: %w", err)
	}

	return locations, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Location, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *Repository) GetByName(ctx context.Context, name string) (Location, error) {
	return r.getOne(ctx, `name = $1`, name)
}

func (r *Repository) getOne(ctx context.Context, where string, arg any) (Location, error) {
	l, err := scanLocation(r.db.QueryRowContext(ctx, `
		SELECT `+locationColumns+` FROM locations WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Location{}, ErrNotFound
		}
		return Location{}, fmt.Errorf("query location: %w", err)
	}

	return l, nil
}

func (r *Repository) Create(ctx context.Context, name string, description *string) (Location, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Location{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	l := Location{
		ID:          id.String(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO locations (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, l.ID, l.Name, l.Description, now)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Location{}, ErrNameTaken
		}
		return Location{}, fmt.Errorf("insert location: %w", err)
	}

	return l, nil
}

func (r *Repository) Update(ctx context.Context, id string, name, description *string) (Location, error) {
	l, err := scanLocation(r.db.QueryRowContext(ctx, `
		UPDATE locations
		SET name = COALESCE($2, name),
			description = COALESCE($3, description),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+locationColumns+`
	`, id, name, description))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Location{}, ErrNotFound
		}
		if db.IsUniqueViolation(err) {
			return Location{}, ErrNameTaken
		}
		return Location{}, fmt.Errorf("update location: %w", err)
	}

	return l, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete location: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

type locationRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	locations, err := h.store.List(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list locations")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"locations": locations})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	l, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "location not found")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load location")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"location": l})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body locationRequest
	if !httpx.DecodeJSON(w, r, &body) {
		return
	}

	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" {
		httpx.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	if _, err := h.store.GetByName(r.Context(), body.Name); err == nil {
		httpx.WriteError(w, http.StatusConflict, "a location with this name already exists")
		return
	} else if !errors.Is(err, ErrNotFound) {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to create location")
		return
	}

	l, err := h.store.Create(r.Context(), body.Name, body.Description)
	if err != nil {
		// Concurrent creates can slip past the pre-check; the unique index
		// still reports the loser.
		if errors.Is(err, ErrNameTaken) {
			httpx.WriteError(w, http.StatusConflict, "a location with this name already exists")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to create location")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"location": l})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body locationRequest
	if !httpx.DecodeJSON(w, r, &body) {
		return
	}

	var name *string
	if trimmed := strings.TrimSpace(body.Name); trimmed != "" {
		existing, err := h.store.GetByName(r.Context(), trimmed)
		if err == nil && existing.ID != id {
			httpx.WriteError(w, http.StatusConflict, "a location with this name already exists")
			return
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			sentry.CaptureException(err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to update location")
			return
		}
		name = &trimmed
	}

	l, err := h.store.Update(r.Context(), id, name, body.Description)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "location not found")
			return
		}
		if errors.Is(err, ErrNameTaken) {
			httpx.WriteError(w, http.StatusConflict, "a location with this name already exists")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to update location")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"location": l})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "location not found")
			return
		}
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to delete location")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
