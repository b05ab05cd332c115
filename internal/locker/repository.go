package locker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lockersys/internal/db"
)

var (
	ErrNotFound    = errors.New("locker not found")
	ErrNumberTaken = errors.New("locker number already in use")
)

type Store interface {
	List(ctx context.Context, limit, offset int, search, status string) ([]Locker, int, error)
	Get(ctx context.Context, id string) (Locker, error)
	GetByNumber(ctx context.Context, number string) (Locker, error)
	Create(ctx context.Context, input CreateInput) (Locker, error)
	Update(ctx context.Context, id string, input UpdateInput) (Locker, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (Stats, error)
	Available(ctx context.Context) ([]Locker, error)
}

type CreateInput struct {
	Number       string
	Location     string
	Size         string
	Status       string
	MonthlyPrice float64
	Notes        *string
}

type UpdateInput struct {
	Number       *string
	Location     *string
	Size         *string
	Status       *string
	MonthlyPrice *float64
	Notes        *string
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const lockerColumns = `id, number, location, size, status, monthly_price, notes, created_at, updated_at`

func scanLocker(row interface{ Scan(...any) error }) (Locker, error) {
	var l Locker
	var notes sql.NullString

	err := row.Scan(&l.ID, &l.Number, &l.Location, &l.Size, &l.Status, &l.MonthlyPrice, &notes, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return Locker{}, err
	}

	if notes.Valid {
		l.Notes = &notes.String
	}

	return l, nil
}

func (r *Repository) List(ctx context.Context, limit, offset int, search, status string) ([]Locker, int, error) {
	const filter = `
		($1 = '' OR number ILIKE '%' || $1 || '%' OR location ILIKE '%' || $1 || '%')
		AND ($2 = '' OR status = $2)`

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lockers WHERE `+filter, search, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count lockers: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+lockerColumns+`
		FROM lockers
		WHERE `+filter+`
		ORDER BY number ASC
		LIMIT $3 OFFSET $4
	`, search, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query lockers: %w", err)
	}
	defer rows.Close()

	lockers := make([]Locker, 0)
	for rows.Next() {
		l, err := scanLocker(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan locker: %w", err)
		}
		lockers = append(lockers, l)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate lockers: %w", err)
	}

	return lockers, total, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Locker, error) {
	l, err := scanLocker(r.db.QueryRowContext(ctx, `
		SELECT `+lockerColumns+` FROM lockers WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Locker{}, ErrNotFound
		}
		return Locker{}, fmt.Errorf("query locker: %w", err)
	}

	return l, nil
}

func (r *Repository) GetByNumber(ctx context.Context, number string) (Locker, error) {
	l, err := scanLocker(r.db.QueryRowContext(ctx, `
		SELECT `+lockerColumns+` FROM lockers WHERE number = $1
	`, number))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Locker{}, ErrNotFound
		}
		return Locker{}, fmt.Errorf("query locker by number: %w", err)
	}

	return l, nil
}

func (r *Repository) Create(ctx context.Context, input CreateInput) (Locker, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Locker{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	l := Locker{
		ID:           id.String(),
		Number:       input.Number,
		Location:     input.Location,
		Size:         input.Size,
		Status:       input.Status,
		MonthlyPrice: input.MonthlyPrice,
		Notes:        input.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO lockers (id, number, location, size, status, monthly_price, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, l.ID, l.Number, l.Location, l.Size, l.Status, l.MonthlyPrice, l.Notes, now)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Locker{}, ErrNumberTaken
		}
		return Locker{}, fmt.Errorf("insert locker: %w", err)
	}

	return l, nil
}

func (r *Repository) Update(ctx context.Context, id string, input UpdateInput) (Locker, error) {
	l, err := scanLocker(r.db.QueryRowContext(ctx, `
		UPDATE lockers
		SET number = COALESCE($2, number),
			location = COALESCE($3, location),
			size = COALESCE($4, size),
			status = COALESCE($5, status),
			monthly_price = COALESCE($6, monthly_price),
			notes = COALESCE($7, notes),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+lockerColumns+`
	`, id, input.Number, input.Location, input.Size, input.Status, input.MonthlyPrice, input.Notes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Locker{}, ErrNotFound
		}
		if db.IsUniqueViolation(err) {
			return Locker{}, ErrNumberTaken
		}
		return Locker{}, fmt.Errorf("update locker: %w", err)
	}

	return l, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lockers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete locker: %w", err)
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

func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'available'),
			COUNT(*) FILTER (WHERE status = 'rented'),
			COUNT(*) FILTER (WHERE status = 'maintenance'),
			COUNT(*) FILTER (WHERE status = 'reserved')
		FROM lockers
	`).Scan(&s.Total, &s.Available, &s.Rented, &s.Maintenance, &s.Reserved)
	if err != nil {
		return Stats{}, fmt.Errorf("query locker stats: %w", err)
	}

	return s, nil
}

func (r *Repository) Available(ctx context.Context) ([]Locker, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+lockerColumns+`
		FROM lockers
		WHERE status = 'available'
		ORDER BY number ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query available lockers: %w", err)
	}
	defer rows.Close()

	lockers := make([]Locker, 0)
	for rows.Next() {
		l, err := scanLocker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan locker: %w", err)
		}
		lockers = append(lockers, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lockers: %w", err)
	}

	return lockers, nil
}
