package rental

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("rental not found")
	ErrStudentNotFound = errors.New("rental student not found")
	ErrLockerNotFound  = errors.New("rental locker not found")
)

type Store interface {
	List(ctx context.Context, limit, offset int, status, paymentStatus string) ([]Rental, int, error)
	Get(ctx context.Context, id string) (Rental, error)
	Create(ctx context.Context, input CreateInput) (Rental, error)
	Update(ctx context.Context, id string, input UpdateInput) (Rental, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (Stats, error)
	ByStudent(ctx context.Context, studentID string) ([]Rental, error)
	ByLocker(ctx context.Context, lockerID string) ([]Rental, error)
}

type CreateInput struct {
	LockerID      string
	StudentID     string
	StartDate     time.Time
	EndDate       time.Time
	MonthlyPrice  float64
	TotalAmount   float64
	Status        string
	PaymentStatus string
	Notes         *string
}

type UpdateInput struct {
	StartDate     *time.Time
	EndDate       *time.Time
	MonthlyPrice  *float64
	TotalAmount   *float64
	Status        *string
	PaymentStatus *string
	Notes         *string
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const rentalColumns = `
	r.id, r.start_date, r.end_date, r.monthly_price, r.total_amount,
	r.status, r.payment_status, r.notes, r.created_at, r.updated_at,
	s.id, s.name, s.email, s.student_number,
	l.id, l.number, l.location`

const rentalJoins = `
	FROM rentals r
	JOIN students s ON s.id = r.student_id
	JOIN lockers l ON l.id = r.locker_id`

func scanRental(row interface{ Scan(...any) error }) (Rental, error) {
	var rt Rental
	var notes sql.NullString

	err := row.Scan(
		&rt.ID, &rt.StartDate, &rt.EndDate, &rt.MonthlyPrice, &rt.TotalAmount,
		&rt.Status, &rt.PaymentStatus, &notes, &rt.CreatedAt, &rt.UpdatedAt,
		&rt.Student.ID, &rt.Student.Name, &rt.Student.Email, &rt.Student.StudentNumber,
		&rt.Locker.ID, &rt.Locker.Number, &rt.Locker.Location,
	)
	if err != nil {
		return Rental{}, err
	}

	if notes.Valid {
		rt.Notes = &notes.String
	}

	return rt, nil
}

func (r *Repository) List(ctx context.Context, limit, offset int, status, paymentStatus string) ([]Rental, int, error) {
	const filter = `($1 = '' OR r.status = $1) AND ($2 = '' OR r.payment_status = $2)`

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rentals r WHERE `+filter, status, paymentStatus).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rentals: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+rentalColumns+rentalJoins+`
		WHERE `+filter+`
		ORDER BY r.start_date DESC, r.id DESC
		LIMIT $3 OFFSET $4
	`, status, paymentStatus, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query rentals: %w", err)
	}
	defer rows.Close()

	rentals, err := collectRentals(rows)
	if err != nil {
		return nil, 0, err
	}

	return rentals, total, nil
}

func collectRentals(rows *sql.Rows) ([]Rental, error) {
	rentals := make([]Rental, 0)
	for rows.Next() {
		rt, err := scanRental(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rental: %w", err)
		}
		rentals = append(rentals, rt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rentals: %w", err)
	}

	return rentals, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Rental, error) {
	rt, err := scanRental(r.db.QueryRowContext(ctx, `
		SELECT `+rentalColumns+rentalJoins+` WHERE r.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Rental{}, ErrNotFound
		}
		return Rental{}, fmt.Errorf("query rental: %w", err)
	}

	return rt, nil
}

func (r *Repository) Create(ctx context.Context, input CreateInput) (Rental, error) {
	if err := r.checkReferences(ctx, input.StudentID, input.LockerID); err != nil {
		return Rental{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Rental{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO rentals (id, locker_id, student_id, start_date, end_date,
			monthly_price, total_amount, status, payment_status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, id.String(), input.LockerID, input.StudentID, input.StartDate, input.EndDate,
		input.MonthlyPrice, input.TotalAmount, input.Status, input.PaymentStatus, input.Notes, now)
	if err != nil {
		return Rental{}, fmt.Errorf("insert rental: %w", err)
	}

	return r.Get(ctx, id.String())
}

func (r *Repository) checkReferences(ctx context.Context, studentID, lockerID string) error {
	var studentExists, lockerExists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM students WHERE id = $1),
			EXISTS (SELECT 1 FROM lockers WHERE id = $2)
	`, studentID, lockerID).Scan(&studentExists, &lockerExists)
	if err != nil {
		return fmt.Errorf("check rental references: %w", err)
	}

	if !studentExists {
		return ErrStudentNotFound
	}
	if !lockerExists {
		return ErrLockerNotFound
	}

	return nil
}

func (r *Repository) Update(ctx context.Context, id string, input UpdateInput) (Rental, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE rentals
		SET start_date = COALESCE($2, start_date),
			end_date = COALESCE($3, end_date),
			monthly_price = COALESCE($4, monthly_price),
			total_amount = COALESCE($5, total_amount),
			status = COALESCE($6, status),
			payment_status = COALESCE($7, payment_status),
			notes = COALESCE($8, notes),
			updated_at = NOW()
		WHERE id = $1
	`, id, input.StartDate, input.EndDate, input.MonthlyPrice, input.TotalAmount,
		input.Status, input.PaymentStatus, input.Notes)
	if err != nil {
		return Rental{}, fmt.Errorf("update rental: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return Rental{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return Rental{}, ErrNotFound
	}

	return r.Get(ctx, id)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rentals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rental: %w", err)
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
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'overdue'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COALESCE(SUM(monthly_price) FILTER (WHERE status = 'active' AND payment_status = 'paid'), 0)
		FROM rentals
	`).Scan(&s.Total, &s.Active, &s.Overdue, &s.Completed, &s.Cancelled, &s.MonthlyRevenue)
	if err != nil {
		return Stats{}, fmt.Errorf("query rental stats: %w", err)
	}

	return s, nil
}

func (r *Repository) ByStudent(ctx context.Context, studentID string) ([]Rental, error) {
	return r.listBy(ctx, `r.student_id = $1`, studentID)
}

func (r *Repository) ByLocker(ctx context.Context, lockerID string) ([]Rental, error) {
	return r.listBy(ctx, `r.locker_id = $1`, lockerID)
}

func (r *Repository) listBy(ctx context.Context, where string, arg any) ([]Rental, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+rentalColumns+rentalJoins+`
		WHERE `+where+`
		ORDER BY r.start_date DESC, r.id DESC
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("query rentals: %w", err)
	}
	defer rows.Close()

	return collectRentals(rows)
}
