package student

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lockersys/internal/db"
)

var (
	ErrNotFound           = errors.New("student not found")
	ErrEmailTaken         = errors.New("student email already in use")
	ErrStudentNumberTaken = errors.New("student number already in use")
)

// uniqueViolation maps a unique-index failure to the sentinel of the column
// it guards. The students table has two unique columns, so the constraint
// name decides which one lost the race.
func uniqueViolation(err error) error {
	constraint := db.ViolatedConstraint(err)
	switch {
	case strings.Contains(constraint, "student_number"):
		return ErrStudentNumberTaken
	case strings.Contains(constraint, "email"):
		return ErrEmailTaken
	default:
		return nil
	}
}

type Store interface {
	List(ctx context.Context, limit, offset int, search, status string) ([]Student, int, error)
	Get(ctx context.Context, id string) (Student, error)
	GetByEmail(ctx context.Context, email string) (Student, error)
	GetByStudentNumber(ctx context.Context, number string) (Student, error)
	Create(ctx context.Context, input CreateInput) (Student, error)
	Update(ctx context.Context, id string, input UpdateInput) (Student, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (Stats, error)
}

type CreateInput struct {
	Name          string
	Email         string
	Phone         *string
	StudentNumber string
	Course        string
	Semester      int
	Status        string
}

type UpdateInput struct {
	Name          *string
	Email         *string
	Phone         *string
	StudentNumber *string
	Course        *string
	Semester      *int
	Status        *string
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const studentColumns = `id, name, email, phone, student_number, course, semester, status, created_at, updated_at`

func scanStudent(row interface{ Scan(...any) error }) (Student, error) {
	var s Student
	var phone sql.NullString

	err := row.Scan(&s.ID, &s.Name, &s.Email, &phone, &s.StudentNumber, &s.Course, &s.Semester, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Student{}, err
	}

	if phone.Valid {
		s.Phone = &phone.String
	}

	return s, nil
}

func (r *Repository) List(ctx context.Context, limit, offset int, search, status string) ([]Student, int, error) {
	const filter = `
		($1 = '' OR name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%'
			OR student_number ILIKE '%' || $1 || '%' OR course ILIKE '%' || $1 || '%')
		AND ($2 = '' OR status = $2)`

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students WHERE `+filter, search, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+studentColumns+`
		FROM students
		WHERE `+filter+`
		ORDER BY name ASC
		LIMIT $3 OFFSET $4
	`, search, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	students := make([]Student, 0)
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, s)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate students: %w", err)
	}

	return students, total, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Student, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (Student, error) {
	return r.getOne(ctx, `email = $1`, email)
}

func (r *Repository) GetByStudentNumber(ctx context.Context, number string) (Student, error) {
	return r.getOne(ctx, `student_number = $1`, number)
}

func (r *Repository) getOne(ctx context.Context, where string, arg any) (Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx, `
		SELECT `+studentColumns+` FROM students WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, ErrNotFound
		}
		return Student{}, fmt.Errorf("query student: %w", err)
	}

	return s, nil
}

func (r *Repository) Create(ctx context.Context, input CreateInput) (Student, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Student{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	s := Student{
		ID:            id.String(),
		Name:          input.Name,
		Email:         input.Email,
		Phone:         input.Phone,
		StudentNumber: input.StudentNumber,
		Course:        input.Course,
		Semester:      input.Semester,
		Status:        input.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO students (id, name, email, phone, student_number, course, semester, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, s.ID, s.Name, s.Email, s.Phone, s.StudentNumber, s.Course, s.Semester, s.Status, now)
	if err != nil {
		if taken := uniqueViolation(err); taken != nil {
			return Student{}, taken
		}
		return Student{}, fmt.Errorf("insert student: %w", err)
	}

	return s, nil
}

func (r *Repository) Update(ctx context.Context, id string, input UpdateInput) (Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx, `
		UPDATE students
		SET name = COALESCE($2, name),
			email = COALESCE($3, email),
			phone = COALESCE($4, phone),
			student_number = COALESCE($5, student_number),
			course = COALESCE($6, course),
			semester = COALESCE($7, semester),
			status = COALESCE($8, status),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+studentColumns+`
	`, id, input.Name, input.Email, input.Phone, input.StudentNumber, input.Course, input.Semester, input.Status))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, ErrNotFound
		}
		if taken := uniqueViolation(err); taken != nil {
			return Student{}, taken
		}
		return Student{}, fmt.Errorf("update student: %w", err)
	}

	return s, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
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
			COUNT(*) FILTER (WHERE status = 'inactive')
		FROM students
	`).Scan(&s.Total, &s.Active, &s.Inactive)
	if err != nil {
		return Stats{}, fmt.Errorf("query student stats: %w", err)
	}

	return s, nil
}
