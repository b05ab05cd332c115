package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lockersys/internal/db"
)

// Store is the persistence surface the auth flows need. *Repository is the
// Postgres implementation; tests substitute fakes.
type Store interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, user NewUser) (User, error)
	List(ctx context.Context, limit, offset int) ([]User, int, error)
	Update(ctx context.Context, id string, input UserUpdate) (User, error)
	Delete(ctx context.Context, id string) error

	RecordFailedLogin(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error)
	ClearLoginFailures(ctx context.Context, id string) error

	SetResetToken(ctx context.Context, id, token string, expiry time.Time) error
	FindByResetToken(ctx context.Context, token string) (User, error)
	ConsumeResetToken(ctx context.Context, token, passwordHash string) (User, error)
}

type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
	Role         string
}

type UserUpdate struct {
	Name         *string
	Email        *string
	Role         *string
	PasswordHash *string
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, name, email, password_hash, role, failed_login_attempts,
	locked_until, reset_password_token, reset_token_expiry, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	var lockedUntil, resetExpiry sql.NullTime
	var resetToken sql.NullString

	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role,
		&user.FailedLoginAttempts, &lockedUntil, &resetToken, &resetExpiry,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}

	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		user.LockedUntil = &value
	}
	if resetToken.Valid {
		user.ResetToken = &resetToken.String
	}
	if resetExpiry.Valid {
		value := resetExpiry.Time.UTC()
		user.ResetTokenExpiry = &value
	}

	return user, nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
	`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user by email: %w", err)
	}

	return user, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user by id: %w", err)
	}

	return user, nil
}

func (r *Repository) Create(ctx context.Context, input NewUser) (User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	user := User{
		ID:           id.String(),
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
		Role:         input.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, failed_login_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $6)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Role, now)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, ErrEmailInUse
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

func (r *Repository) List(ctx context.Context, limit, offset int) ([]User, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}

	return users, total, nil
}

func (r *Repository) Update(ctx context.Context, id string, input UserUpdate) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users
		SET name = COALESCE($2, name),
			email = COALESCE($3, email),
			role = COALESCE($4, role),
			password_hash = COALESCE($5, password_hash),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns+`
	`, id, input.Name, input.Email, input.Role, input.PasswordHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		if db.IsUniqueViolation(err) {
			return User{}, ErrEmailInUse
		}
		return User{}, fmt.Errorf("update user: %w", err)
	}

	return user, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
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

// RecordFailedLogin bumps the failure counter in a single statement so
// concurrent failed attempts cannot lose increments. The lock timestamp is
// set in the same statement once the new counter reaches the threshold.
func (r *Repository) RecordFailedLogin(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	var attempts int
	var locked sql.NullTime

	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
			locked_until = CASE
				WHEN failed_login_attempts + 1 >= $2 THEN $3
				ELSE locked_until
			END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until
	`, id, threshold, lockUntil.UTC()).Scan(&attempts, &locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, ErrNotFound
		}
		return 0, nil, fmt.Errorf("record failed login: %w", err)
	}

	if locked.Valid {
		value := locked.Time.UTC()
		return attempts, &value, nil
	}

	return attempts, nil, nil
}

func (r *Repository) ClearLoginFailures(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("clear login failures: %w", err)
	}

	return nil
}

func (r *Repository) SetResetToken(ctx context.Context, id, token string, expiry time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET reset_password_token = $2, reset_token_expiry = $3, updated_at = NOW()
		WHERE id = $1
	`, id, token, expiry.UTC())
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
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

func (r *Repository) FindByResetToken(ctx context.Context, token string) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE reset_password_token = $1 AND reset_token_expiry > NOW()
	`, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user by reset token: %w", err)
	}

	return user, nil
}

// ConsumeResetToken is the compare-and-clear: the token match and the expiry
// guard live in the same UPDATE, so of two concurrent resets racing on one
// token exactly one sees an affected row. It also unlocks the account, since
// the caller just proved control of the mailbox.
func (r *Repository) ConsumeResetToken(ctx context.Context, token, passwordHash string) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users
		SET password_hash = $2,
			reset_password_token = NULL,
			reset_token_expiry = NULL,
			failed_login_attempts = 0,
			locked_until = NULL,
			updated_at = NOW()
		WHERE reset_password_token = $1 AND reset_token_expiry > NOW()
		RETURNING `+userColumns+`
	`, token, passwordHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("consume reset token: %w", err)
	}

	return user, nil
}

type CleanupResult struct {
	ClearedResetTokens int64 `json:"cleared_reset_tokens"`
	ClearedLockouts    int64 `json:"cleared_lockouts"`
}

// CleanupExpiredCredentialState clears expired reset tokens and elapsed
// lockout windows in bounded batches. Failed-attempt counters are left
// untouched; only a successful login or reset resets them.
func (r *Repository) CleanupExpiredCredentialState(ctx context.Context, batchSize int) (CleanupResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	clearedTokens, err := r.clearBatch(ctx, `
		WITH stale AS (
			SELECT id FROM users
			WHERE reset_token_expiry IS NOT NULL AND reset_token_expiry <= NOW()
			LIMIT $1
		)
		UPDATE users u
		SET reset_password_token = NULL, reset_token_expiry = NULL, updated_at = NOW()
		FROM stale
		WHERE u.id = stale.id
	`, batchSize)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("clear expired reset tokens: %w", err)
	}

	clearedLockouts, err := r.clearBatch(ctx, `
		WITH stale AS (
			SELECT id FROM users
			WHERE locked_until IS NOT NULL AND locked_until <= NOW()
			LIMIT $1
		)
		UPDATE users u
		SET locked_until = NULL, updated_at = NOW()
		FROM stale
		WHERE u.id = stale.id
	`, batchSize)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("clear elapsed lockouts: %w", err)
	}

	return CleanupResult{ClearedResetTokens: clearedTokens, ClearedLockouts: clearedLockouts}, nil
}

func (r *Repository) clearBatch(ctx context.Context, query string, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, batchSize)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
