package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lockersys/internal/observability"
)

const (
	defaultMaxAttempts  = 5
	defaultLockWindow   = 15 * time.Minute
	defaultResetTTL     = 30 * time.Minute
	defaultStoreTimeout = 5 * time.Second
	minPasswordLength   = 8
	passwordBcryptCost  = 12
	welcomeMailDeadline = 10 * time.Second
)

// Mailer dispatches account emails. Reset delivery is part of the
// forgot-password contract; welcome delivery is best-effort.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, resetURL string) error
	SendWelcome(ctx context.Context, email, name string) error
}

type Service struct {
	store       Store
	mailer      Mailer
	issuer      *TokenIssuer
	logger      *observability.Logger
	frontendURL string

	maxAttempts  int
	lockDuration time.Duration
	resetTTL     time.Duration
	storeTimeout time.Duration
}

func NewService(store Store, mailer Mailer, issuer *TokenIssuer, logger *observability.Logger, frontendURL string) *Service {
	return &Service{
		store:        store,
		mailer:       mailer,
		issuer:       issuer,
		logger:       logger,
		frontendURL:  strings.TrimRight(strings.TrimSpace(frontendURL), "/"),
		maxAttempts:  defaultMaxAttempts,
		lockDuration: defaultLockWindow,
		resetTTL:     defaultResetTTL,
		storeTimeout: defaultStoreTimeout,
	}
}

func (s *Service) WithSecurityConfig(maxAttempts int, lockDuration, resetTTL time.Duration) {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if lockDuration > 0 {
		s.lockDuration = lockDuration
	}
	if resetTTL > 0 {
		s.resetTTL = resetTTL
	}
}

func (s *Service) WithStoreTimeout(timeout time.Duration) {
	if timeout > 0 {
		s.storeTimeout = timeout
	}
}

func (s *Service) Issuer() *TokenIssuer {
	return s.issuer
}

// bound caps the credential-store work of one operation. An unresponsive
// store fails the request with context.DeadlineExceeded (mapped to 503 at
// the handler) instead of hanging it.
func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *Service) Login(ctx context.Context, email, password string) (SafeUser, Tokens, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return SafeUser{}, Tokens{}, ErrInvalidCredentials
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Unknown email short-circuits before any lockout bookkeeping.
			return SafeUser{}, Tokens{}, ErrInvalidCredentials
		}
		return SafeUser{}, Tokens{}, err
	}

	now := time.Now().UTC()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return SafeUser{}, Tokens{}, ErrAccountLocked{Until: *user.LockedUntil}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if _, _, recErr := s.store.RecordFailedLogin(ctx, user.ID, s.maxAttempts, now.Add(s.lockDuration)); recErr != nil && !errors.Is(recErr, ErrNotFound) {
			return SafeUser{}, Tokens{}, recErr
		}
		return SafeUser{}, Tokens{}, ErrInvalidCredentials
	}

	if err := s.store.ClearLoginFailures(ctx, user.ID); err != nil {
		return SafeUser{}, Tokens{}, err
	}

	tokens, err := s.issuer.Issue(user.ID)
	if err != nil {
		return SafeUser{}, Tokens{}, fmt.Errorf("issue tokens: %w", err)
	}

	return user.Sanitized(), tokens, nil
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (SafeUser, Tokens, error) {
	input.Email = normalizeEmail(input.Email)
	input.Name = strings.TrimSpace(input.Name)
	if input.Role == "" {
		input.Role = RoleUser
	}

	if len(input.Password) < minPasswordLength {
		return SafeUser{}, Tokens{}, ErrWeakPassword
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	if _, err := s.store.FindByEmail(ctx, input.Email); err == nil {
		return SafeUser{}, Tokens{}, ErrEmailInUse
	} else if !errors.Is(err, ErrNotFound) {
		return SafeUser{}, Tokens{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), passwordBcryptCost)
	if err != nil {
		return SafeUser{}, Tokens{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.Create(ctx, NewUser{
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: string(hash),
		Role:         input.Role,
	})
	if err != nil {
		return SafeUser{}, Tokens{}, err
	}

	tokens, err := s.issuer.Issue(user.ID)
	if err != nil {
		return SafeUser{}, Tokens{}, fmt.Errorf("issue tokens: %w", err)
	}

	// Welcome delivery must never fail the registration.
	go func(email, name string) {
		mailCtx, cancel := context.WithTimeout(context.Background(), welcomeMailDeadline)
		defer cancel()
		if err := s.mailer.SendWelcome(mailCtx, email, name); err != nil {
			s.logger.Warn("welcome_email_failed", map[string]any{"error": err.Error()})
		}
	}(user.Email, user.Name)

	return user.Sanitized(), tokens, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (SafeUser, Tokens, error) {
	userID, err := s.issuer.VerifyRefresh(strings.TrimSpace(refreshToken))
	if err != nil {
		return SafeUser{}, Tokens{}, ErrInvalidToken
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return SafeUser{}, Tokens{}, ErrAccountNotFound
		}
		return SafeUser{}, Tokens{}, err
	}

	tokens, err := s.issuer.Issue(user.ID)
	if err != nil {
		return SafeUser{}, Tokens{}, fmt.Errorf("issue tokens: %w", err)
	}

	return user.Sanitized(), tokens, nil
}

// ForgotPassword never reveals whether the email exists: a lookup miss is
// absorbed into the same generic outcome the caller sees on success. Mail
// dispatch failures do propagate, since the contract implies delivery.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	ctx, cancel := s.bound(ctx)
	defer cancel()

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	token, err := randomToken(32)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	expiry := time.Now().UTC().Add(s.resetTTL)
	if err := s.store.SetResetToken(ctx, user.ID, token, expiry); err != nil {
		return err
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token)
	if err := s.mailer.SendPasswordReset(ctx, user.Email, resetURL); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}

	return nil
}

// ValidateResetToken reports validity without consuming the token. A token
// is valid strictly while now < expiry.
func (s *Service) ValidateResetToken(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	if _, err := s.store.FindByResetToken(ctx, token); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (SafeUser, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return SafeUser{}, ErrInvalidResetToken
	}
	if len(newPassword) < minPasswordLength {
		return SafeUser{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), passwordBcryptCost)
	if err != nil {
		return SafeUser{}, fmt.Errorf("hash password: %w", err)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	user, err := s.store.ConsumeResetToken(ctx, token, string(hash))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return SafeUser{}, ErrInvalidResetToken
		}
		return SafeUser{}, err
	}

	return user.Sanitized(), nil
}

func (s *Service) Profile(ctx context.Context, userID string) (SafeUser, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return SafeUser{}, ErrAccountNotFound
		}
		return SafeUser{}, err
	}

	return user.Sanitized(), nil
}

type ProfileUpdateInput struct {
	Name            string
	Email           string
	CurrentPassword string
	NewPassword     string
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, input ProfileUpdateInput) (SafeUser, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return SafeUser{}, ErrAccountNotFound
		}
		return SafeUser{}, err
	}

	update := UserUpdate{}
	if name := strings.TrimSpace(input.Name); name != "" {
		update.Name = &name
	}
	if email := normalizeEmail(input.Email); email != "" && email != user.Email {
		if _, err := s.store.FindByEmail(ctx, email); err == nil {
			return SafeUser{}, ErrEmailInUse
		} else if !errors.Is(err, ErrNotFound) {
			return SafeUser{}, err
		}
		update.Email = &email
	}

	if input.NewPassword != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.CurrentPassword)); err != nil {
			return SafeUser{}, ErrInvalidCredentials
		}
		if len(input.NewPassword) < minPasswordLength {
			return SafeUser{}, ErrWeakPassword
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), passwordBcryptCost)
		if err != nil {
			return SafeUser{}, fmt.Errorf("hash password: %w", err)
		}
		hashed := string(hash)
		update.PasswordHash = &hashed
	}

	updated, err := s.store.Update(ctx, userID, update)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return SafeUser{}, ErrAccountNotFound
		}
		return SafeUser{}, err
	}

	return updated.Sanitized(), nil
}

// BootstrapAdmin seeds the first admin account from the environment. It is
// a no-op when the account already exists or the env pair is unset.
func (s *Service) BootstrapAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	password = strings.TrimSpace(password)

	if email == "" && password == "" {
		return nil
	}
	if email == "" || password == "" {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD are required together")
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordBcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = s.store.Create(ctx, NewUser{
		Name:         "Administrator",
		Email:        email,
		PasswordHash: string(hash),
		Role:         RoleAdmin,
	})
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
