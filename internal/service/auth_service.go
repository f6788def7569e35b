package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/medconcierge/intake-service/internal/auth"
	"github.com/medconcierge/intake-service/internal/config"
	"github.com/medconcierge/intake-service/internal/domain"
	"github.com/medconcierge/intake-service/internal/events"
	"github.com/medconcierge/intake-service/internal/repository"
	apperrors "github.com/medconcierge/intake-service/pkg/util/errorutil"
	"github.com/medconcierge/intake-service/pkg/util/validate"
)

const (
	scopeSignIn       = "sign-in"
	scopeResetRequest = "reset-request"
	scopeResetConfirm = "reset-confirm"
)

// AuthService is the identity provider: sign-in, password resets and staff accounts.
type AuthService struct {
	users        repository.UserRepository
	applications repository.ApplicationRepository
	resets       repository.PasswordResetRepository
	limiter      *auth.AttemptLimiter
	dispatcher   events.Dispatcher
	logger       *zap.Logger
	tokenMgr     *auth.TokenManager
	bcryptCost   int
	resetTTL     time.Duration
	codeLength   int
	// dummyHash is compared against when the identifier matches no account so
	// both outcomes cost one bcrypt comparison.
	dummyHash    string
	compare      func(hash, password string) error
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo          repository.UserRepository
	ApplicationRepo   repository.ApplicationRepository
	PasswordResetRepo repository.PasswordResetRepository
	Limiter           *auth.AttemptLimiter
	Dispatcher        events.Dispatcher
	Logger            *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dummyHash, err := auth.HashPassword("no-such-account", cfg.Auth.BcryptCost)
	if err != nil {
		logger.Warn("dummy password hash unavailable", zap.Error(err))
	}
	return &AuthService{
		users:        deps.UserRepo,
		applications: deps.ApplicationRepo,
		resets:       deps.PasswordResetRepo,
		limiter:      deps.Limiter,
		dispatcher:   deps.Dispatcher,
		logger:       logger,
		tokenMgr:     auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost:   cfg.Auth.BcryptCost,
		resetTTL:     cfg.Auth.ResetCodeTTL(),
		codeLength:   cfg.Auth.ResetCodeLength,
		dummyHash:    dummyHash,
		compare:      auth.ComparePassword,
	}
}

// SignInInput carries credentials. Identifier is an email or a phone number.
type SignInInput struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// SignInResult is an issued session.
type SignInResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// ResetConfirmInput redeems a reset code.
type ResetConfirmInput struct {
	Identifier  string `json:"identifier" validate:"required"`
	Code        string `json:"code" validate:"required,numeric"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
}

// ChangePasswordInput replaces the caller's password.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

// CreateStaffInput describes a new staff account.
type CreateStaffInput struct {
	FirstName string      `json:"firstName" validate:"required,max=100"`
	LastName  string      `json:"lastName" validate:"required,max=100"`
	Email     string      `json:"email" validate:"required,email,max=254"`
	Phone     string      `json:"phone" validate:"required,e164"`
	Password  string      `json:"password" validate:"required,min=8,max=72"`
	Role      domain.Role `json:"role" validate:"required,oneof=MANAGER ADMIN"`
}

// SignIn verifies credentials and issues a session token. Clients may sign
// in only once one of their applications is COMPLETED.
func (s *AuthService) SignIn(ctx context.Context, input SignInInput) (*SignInResult, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if err := s.checkAttempts(ctx, scopeSignIn, input.Identifier); err != nil {
		return nil, err
	}

	user, err := s.findByIdentifier(ctx, input.Identifier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_ = s.compare(s.dummyHash, input.Password)
			s.failAttempt(ctx, scopeSignIn, input.Identifier)
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if err := s.compare(user.PasswordHash, input.Password); err != nil {
		s.failAttempt(ctx, scopeSignIn, input.Identifier)
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if !user.IsActive {
		return nil, apperrors.NewForbidden("account disabled")
	}
	if user.Role == domain.RoleClient {
		completed, err := s.applications.HasStatus(ctx, user.ID, domain.StatusCompleted)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if !completed {
			return nil, apperrors.NewApplicationPending()
		}
	}
	s.resetAttempts(ctx, scopeSignIn, input.Identifier)

	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.logger.Info("user signed in", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return &SignInResult{User: user, Token: token, ExpiresAt: exp}, nil
}

// RequestPasswordReset issues a numeric code and emails it. Unknown or
// inactive identifiers succeed silently.
func (s *AuthService) RequestPasswordReset(ctx context.Context, identifier string) error {
	if strings.TrimSpace(identifier) == "" {
		return apperrors.NewValidationError("invalid payload", map[string]any{"identifier": "is required"})
	}
	if err := s.checkAttempts(ctx, scopeResetRequest, identifier); err != nil {
		return err
	}
	s.failAttempt(ctx, scopeResetRequest, identifier)

	user, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Debug("password reset for unknown identifier")
			return nil
		}
		return apperrors.MapError(err)
	}
	if !user.IsActive {
		return nil
	}

	code, err := generateNumericCode(s.codeLength)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	record := &domain.PasswordResetCode{
		UserID:    user.ID,
		Code:      code,
		ExpiresAt: time.Now().Add(s.resetTTL),
	}
	if err := s.resets.Create(ctx, record); err != nil {
		return apperrors.MapError(err)
	}

	publishEvent(ctx, s.dispatcher, s.logger, events.NewEvent(
		events.EventPasswordResetRequested,
		"",
		user.Actor(),
		events.PasswordResetRequestedPayload{
			Recipient: recipientOf(user),
			Code:      code,
			ExpiresAt: record.ExpiresAt,
		},
	))
	return nil
}

// ConfirmPasswordReset redeems the latest code of the user and replaces the password.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, input ResetConfirmInput) error {
	if err := validate.Struct(input); err != nil {
		return err
	}
	if err := s.checkAttempts(ctx, scopeResetConfirm, input.Identifier); err != nil {
		return err
	}

	invalid := func() error {
		s.failAttempt(ctx, scopeResetConfirm, input.Identifier)
		return apperrors.NewValidationError("invalid or expired code", map[string]any{"code": "is invalid or expired"})
	}

	user, err := s.findByIdentifier(ctx, input.Identifier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invalid()
		}
		return apperrors.MapError(err)
	}
	code, err := s.resets.GetLatestForUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invalid()
		}
		return apperrors.MapError(err)
	}
	if !code.Usable(time.Now()) || subtle.ConstantTimeCompare([]byte(code.Code), []byte(input.Code)) != 1 {
		return invalid()
	}

	hash, err := auth.HashPassword(input.NewPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := s.resets.Redeem(ctx, code.ID, user.ID, hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invalid()
		}
		return apperrors.MapError(err)
	}
	s.resetAttempts(ctx, scopeResetConfirm, input.Identifier)
	s.resetAttempts(ctx, scopeSignIn, input.Identifier)
	s.logger.Info("password reset", zap.String("user_id", user.ID))
	return nil
}

// ChangePassword verifies current password before updating to new hash.
func (s *AuthService) ChangePassword(ctx context.Context, actor domain.Actor, input ChangePasswordInput) error {
	if err := validate.Struct(input); err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return notFoundAs(err, "user")
	}
	if err := auth.ComparePassword(user.PasswordHash, input.CurrentPassword); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"currentPassword": "is incorrect"})
	}
	hash, err := auth.HashPassword(input.NewPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return apperrors.MapError(s.users.UpdatePassword(ctx, user.ID, hash))
}

// Me returns the caller's account.
func (s *AuthService) Me(ctx context.Context, actor domain.Actor) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, notFoundAs(err, "user")
	}
	return user, nil
}

// CreateStaff adds a MANAGER or ADMIN account. Only admins may call it.
func (s *AuthService) CreateStaff(ctx context.Context, actor domain.Actor, input CreateStaffInput) (*domain.User, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("admin role required")
	}
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Email = normalizeEmail(input.Email)
	input.Phone = normalizePhone(input.Phone)
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, input.Email); err == nil {
		return nil, apperrors.NewConflict("email already registered", map[string]any{"email": "is already registered"})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}
	if _, err := s.users.GetByPhone(ctx, input.Phone); err == nil {
		return nil, apperrors.NewConflict("phone already registered", map[string]any{"phone": "is already registered"})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user := &domain.User{
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Email:        input.Email,
		Phone:        input.Phone,
		PasswordHash: hash,
		Role:         input.Role,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("staff account created",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.String("created_by", actor.ID))
	return user, nil
}

// ListStaff returns staff accounts, newest first. Only admins may call it.
func (s *AuthService) ListStaff(ctx context.Context, actor domain.Actor, activeOnly bool, limit, offset int) ([]domain.User, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("admin role required")
	}
	limit, offset = clampPage(limit, offset)
	filter := repository.UserFilter{Roles: domain.StaffRoles(), Limit: limit, Offset: offset}
	if activeOnly {
		filter.Active = &activeOnly
	}
	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) findByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	normalized := normalizeIdentifier(identifier)
	if isEmailIdentifier(identifier) {
		return s.users.GetByEmail(ctx, normalized)
	}
	if normalized == "" {
		return nil, pgx.ErrNoRows
	}
	return s.users.GetByPhone(ctx, normalized)
}

// checkAttempts enforces the throttle. Redis failures do not block sign-in.
// Counters are keyed on the normalized identifier so every spelling of one
// email or phone number shares a counter.
func (s *AuthService) checkAttempts(ctx context.Context, scope, identifier string) error {
	err := s.limiter.Check(ctx, scope, normalizeIdentifier(identifier))
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	s.logger.Warn("attempt limiter unavailable", zap.String("scope", scope), zap.Error(err))
	return nil
}

func (s *AuthService) failAttempt(ctx context.Context, scope, identifier string) {
	if err := s.limiter.Fail(ctx, scope, normalizeIdentifier(identifier)); err != nil {
		s.logger.Warn("attempt limiter unavailable", zap.String("scope", scope), zap.Error(err))
	}
}

func (s *AuthService) resetAttempts(ctx context.Context, scope, identifier string) {
	if err := s.limiter.Reset(ctx, scope, normalizeIdentifier(identifier)); err != nil {
		s.logger.Warn("attempt limiter unavailable", zap.String("scope", scope), zap.Error(err))
	}
}

func generateNumericCode(length int) (string, error) {
	if length <= 0 {
		length = 6
	}
	ten := big.NewInt(10)
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
