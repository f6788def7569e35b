package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/medconcierge/intake-service/internal/auth"
	"github.com/medconcierge/intake-service/internal/domain"
	"github.com/medconcierge/intake-service/internal/events"
	"github.com/medconcierge/intake-service/internal/observability"
	"github.com/medconcierge/intake-service/internal/repository"
	apperrors "github.com/medconcierge/intake-service/pkg/util/errorutil"
	"github.com/medconcierge/intake-service/pkg/util/validate"
)

// ApplicationService coordinates lead intake and the status workflow.
type ApplicationService struct {
	applications repository.ApplicationRepository
	history      repository.StatusHistoryRepository
	users        repository.UserRepository
	lookups      repository.LookupRepository
	dispatcher   events.Dispatcher
	metrics      *observability.Metrics
	logger       *zap.Logger
	bcryptCost   int
}

// ApplicationDependencies bundles collaborators for the application service.
type ApplicationDependencies struct {
	ApplicationRepo repository.ApplicationRepository
	HistoryRepo     repository.StatusHistoryRepository
	UserRepo        repository.UserRepository
	LookupRepo      repository.LookupRepository
	Dispatcher      events.Dispatcher
	Metrics         *observability.Metrics
	Logger          *zap.Logger
	BcryptCost      int
}

// NewApplicationService builds the service.
func NewApplicationService(deps ApplicationDependencies) *ApplicationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{
		applications: deps.ApplicationRepo,
		history:      deps.HistoryRepo,
		users:        deps.UserRepo,
		lookups:      deps.LookupRepo,
		dispatcher:   deps.Dispatcher,
		metrics:      deps.Metrics,
		logger:       logger,
		bcryptCost:   deps.BcryptCost,
	}
}

// SubmitApplicationInput is the public intake form.
type SubmitApplicationInput struct {
	FirstName       string   `json:"firstName" validate:"required,max=100"`
	LastName        string   `json:"lastName" validate:"required,max=100"`
	Email           string   `json:"email" validate:"required,email,max=254"`
	Phone           string   `json:"phone" validate:"required,e164"`
	Password        string   `json:"password" validate:"required,min=8,max=72"`
	LocationID      string   `json:"locationId" validate:"required,uuid"`
	InsuranceID     string   `json:"insuranceId" validate:"required,uuid"`
	TravelAbilityID string   `json:"travelAbilityId" validate:"required,uuid"`
	ServiceIDs      []string `json:"serviceIds" validate:"required,min=1,dive,uuid"`
	Notes           string   `json:"notes" validate:"max=2000"`
}

// ListApplicationsInput narrows an application listing.
type ListApplicationsInput struct {
	Status *domain.ApplicationStatus
	Limit  int
	Offset int
}

// UpdateStatusInput is the status change request.
type UpdateStatusInput struct {
	Status  domain.ApplicationStatus `json:"status" validate:"required,oneof=NEW IN_REVIEW CONTACTED COMPLETED CANCELLED"`
	Comment *string                  `json:"comment" validate:"omitempty,max=1000"`
}

// Submit records a lead. An existing client account with the same email is
// reused when the password matches; otherwise a new client account is created
// together with the application.
func (s *ApplicationService) Submit(ctx context.Context, input SubmitApplicationInput) (*domain.ApplicationDetail, error) {
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Email = normalizeEmail(input.Email)
	input.Phone = normalizePhone(input.Phone)
	input.Notes = strings.TrimSpace(input.Notes)
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	serviceIDs := uniqueStrings(input.ServiceIDs)
	if err := s.checkLookups(ctx, input, serviceIDs); err != nil {
		return nil, err
	}

	app := &domain.Application{
		Status:          domain.StatusNew,
		LocationID:      input.LocationID,
		InsuranceID:     input.InsuranceID,
		TravelAbilityID: input.TravelAbilityID,
		Notes:           input.Notes,
	}

	owner, err := s.users.GetByEmail(ctx, input.Email)
	var newOwner *domain.User
	switch {
	case err == nil:
		if owner.Role != domain.RoleClient || !owner.IsActive || auth.ComparePassword(owner.PasswordHash, input.Password) != nil {
			return nil, apperrors.NewConflict("an account with this email already exists", map[string]any{"email": "is already registered"})
		}
		app.UserID = owner.ID
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := s.users.GetByPhone(ctx, input.Phone); err == nil {
			return nil, apperrors.NewConflict("an account with this phone already exists", map[string]any{"phone": "is already registered"})
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.MapError(err)
		}
		hash, err := auth.HashPassword(input.Password, s.bcryptCost)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		newOwner = &domain.User{
			FirstName:    input.FirstName,
			LastName:     input.LastName,
			Email:        input.Email,
			Phone:        input.Phone,
			PasswordHash: hash,
			Role:         domain.RoleClient,
			IsActive:     true,
		}
		owner = newOwner
	default:
		return nil, apperrors.MapError(err)
	}

	if err := s.applications.Create(ctx, app, serviceIDs, newOwner); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("application submitted",
		zap.String("application_id", app.ID),
		zap.String("user_id", app.UserID),
		zap.Bool("new_account", newOwner != nil))
	publishEvent(ctx, s.dispatcher, s.logger, events.NewEvent(
		events.EventApplicationSubmitted,
		app.ID,
		owner.Actor(),
		events.ApplicationSubmittedPayload{
			Owner:      recipientOf(owner),
			NewAccount: newOwner != nil,
			ServiceIDs: serviceIDs,
		},
	))

	detail, err := s.applications.GetDetail(ctx, app.ID)
	if err != nil {
		return nil, notFoundAs(err, "application")
	}
	return detail, nil
}

func (s *ApplicationService) checkLookups(ctx context.Context, input SubmitApplicationInput, serviceIDs []string) error {
	checks := []struct {
		field string
		kind  domain.LookupKind
		ids   []string
	}{
		{"locationId", domain.LookupLocation, []string{input.LocationID}},
		{"insuranceId", domain.LookupInsurance, []string{input.InsuranceID}},
		{"travelAbilityId", domain.LookupTravelAbility, []string{input.TravelAbilityID}},
		{"serviceIds", domain.LookupService, serviceIDs},
	}
	details := map[string]any{}
	for _, check := range checks {
		n, err := s.lookups.CountActive(ctx, check.kind, check.ids)
		if err != nil {
			return apperrors.MapError(err)
		}
		if n != len(check.ids) {
			details[check.field] = "references an unknown or inactive option"
		}
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid payload", details)
	}
	return nil
}

// List returns every application to staff and only their own to clients.
func (s *ApplicationService) List(ctx context.Context, actor domain.Actor, input ListApplicationsInput) ([]domain.ApplicationDetail, error) {
	if input.Status != nil && !input.Status.Valid() {
		return nil, apperrors.NewValidationError("invalid filter", map[string]any{"status": "must be one of: NEW IN_REVIEW CONTACTED COMPLETED CANCELLED"})
	}
	limit, offset := clampPage(input.Limit, input.Offset)
	filter := repository.ApplicationFilter{Status: input.Status, Limit: limit, Offset: offset}
	if !actor.Role.IsStaff() {
		filter.UserID = &actor.ID
	}
	apps, err := s.applications.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return apps, nil
}

// Get returns one application with its related entities.
func (s *ApplicationService) Get(ctx context.Context, actor domain.Actor, id string) (*domain.ApplicationDetail, error) {
	if _, err := s.authorize(ctx, actor, id, auth.PermView); err != nil {
		return nil, err
	}
	detail, err := s.applications.GetDetail(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "application")
	}
	return detail, nil
}

// ListHistory returns the status audit trail in chronological order.
func (s *ApplicationService) ListHistory(ctx context.Context, actor domain.Actor, id string) ([]domain.ApplicationStatusHistory, error) {
	if _, err := s.authorize(ctx, actor, id, auth.PermViewHistory); err != nil {
		return nil, err
	}
	history, err := s.history.ListByApplication(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return history, nil
}

// UpdateStatus moves an application to a new status and records the change.
// Checks run in order: staff role, payload, existence. The status and its
// history row commit together; if reloading the application afterwards fails
// the change stays committed, is logged, and the caller gets an internal error
// without a change notification.
func (s *ApplicationService) UpdateStatus(ctx context.Context, actor domain.Actor, id string, input UpdateStatusInput) (*domain.ApplicationDetail, error) {
	if err := auth.Permissions(actor, nil).Require(auth.PermUpdateStatus); err != nil {
		return nil, err
	}
	if input.Comment != nil {
		trimmed := strings.TrimSpace(*input.Comment)
		if trimmed == "" {
			input.Comment = nil
		} else {
			input.Comment = &trimmed
		}
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if err := requireID(id, "application"); err != nil {
		return nil, err
	}

	change, err := s.applications.UpdateStatus(ctx, id, input.Status, actor.ID, input.Comment)
	if err != nil {
		return nil, notFoundAs(err, "application")
	}
	s.metrics.RecordStatusTransition(string(change.NewStatus))

	detail, err := s.applications.GetDetail(ctx, id)
	if err != nil {
		s.logger.Error("status change committed but application reload failed",
			zap.String("application_id", id),
			zap.String("history_id", change.ID),
			zap.String("new_status", string(change.NewStatus)),
			zap.Error(err))
		return nil, notFoundAs(err, "application")
	}

	s.logger.Info("application status changed",
		zap.String("application_id", id),
		zap.String("old_status", string(change.OldStatus)),
		zap.String("new_status", string(change.NewStatus)),
		zap.String("changed_by", actor.ID))

	comment := ""
	if change.Comment != nil {
		comment = *change.Comment
	}
	publishEvent(ctx, s.dispatcher, s.logger, events.NewEvent(
		events.EventApplicationStatusChanged,
		id,
		actor,
		events.ApplicationStatusChangedPayload{
			Owner: events.Recipient{
				UserID:    detail.Owner.ID,
				Email:     detail.Owner.Email,
				FirstName: detail.Owner.FirstName,
			},
			OldStatus: change.OldStatus,
			NewStatus: change.NewStatus,
			Comment:   comment,
		},
	))
	return detail, nil
}

// Lookups returns the active reference lists for the intake form.
func (s *ApplicationService) Lookups(ctx context.Context) (*domain.Lookups, error) {
	var (
		result domain.Lookups
		err    error
	)
	targets := []struct {
		kind domain.LookupKind
		dst  *[]domain.Lookup
	}{
		{domain.LookupLocation, &result.Locations},
		{domain.LookupInsurance, &result.Insurances},
		{domain.LookupService, &result.Services},
		{domain.LookupTravelAbility, &result.TravelAbilities},
	}
	for _, target := range targets {
		if *target.dst, err = s.lookups.ListActive(ctx, target.kind); err != nil {
			return nil, apperrors.MapError(err)
		}
	}
	return &result, nil
}

// authorize loads the application and checks one permission on it. A missing
// application is reported before any permission failure.
func (s *ApplicationService) authorize(ctx context.Context, actor domain.Actor, id string, perm auth.Permission) (*domain.Application, error) {
	return authorizeApplication(ctx, s.applications, actor, id, perm)
}

func authorizeApplication(ctx context.Context, repo repository.ApplicationRepository, actor domain.Actor, id string, perm auth.Permission) (*domain.Application, error) {
	if err := requireID(id, "application"); err != nil {
		return nil, err
	}
	app, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "application")
	}
	if err := auth.Permissions(actor, app).Require(perm); err != nil {
		return nil, err
	}
	return app, nil
}

func uniqueStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
