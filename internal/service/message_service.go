package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/medconcierge/intake-service/internal/auth"
	"github.com/medconcierge/intake-service/internal/domain"
	"github.com/medconcierge/intake-service/internal/events"
	"github.com/medconcierge/intake-service/internal/observability"
	"github.com/medconcierge/intake-service/internal/repository"
	apperrors "github.com/medconcierge/intake-service/pkg/util/errorutil"
)

// MessageService runs the application conversation thread.
type MessageService struct {
	applications repository.ApplicationRepository
	messages     repository.MessageRepository
	users        repository.UserRepository
	dispatcher   events.Dispatcher
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// MessageDependencies bundles collaborators for the message service.
type MessageDependencies struct {
	ApplicationRepo repository.ApplicationRepository
	MessageRepo     repository.MessageRepository
	UserRepo        repository.UserRepository
	Dispatcher      events.Dispatcher
	Metrics         *observability.Metrics
	Logger          *zap.Logger
}

// NewMessageService builds the service.
func NewMessageService(deps MessageDependencies) *MessageService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{
		applications: deps.ApplicationRepo,
		messages:     deps.MessageRepo,
		users:        deps.UserRepo,
		dispatcher:   deps.Dispatcher,
		metrics:      deps.Metrics,
		logger:       logger,
	}
}

// List returns the whole thread, oldest first, with sender identities.
func (s *MessageService) List(ctx context.Context, actor domain.Actor, applicationID string) ([]domain.Message, error) {
	if _, err := authorizeApplication(ctx, s.applications, actor, applicationID, auth.PermListMessages); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return msgs, nil
}

// Post appends a message authored by actor. The content is trimmed and must
// hold between 1 and MaxMessageLength characters.
func (s *MessageService) Post(ctx context.Context, actor domain.Actor, applicationID, content string) (*domain.Message, error) {
	app, err := authorizeApplication(ctx, s.applications, actor, applicationID, auth.PermPostMessage)
	if err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n == 0 || n > domain.MaxMessageLength {
		return nil, apperrors.NewValidationError("invalid message", map[string]any{
			"content": "must be between 1 and 2000 characters",
		})
	}

	msg := &domain.Message{
		ApplicationID: app.ID,
		SenderID:      actor.ID,
		SenderRole:    actor.Role,
		Content:       content,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.metrics.RecordMessagePosted(string(actor.Role))

	owner, err := s.users.GetByID(ctx, app.UserID)
	if err != nil {
		s.logger.Warn("message owner lookup failed", zap.String("application_id", app.ID), zap.Error(err))
	}
	publishEvent(ctx, s.dispatcher, s.logger, events.NewEvent(
		events.EventMessagePosted,
		app.ID,
		actor,
		events.MessagePostedPayload{
			Owner:       recipientOf(owner),
			MessageID:   msg.ID,
			SenderRole:  msg.SenderRole,
			BodyPreview: stringPreview(msg.Content, previewLength),
		},
	))
	return msg, nil
}

// MarkRead flags the counterpart's unread messages in the thread as read:
// staff read client messages, the owner reads staff messages.
func (s *MessageService) MarkRead(ctx context.Context, actor domain.Actor, applicationID string) (int64, error) {
	if _, err := authorizeApplication(ctx, s.applications, actor, applicationID, auth.PermMarkRead); err != nil {
		return 0, err
	}
	n, err := s.messages.MarkRead(ctx, applicationID, domain.CounterpartRoles(actor.Role))
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	s.logger.Debug("messages marked read",
		zap.String("application_id", applicationID),
		zap.String("reader_role", string(actor.Role)),
		zap.Int64("count", n))
	return n, nil
}

// UnreadCounts returns, for staff, the number of unread client messages per
// application. Applications without unread client messages are omitted.
func (s *MessageService) UnreadCounts(ctx context.Context, actor domain.Actor) (map[string]int, error) {
	if err := auth.RequireStaff(actor); err != nil {
		return nil, err
	}
	counts, err := s.messages.UnreadCounts(ctx, domain.RoleClient)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return counts, nil
}
