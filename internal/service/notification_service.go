package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/medconcierge/intake-service/internal/domain"
	"github.com/medconcierge/intake-service/internal/events"
	"github.com/medconcierge/intake-service/internal/notify"
)

// NotificationService turns domain events into emails and webhook calls.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	email      notify.EmailSender
	webhook    *notify.WebhookPoster
}

// NewNotificationService creates the service. A nil webhook disables webhooks.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, email notify.EmailSender, webhook *notify.WebhookPoster) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		email:      email,
		webhook:    webhook,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventApplicationSubmitted, n.handleApplicationSubmitted)
	n.dispatcher.Subscribe(events.EventApplicationStatusChanged, n.handleStatusChanged)
	n.dispatcher.Subscribe(events.EventMessagePosted, n.handleMessagePosted)
	n.dispatcher.Subscribe(events.EventPasswordResetRequested, n.handlePasswordResetRequested)
}

func (n *NotificationService) handleApplicationSubmitted(ctx context.Context, event events.Event) error {
	n.logger.Info("ApplicationSubmitted", zap.String("application_id", event.ApplicationID), zap.String("event_id", event.ID))
	payload, ok := event.Payload.(events.ApplicationSubmittedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	return errors.Join(
		n.sendEmail(ctx, payload.Owner, "We received your application",
			fmt.Sprintf("Hello %s,\n\nthank you for your request. Our team will review it and contact you shortly.", payload.Owner.FirstName)),
		n.webhook.Post(ctx, event),
	)
}

func (n *NotificationService) handleStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("ApplicationStatusChanged", zap.String("application_id", event.ApplicationID), zap.Any("payload", event.Payload))
	payload, ok := event.Payload.(events.ApplicationStatusChangedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	body := fmt.Sprintf("Hello %s,\n\nthe status of your application changed to %s.", payload.Owner.FirstName, payload.NewStatus)
	if payload.Comment != "" {
		body += "\n\n" + payload.Comment
	}
	return errors.Join(
		n.sendEmail(ctx, payload.Owner, "Your application status changed", body),
		n.webhook.Post(ctx, event),
	)
}

func (n *NotificationService) handleMessagePosted(ctx context.Context, event events.Event) error {
	n.logger.Info("MessagePosted", zap.String("application_id", event.ApplicationID), zap.String("sender_role", string(event.Actor.Role)))
	payload, ok := event.Payload.(events.MessagePostedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	var emailErr error
	if payload.SenderRole != domain.RoleClient {
		emailErr = n.sendEmail(ctx, payload.Owner, "New message about your application",
			fmt.Sprintf("Hello %s,\n\nyou have a new message:\n\n%s", payload.Owner.FirstName, payload.BodyPreview))
	}
	return errors.Join(emailErr, n.webhook.Post(ctx, event))
}

// handlePasswordResetRequested only emails: the code never leaves by webhook or log.
func (n *NotificationService) handlePasswordResetRequested(ctx context.Context, event events.Event) error {
	n.logger.Info("PasswordResetRequested", zap.String("user_id", event.Actor.ID))
	payload, ok := event.Payload.(events.PasswordResetRequestedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	return n.sendEmail(ctx, payload.Recipient, "Your password reset code",
		fmt.Sprintf("Hello %s,\n\nyour code is %s. It expires at %s.",
			payload.Recipient.FirstName, payload.Code, payload.ExpiresAt.UTC().Format("15:04 MST")))
}

func (n *NotificationService) sendEmail(ctx context.Context, to events.Recipient, subject, body string) error {
	if n.email == nil || to.Email == "" {
		return nil
	}
	if err := n.email.Send(ctx, notify.Email{To: to.Email, Subject: subject, Body: body}); err != nil {
		return fmt.Errorf("email to user %s: %w", to.UserID, err)
	}
	return nil
}

func unexpectedPayload(event events.Event) error {
	return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
}
