package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/medconcierge/intake-service/internal/domain"
	"github.com/medconcierge/intake-service/internal/events"
	apperrors "github.com/medconcierge/intake-service/pkg/util/errorutil"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	previewLength   = 140
)

// publishEvent hands the event to the dispatcher. Handler failures are logged
// and never surface to the caller.
func publishEvent(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, event events.Event) {
	if dispatcher == nil {
		return
	}
	if err := dispatcher.Publish(ctx, event); err != nil && logger != nil {
		logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

// requireID rejects ids that cannot exist so they read as not found rather
// than reaching the database as malformed uuids.
func requireID(id, resource string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.NewNotFound(resource, nil)
	}
	return nil
}

// notFoundAs maps a missing row to a NotFound error naming resource.
func notFoundAs(err error, resource string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, nil)
	}
	return apperrors.MapError(err)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func recipientOf(u *domain.User) events.Recipient {
	if u == nil {
		return events.Recipient{}
	}
	return events.Recipient{UserID: u.ID, Email: u.Email, FirstName: u.FirstName}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	runes := []rune(body)
	return string(runes[:max]) + "..."
}

// normalizeEmail lower-cases and trims an email address.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizePhone keeps digits and a leading plus sign.
func normalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isEmailIdentifier reports whether a sign-in identifier is an email address.
func isEmailIdentifier(identifier string) bool {
	return strings.Contains(identifier, "@")
}

// normalizeIdentifier canonicalizes an email or phone sign-in identifier.
func normalizeIdentifier(identifier string) string {
	if isEmailIdentifier(identifier) {
		return normalizeEmail(identifier)
	}
	return normalizePhone(identifier)
}
