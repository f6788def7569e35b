package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/medconcierge/intake-service/internal/auth"
	"github.com/medconcierge/intake-service/internal/config"
	"github.com/medconcierge/intake-service/internal/domain"
	"github.com/medconcierge/intake-service/internal/events"
	"github.com/medconcierge/intake-service/internal/notify"
	"github.com/medconcierge/intake-service/internal/observability"
	"github.com/medconcierge/intake-service/internal/repository/repotest"
	apperrors "github.com/medconcierge/intake-service/pkg/util/errorutil"
)

const testPassword = "s3cret-pass"

type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Email
}

func (r *recordingSender) Send(_ context.Context, email notify.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, email)
	return nil
}

func (r *recordingSender) emails() []notify.Email {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Email(nil), r.sent...)
}

type fixture struct {
	store        *repotest.Store
	dispatcher   events.Dispatcher
	published    *[]events.Event
	email        *recordingSender
	metrics      *observability.Metrics
	redis        *miniredis.Miniredis
	applications *ApplicationService
	messages     *MessageService
	auth         *AuthService

	owner    *domain.User
	stranger *domain.User
	manager  *domain.User
	admin    *domain.User
	app      *domain.Application
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := repotest.NewStore()
	dispatcher := events.NewInMemoryDispatcher()
	published := &[]events.Event{}
	for _, et := range []events.EventType{
		events.EventApplicationSubmitted,
		events.EventApplicationStatusChanged,
		events.EventMessagePosted,
		events.EventPasswordResetRequested,
	} {
		dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			*published = append(*published, e)
			return nil
		})
	}
	email := &recordingSender{}
	NewNotificationService(dispatcher, logger, email, nil).RegisterHandlers()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Config{Auth: config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 60,
		BcryptCost:            bcrypt.MinCost,
		ResetCodeTTLMinutes:   15,
		ResetCodeLength:       6,
		MaxAttempts:           3,
		AttemptWindowMinutes:  15,
	}}
	metrics := observability.NewMetrics()

	f := &fixture{
		store:      store,
		dispatcher: dispatcher,
		published:  published,
		email:      email,
		metrics:    metrics,
		redis:      mr,
		applications: NewApplicationService(ApplicationDependencies{
			ApplicationRepo: store.Applications(),
			HistoryRepo:     store.StatusHistory(),
			UserRepo:        store.Users(),
			LookupRepo:      store.Lookups(),
			Dispatcher:      dispatcher,
			Metrics:         metrics,
			Logger:          logger,
			BcryptCost:      bcrypt.MinCost,
		}),
		messages: NewMessageService(MessageDependencies{
			ApplicationRepo: store.Applications(),
			MessageRepo:     store.MessageStore(),
			UserRepo:        store.Users(),
			Dispatcher:      dispatcher,
			Metrics:         metrics,
			Logger:          logger,
		}),
		auth: NewAuthService(cfg, AuthDependencies{
			UserRepo:          store.Users(),
			ApplicationRepo:   store.Applications(),
			PasswordResetRepo: store.PasswordResets(),
			Limiter:           auth.NewAttemptLimiter(client, cfg.Auth.MaxAttempts, cfg.Auth.AttemptWindow()),
			Dispatcher:        dispatcher,
			Logger:            logger,
		}),
	}

	f.owner = f.addUser(t, "Ada", "ada@example.com", "+491511111111", domain.RoleClient)
	f.stranger = f.addUser(t, "Eve", "eve@example.com", "+491512222222", domain.RoleClient)
	f.manager = f.addUser(t, "Max", "max@agency.example", "+491513333333", domain.RoleManager)
	f.admin = f.addUser(t, "Alex", "alex@agency.example", "+491514444444", domain.RoleAdmin)
	f.app = store.AddApplication(f.owner.ID, domain.StatusNew)
	return f
}

func (f *fixture) addUser(t *testing.T, first, email, phone string, role domain.Role) *domain.User {
	t.Helper()
	hash, err := auth.HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(t, err)
	return f.store.AddUser(domain.User{
		FirstName:    first,
		LastName:     "Test",
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	})
}

func (f *fixture) eventsOf(eventType events.EventType) []events.Event {
	var out []events.Event
	for _, e := range *f.published {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr), "expected DomainError, got %T: %v", err, err)
	assert.Equal(t, code, domainErr.Code, domainErr.Message)
}

func detailsOf(t *testing.T, err error) map[string]any {
	t.Helper()
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr))
	return domainErr.Details
}

