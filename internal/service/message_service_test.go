package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medconcierge/intake-service/internal/domain"
	"github.com/medconcierge/intake-service/internal/events"
	apperrors "github.com/medconcierge/intake-service/pkg/util/errorutil"
)

func TestPostMessageAsOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.messages.Post(ctx, f.owner.Actor(), f.app.ID, "  When can I travel?  ")
	require.NoError(t, err)

	assert.Equal(t, "When can I travel?", msg.Content)
	assert.Equal(t, domain.RoleClient, msg.SenderRole)
	assert.False(t, msg.IsRead)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, f.owner.ID, msg.Sender.ID)
	assert.Equal(t, "Ada", msg.Sender.FirstName)

	posted := f.eventsOf(events.EventMessagePosted)
	require.Len(t, posted, 1)
	assert.Equal(t, f.app.ID, posted[0].ApplicationID)
	assert.Empty(t, f.email.emails(), "client messages do not email the client")
}

func TestPostMessageAsStaffEmailsOwner(t *testing.T) {
	f := newFixture(t)

	msg, err := f.messages.Post(context.Background(), f.manager.Actor(), f.app.ID, "We found a clinic.")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, msg.SenderRole)

	sent := f.email.emails()
	require.Len(t, sent, 1)
	assert.Equal(t, "ada@example.com", sent[0].To)
	assert.Contains(t, sent[0].Body, "We found a clinic.")
}

func TestPostMessageValidatesContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for name, content := range map[string]string{
		"empty":      "",
		"whitespace": " \n\t ",
		"too long":   strings.Repeat("a", domain.MaxMessageLength+1),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.messages.Post(ctx, f.owner.Actor(), f.app.ID, content)
			assertCode(t, err, apperrors.CodeValidation)
			assert.Contains(t, detailsOf(t, err), "content")
		})
	}
	assert.Empty(t, f.store.Messages(f.app.ID))

	t.Run("length counts characters not bytes", func(t *testing.T) {
		_, err := f.messages.Post(ctx, f.owner.Actor(), f.app.ID, strings.Repeat("ü", domain.MaxMessageLength))
		assert.NoError(t, err)
	})
}

func TestMessagingAuthorizationOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missing := "7d3c1f1e-0000-4000-8000-000000000000"

	t.Run("missing application is not found even for strangers", func(t *testing.T) {
		_, err := f.messages.List(ctx, f.stranger.Actor(), missing)
		assertCode(t, err, apperrors.CodeNotFound)
		_, err = f.messages.Post(ctx, f.stranger.Actor(), missing, "")
		assertCode(t, err, apperrors.CodeNotFound)
		_, err = f.messages.MarkRead(ctx, f.stranger.Actor(), missing)
		assertCode(t, err, apperrors.CodeNotFound)
	})

	t.Run("malformed id is not found", func(t *testing.T) {
		_, err := f.messages.List(ctx, f.manager.Actor(), "not-a-uuid")
		assertCode(t, err, apperrors.CodeNotFound)
	})

	t.Run("other client is forbidden before content is checked", func(t *testing.T) {
		_, err := f.messages.List(ctx, f.stranger.Actor(), f.app.ID)
		assertCode(t, err, apperrors.CodeForbidden)
		_, err = f.messages.Post(ctx, f.stranger.Actor(), f.app.ID, "")
		assertCode(t, err, apperrors.CodeForbidden)
		_, err = f.messages.MarkRead(ctx, f.stranger.Actor(), f.app.ID)
		assertCode(t, err, apperrors.CodeForbidden)
	})

	t.Run("staff can act on any application", func(t *testing.T) {
		_, err := f.messages.List(ctx, f.admin.Actor(), f.app.ID)
		assert.NoError(t, err)
	})
}

func TestListMessagesAscendingWithSenders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.messages.Post(ctx, f.owner.Actor(), f.app.ID, "first")
	require.NoError(t, err)
	_, err = f.messages.Post(ctx, f.manager.Actor(), f.app.ID, "second")
	require.NoError(t, err)
	_, err = f.messages.Post(ctx, f.owner.Actor(), f.app.ID, "third")
	require.NoError(t, err)

	msgs, err := f.messages.List(ctx, f.owner.Actor(), f.app.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
	assert.Equal(t, "Max", msgs[1].Sender.FirstName)
	assert.Equal(t, domain.RoleManager, msgs[1].Sender.Role)
}

func TestMarkReadFlipsOnlyCounterpartMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.AddMessage(f.app.ID, f.owner, "client 1", false)
	f.store.AddMessage(f.app.ID, f.owner, "client 2", false)
	f.store.AddMessage(f.app.ID, f.manager, "staff 1", false)
	f.store.AddMessage(f.app.ID, f.admin, "staff 2", false)

	n, err := f.messages.MarkRead(ctx, f.manager.Actor(), f.app.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	for _, m := range f.store.Messages(f.app.ID) {
		assert.Equal(t, m.SenderRole == domain.RoleClient, m.IsRead, m.Content)
	}

	n, err = f.messages.MarkRead(ctx, f.manager.Actor(), f.app.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "second call is a no-op")

	n, err = f.messages.MarkRead(ctx, f.owner.Actor(), f.app.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	for _, m := range f.store.Messages(f.app.ID) {
		assert.True(t, m.IsRead, m.Content)
	}
}

func TestUnreadCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	second := f.store.AddApplication(f.stranger.ID, domain.StatusInReview)
	quiet := f.store.AddApplication(f.owner.ID, domain.StatusNew)

	f.store.AddMessage(f.app.ID, f.owner, "a", false)
	f.store.AddMessage(f.app.ID, f.owner, "b", false)
	f.store.AddMessage(f.app.ID, f.owner, "read", true)
	f.store.AddMessage(f.app.ID, f.manager, "staff", false)
	f.store.AddMessage(second.ID, f.stranger, "c", false)
	f.store.AddMessage(quiet.ID, f.manager, "staff only", false)

	counts, err := f.messages.UnreadCounts(ctx, f.manager.Actor())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{f.app.ID: 2, second.ID: 1}, counts)

	_, err = f.messages.UnreadCounts(ctx, f.owner.Actor())
	assertCode(t, err, apperrors.CodeForbidden)

	_, err = f.messages.MarkRead(ctx, f.admin.Actor(), f.app.ID)
	require.NoError(t, err)
	counts, err = f.messages.UnreadCounts(ctx, f.admin.Actor())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{second.ID: 1}, counts)
}

func TestPostMessagePersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.store.CreateMessageErr = errors.New("connection reset")

	_, err := f.messages.Post(context.Background(), f.owner.Actor(), f.app.ID, "hello")
	assertCode(t, err, apperrors.CodeInternal)
	assert.Empty(t, f.eventsOf(events.EventMessagePosted))
}
