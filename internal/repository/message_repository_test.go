package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medconcierge/intake-service/internal/domain"
)

func TestMarkReadTargetsCounterpartRoles(t *testing.T) {
	mock := newMock(t)
	repo := NewMessageRepository(mock)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE messages SET is_read=TRUE")).
		WithArgs("app-1", []string{"MANAGER", "ADMIN"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := repo.MarkRead(context.Background(), "app-1", domain.CounterpartRoles(domain.RoleClient))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnreadCountsGroupsByApplication(t *testing.T) {
	mock := newMock(t)
	repo := NewMessageRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY application_id")).
		WithArgs(domain.RoleClient).
		WillReturnRows(pgxmock.NewRows([]string{"application_id", "count"}).
			AddRow("app-1", 3).
			AddRow("app-2", 1))

	counts, err := repo.UnreadCounts(context.Background(), domain.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"app-1": 3, "app-2": 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMessageReturnsSender(t *testing.T) {
	mock := newMock(t)
	repo := NewMessageRepository(mock)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO messages")).
		WithArgs("app-1", "user-1", domain.RoleClient, "hello").
		WillReturnRows(pgxmock.NewRows([]string{"id", "is_read", "created_at", "first_name", "last_name", "role"}).
			AddRow("msg-1", false, now, "Ada", "Client", domain.RoleClient))

	msg := &domain.Message{ApplicationID: "app-1", SenderID: "user-1", SenderRole: domain.RoleClient, Content: "hello"}
	require.NoError(t, repo.Create(context.Background(), msg))
	assert.Equal(t, "msg-1", msg.ID)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "user-1", msg.Sender.ID)
	assert.Equal(t, "Ada", msg.Sender.FirstName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByApplicationOrdersAscending(t *testing.T) {
	mock := newMock(t)
	repo := NewMessageRepository(mock)
	t0 := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY m.created_at ASC")).
		WithArgs("app-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "application_id", "sender_id", "sender_role", "content", "is_read", "created_at", "first_name", "last_name", "role"}).
			AddRow("msg-1", "app-1", "user-1", domain.RoleClient, "first", true, t0, "Ada", "Client", domain.RoleClient).
			AddRow("msg-2", "app-1", "staff-1", domain.RoleManager, "second", false, t0.Add(time.Minute), "Max", "Manager", domain.RoleManager))

	msgs, err := repo.ListByApplication(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "msg-1", msgs[0].ID)
	assert.Equal(t, "staff-1", msgs[1].Sender.ID)
	assert.Equal(t, domain.RoleManager, msgs[1].Sender.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}
