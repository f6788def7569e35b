package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medconcierge/intake-service/internal/domain"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestUpdateStatusCommitsStatusAndHistory(t *testing.T) {
	mock := newMock(t)
	repo := NewApplicationRepository(mock)
	comment := "called the client"
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockApplicationStatusQuery)).
		WithArgs("app-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(domain.StatusInReview))
	mock.ExpectExec(regexp.QuoteMeta(updateApplicationStatusQuery)).
		WithArgs(domain.StatusContacted, "app-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO application_status_history")).
		WithArgs("app-1", domain.StatusInReview, domain.StatusContacted, "staff-1", &comment).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow("hist-1", now))
	mock.ExpectCommit()

	history, err := repo.UpdateStatus(context.Background(), "app-1", domain.StatusContacted, "staff-1", &comment)
	require.NoError(t, err)
	assert.Equal(t, "hist-1", history.ID)
	assert.Equal(t, domain.StatusInReview, history.OldStatus)
	assert.Equal(t, domain.StatusContacted, history.NewStatus)
	assert.Equal(t, now, history.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusMissingApplicationRollsBack(t *testing.T) {
	mock := newMock(t)
	repo := NewApplicationRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockApplicationStatusQuery)).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.UpdateStatus(context.Background(), "missing", domain.StatusCompleted, "staff-1", nil)
	assert.True(t, errors.Is(err, pgx.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusHistoryFailureRollsBack(t *testing.T) {
	mock := newMock(t)
	repo := NewApplicationRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockApplicationStatusQuery)).
		WithArgs("app-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(domain.StatusNew))
	mock.ExpectExec(regexp.QuoteMeta(updateApplicationStatusQuery)).
		WithArgs(domain.StatusCancelled, "app-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO application_status_history")).
		WithArgs("app-1", domain.StatusNew, domain.StatusCancelled, "staff-1", (*string)(nil)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	history, err := repo.UpdateStatus(context.Background(), "app-1", domain.StatusCancelled, "staff-1", nil)
	assert.Error(t, err)
	assert.Nil(t, history)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInsertsOwnerApplicationAndServices(t *testing.T) {
	mock := newMock(t)
	repo := NewApplicationRepository(mock)
	now := time.Now()

	owner := &domain.User{FirstName: "Ada", LastName: "Client", Email: "ada@example.com", Phone: "+4915112345678", PasswordHash: "hash", Role: domain.RoleClient, IsActive: true}
	app := &domain.Application{Status: domain.StatusNew, LocationID: "loc-1", InsuranceID: "ins-1", TravelAbilityID: "tr-1"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("Ada", "Client", "ada@example.com", "+4915112345678", "hash", domain.RoleClient, true).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("user-1", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO applications")).
		WithArgs("user-1", domain.StatusNew, "loc-1", "ins-1", "tr-1", "").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("app-1", now, now))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO application_services")).
		WithArgs("app-1", []string{"svc-1", "svc-2"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	err := repo.Create(context.Background(), app, []string{"svc-1", "svc-2"}, owner)
	require.NoError(t, err)
	assert.Equal(t, "user-1", owner.ID)
	assert.Equal(t, "user-1", app.UserID)
	assert.Equal(t, "app-1", app.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRollsBackWhenServicesFail(t *testing.T) {
	mock := newMock(t)
	repo := NewApplicationRepository(mock)
	now := time.Now()
	app := &domain.Application{UserID: "user-1", Status: domain.StatusNew}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO applications")).
		WithArgs("user-1", domain.StatusNew, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("app-1", now, now))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO application_services")).
		WithArgs("app-1", []string{"svc-x"}).
		WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), app, []string{"svc-x"}, nil)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAppliesFilters(t *testing.T) {
	mock := newMock(t)
	repo := NewApplicationRepository(mock)
	userID := "user-1"
	status := domain.StatusNew

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND a.user_id=$1 AND a.status=$2 ORDER BY a.created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs(userID, status).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	result, err := repo.List(context.Background(), ApplicationFilter{UserID: &userID, Status: &status})
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasStatus(t *testing.T) {
	mock := newMock(t)
	repo := NewApplicationRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("user-1", domain.StatusCompleted).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.HasStatus(context.Background(), "user-1", domain.StatusCompleted)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
