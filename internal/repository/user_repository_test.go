package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medconcierge/intake-service/internal/domain"
)

func TestGetByEmailIsCaseInsensitive(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE LOWER(email)=LOWER($1)")).
		WithArgs("Ada@Example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "Ada@Example.com")
	assert.True(t, errors.Is(err, pgx.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePasswordMissingUser(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET password_hash")).
		WithArgs("hash", "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdatePassword(context.Background(), "user-1", "hash")
	assert.True(t, errors.Is(err, pgx.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsersFiltersByRoleAndActive(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	active := true

	mock.ExpectQuery(regexp.QuoteMeta("WHERE role = ANY($1) AND is_active=$2 ORDER BY created_at DESC LIMIT 50 OFFSET 0")).
		WithArgs([]string{"MANAGER", "ADMIN"}, true).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	users, err := repo.List(context.Background(), UserFilter{Roles: domain.StaffRoles(), Active: &active})
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupRejectsUnknownKind(t *testing.T) {
	mock := newMock(t)
	repo := NewLookupRepository(mock)

	_, err := repo.ListActive(context.Background(), domain.LookupKind("users; DROP TABLE users"))
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupCountActive(t *testing.T) {
	mock := newMock(t)
	repo := NewLookupRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM services WHERE is_active")).
		WithArgs([]string{"svc-1", "svc-2"}).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	n, err := repo.CountActive(context.Background(), domain.LookupService, []string{"svc-1", "svc-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
