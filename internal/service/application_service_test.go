package service

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medconcierge/intake-service/internal/auth"
	"github.com/medconcierge/intake-service/internal/domain"
	"github.com/medconcierge/intake-service/internal/events"
	apperrors "github.com/medconcierge/intake-service/pkg/util/errorutil"
)

func strPtr(s string) *string { return &s }

func TestUpdateStatusRecordsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	detail, err := f.applications.UpdateStatus(ctx, f.manager.Actor(), f.app.ID, UpdateStatusInput{
		Status:  domain.StatusInReview,
		Comment: strPtr("  looking into it "),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInReview, detail.Status)
	assert.Equal(t, f.owner.ID, detail.Owner.ID)
	assert.Equal(t, "Berlin", detail.Location.Name)
	require.Len(t, detail.Services, 1)

	history := f.store.History(f.app.ID)
	require.Len(t, history, 1)
	assert.Equal(t, domain.StatusNew, history[0].OldStatus)
	assert.Equal(t, domain.StatusInReview, history[0].NewStatus)
	assert.Equal(t, f.manager.ID, history[0].ChangedBy)
	require.NotNil(t, history[0].Comment)
	assert.Equal(t, "looking into it", *history[0].Comment)

	_, err = f.applications.UpdateStatus(ctx, f.admin.Actor(), f.app.ID, UpdateStatusInput{Status: domain.StatusCompleted})
	require.NoError(t, err)
	history = f.store.History(f.app.ID)
	require.Len(t, history, 2)
	assert.Equal(t, domain.StatusInReview, history[1].OldStatus, "old status chains from the previous change")
	assert.Nil(t, history[1].Comment)

	changed := f.eventsOf(events.EventApplicationStatusChanged)
	require.Len(t, changed, 2)
	sent := f.email.emails()
	require.Len(t, sent, 2)
	assert.Equal(t, "ada@example.com", sent[0].To)
}

func TestUpdateStatusSameStatusStillRecorded(t *testing.T) {
	f := newFixture(t)

	_, err := f.applications.UpdateStatus(context.Background(), f.manager.Actor(), f.app.ID, UpdateStatusInput{Status: domain.StatusNew})
	require.NoError(t, err)
	history := f.store.History(f.app.ID)
	require.Len(t, history, 1)
	assert.Equal(t, history[0].OldStatus, history[0].NewStatus)
}

func TestUpdateStatusCheckOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missing := "7d3c1f1e-0000-4000-8000-000000000000"

	t.Run("client is forbidden whatever the payload", func(t *testing.T) {
		_, err := f.applications.UpdateStatus(ctx, f.owner.Actor(), f.app.ID, UpdateStatusInput{Status: domain.StatusCompleted})
		assertCode(t, err, apperrors.CodeForbidden)
		_, err = f.applications.UpdateStatus(ctx, f.owner.Actor(), missing, UpdateStatusInput{Status: "DONE"})
		assertCode(t, err, apperrors.CodeForbidden)
	})

	t.Run("invalid status is a validation error with field details", func(t *testing.T) {
		_, err := f.applications.UpdateStatus(ctx, f.manager.Actor(), missing, UpdateStatusInput{Status: "DONE"})
		assertCode(t, err, apperrors.CodeValidation)
		assert.Contains(t, detailsOf(t, err), "status")

		_, err = f.applications.UpdateStatus(ctx, f.manager.Actor(), f.app.ID, UpdateStatusInput{})
		assertCode(t, err, apperrors.CodeValidation)
	})

	t.Run("missing application", func(t *testing.T) {
		_, err := f.applications.UpdateStatus(ctx, f.manager.Actor(), missing, UpdateStatusInput{Status: domain.StatusContacted})
		assertCode(t, err, apperrors.CodeNotFound)
	})

	assert.Empty(t, f.store.History(f.app.ID))
	assert.Equal(t, domain.StatusNew, f.store.Application(f.app.ID).Status)
}

func TestUpdateStatusPersistenceFailureLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.store.UpdateStatusErr = errors.New("deadlock detected")

	_, err := f.applications.UpdateStatus(context.Background(), f.manager.Actor(), f.app.ID, UpdateStatusInput{Status: domain.StatusCancelled})
	assertCode(t, err, apperrors.CodeInternal)
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "internal server error", domainErr.Message)

	assert.Equal(t, domain.StatusNew, f.store.Application(f.app.ID).Status)
	assert.Empty(t, f.store.History(f.app.ID))
	assert.Empty(t, f.eventsOf(events.EventApplicationStatusChanged))
}

func TestUpdateStatusReloadFailureKeepsCommittedChange(t *testing.T) {
	f := newFixture(t)
	f.store.GetDetailErr = errors.New("connection reset")

	_, err := f.applications.UpdateStatus(context.Background(), f.manager.Actor(), f.app.ID, UpdateStatusInput{Status: domain.StatusContacted})
	assertCode(t, err, apperrors.CodeInternal)

	assert.Equal(t, domain.StatusContacted, f.store.Application(f.app.ID).Status)
	history := f.store.History(f.app.ID)
	require.Len(t, history, 1)
	assert.Equal(t, domain.StatusNew, history[0].OldStatus)
	assert.Empty(t, f.eventsOf(events.EventApplicationStatusChanged))
}

func TestUpdateStatusRecordsMetric(t *testing.T) {
	f := newFixture(t)

	_, err := f.applications.UpdateStatus(context.Background(), f.manager.Actor(), f.app.ID, UpdateStatusInput{Status: domain.StatusContacted})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `concierge_status_transitions_total{status="CONTACTED"} 1`)
}

func TestGetApplicationAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.applications.UpdateStatus(ctx, f.manager.Actor(), f.app.ID, UpdateStatusInput{Status: domain.StatusInReview})
	require.NoError(t, err)

	detail, err := f.applications.Get(ctx, f.owner.Actor(), f.app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInReview, detail.Status)

	_, err = f.applications.Get(ctx, f.stranger.Actor(), f.app.ID)
	assertCode(t, err, apperrors.CodeForbidden)

	history, err := f.applications.ListHistory(ctx, f.owner.Actor(), f.app.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)

	_, err = f.applications.ListHistory(ctx, f.stranger.Actor(), f.app.ID)
	assertCode(t, err, apperrors.CodeForbidden)
}

func TestListApplicationsScopesClients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.store.AddApplication(f.stranger.ID, domain.StatusCompleted)

	own, err := f.applications.List(ctx, f.owner.Actor(), ListApplicationsInput{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, f.app.ID, own[0].ID)

	all, err := f.applications.List(ctx, f.manager.Actor(), ListApplicationsInput{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	completed := domain.StatusCompleted
	filtered, err := f.applications.List(ctx, f.manager.Actor(), ListApplicationsInput{Status: &completed})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, other.ID, filtered[0].ID)

	bogus := domain.ApplicationStatus("LOST")
	_, err = f.applications.List(ctx, f.manager.Actor(), ListApplicationsInput{Status: &bogus})
	assertCode(t, err, apperrors.CodeValidation)
}

func submitInput(f *fixture) SubmitApplicationInput {
	app := f.store.Application(f.app.ID)
	detail, _ := f.store.Applications().GetDetail(context.Background(), app.ID)
	return SubmitApplicationInput{
		FirstName:       "Nina",
		LastName:        "Lead",
		Email:           "Nina.Lead@Example.com",
		Phone:           "+49 151 5555 5555",
		Password:        "long-enough",
		LocationID:      app.LocationID,
		InsuranceID:     app.InsuranceID,
		TravelAbilityID: app.TravelAbilityID,
		ServiceIDs:      []string{detail.Services[0].ID, detail.Services[0].ID},
		Notes:           "Second opinion needed",
	}
}

func TestSubmitCreatesClientAndApplication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	detail, err := f.applications.Submit(ctx, submitInput(f))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, detail.Status)
	assert.Equal(t, "nina.lead@example.com", detail.Owner.Email)
	assert.Equal(t, "+4915155555555", detail.Owner.Phone)
	assert.Len(t, detail.Services, 1, "duplicate service ids collapse")

	owner := f.store.User(detail.UserID)
	require.NotNil(t, owner)
	assert.Equal(t, domain.RoleClient, owner.Role)
	assert.NoError(t, auth.ComparePassword(owner.PasswordHash, "long-enough"))

	submitted := f.eventsOf(events.EventApplicationSubmitted)
	require.Len(t, submitted, 1)
	assert.True(t, submitted[0].Payload.(events.ApplicationSubmittedPayload).NewAccount)

	t.Run("same client with the right password reuses the account", func(t *testing.T) {
		again, err := f.applications.Submit(ctx, submitInput(f))
		require.NoError(t, err)
		assert.Equal(t, detail.UserID, again.UserID)
		assert.NotEqual(t, detail.ID, again.ID)
	})

	t.Run("wrong password conflicts", func(t *testing.T) {
		in := submitInput(f)
		in.Password = "another-pass"
		_, err := f.applications.Submit(ctx, in)
		assertCode(t, err, apperrors.CodeConflict)
	})

	t.Run("staff email conflicts", func(t *testing.T) {
		in := submitInput(f)
		in.Email = f.manager.Email
		in.Password = testPassword
		_, err := f.applications.Submit(ctx, in)
		assertCode(t, err, apperrors.CodeConflict)
	})

	t.Run("phone taken by another account conflicts", func(t *testing.T) {
		in := submitInput(f)
		in.Email = "new@example.com"
		in.Phone = f.owner.Phone
		_, err := f.applications.Submit(ctx, in)
		assertCode(t, err, apperrors.CodeConflict)
	})
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := submitInput(f)
	in.Email = "not-an-email"
	in.Password = "short"
	in.ServiceIDs = nil
	_, err := f.applications.Submit(ctx, in)
	assertCode(t, err, apperrors.CodeValidation)
	details := detailsOf(t, err)
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")
	assert.Contains(t, details, "serviceIds")

	in = submitInput(f)
	in.LocationID = "7d3c1f1e-0000-4000-8000-000000000000"
	_, err = f.applications.Submit(ctx, in)
	assertCode(t, err, apperrors.CodeValidation)
	assert.Equal(t, "references an unknown or inactive option", detailsOf(t, err)["locationId"])
}

func TestLookups(t *testing.T) {
	f := newFixture(t)
	f.store.AddLookup(domain.LookupService, domain.Lookup{Code: "retired", Name: "Retired", IsActive: false})

	lookups, err := f.applications.Lookups(context.Background())
	require.NoError(t, err)
	assert.Len(t, lookups.Locations, 1)
	assert.Len(t, lookups.Services, 1)
	assert.Len(t, lookups.Insurances, 1)
	assert.Len(t, lookups.TravelAbilities, 1)
}
