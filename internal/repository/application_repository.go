package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/medconcierge/intake-service/internal/domain"
)

// ApplicationFilter captures list parameters.
type ApplicationFilter struct {
	UserID *string
	Status *domain.ApplicationStatus
	Limit  int
	Offset int
}

// ApplicationRepository encapsulates application persistence.
type ApplicationRepository interface {
	// Create inserts the application and its service selections in one
	// transaction. When newOwner is non-nil it is inserted first and becomes
	// the application's owner.
	Create(ctx context.Context, app *domain.Application, serviceIDs []string, newOwner *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.Application, error)
	GetDetail(ctx context.Context, id string) (*domain.ApplicationDetail, error)
	List(ctx context.Context, filter ApplicationFilter) ([]domain.ApplicationDetail, error)
	HasStatus(ctx context.Context, userID string, status domain.ApplicationStatus) (bool, error)
	// UpdateStatus locks the row, changes the status and appends the history
	// entry atomically. It returns pgx.ErrNoRows when the application is missing.
	UpdateStatus(ctx context.Context, id string, newStatus domain.ApplicationStatus, changedBy string, comment *string) (*domain.ApplicationStatusHistory, error)
}

type applicationRepository struct {
	db DB
}

// NewApplicationRepository instantiates repository.
func NewApplicationRepository(db DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

const (
	insertApplicationQuery = `
        INSERT INTO applications (user_id, status, location_id, insurance_id, travel_ability_id, notes)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	insertApplicationServicesQuery = `
        INSERT INTO application_services (application_id, service_id)
        SELECT $1, UNNEST($2::uuid[])`
	lockApplicationStatusQuery = `SELECT status FROM applications WHERE id=$1 FOR UPDATE`
	updateApplicationStatusQuery = `UPDATE applications SET status=$1, updated_at=NOW() WHERE id=$2`
	insertStatusHistoryQuery = `
        INSERT INTO application_status_history (application_id, old_status, new_status, changed_by, comment)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
)

const applicationDetailSelect = `
        SELECT a.id, a.user_id, a.status, a.location_id, a.insurance_id, a.travel_ability_id, a.notes,
               a.created_at, a.updated_at,
               u.first_name, u.last_name, u.email, u.phone,
               l.code, l.name, l.is_active,
               i.code, i.name, i.is_active,
               t.code, t.name, t.is_active
        FROM applications a
        JOIN users u ON u.id = a.user_id
        JOIN locations l ON l.id = a.location_id
        JOIN insurances i ON i.id = a.insurance_id
        JOIN travel_abilities t ON t.id = a.travel_ability_id`

func (r *applicationRepository) Create(ctx context.Context, app *domain.Application, serviceIDs []string, newOwner *domain.User) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if newOwner != nil {
		if err = insertUser(ctx, tx, newOwner); err != nil {
			return err
		}
		app.UserID = newOwner.ID
	}

	if err = tx.QueryRow(ctx, insertApplicationQuery,
		app.UserID,
		app.Status,
		app.LocationID,
		app.InsuranceID,
		app.TravelAbilityID,
		app.Notes,
	).Scan(&app.ID, &app.CreatedAt, &app.UpdatedAt); err != nil {
		return err
	}

	if _, err = tx.Exec(ctx, insertApplicationServicesQuery, app.ID, serviceIDs); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *applicationRepository) GetByID(ctx context.Context, id string) (*domain.Application, error) {
	const query = `
        SELECT id, user_id, status, location_id, insurance_id, travel_ability_id, notes, created_at, updated_at
        FROM applications WHERE id=$1`
	var app domain.Application
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&app.ID,
		&app.UserID,
		&app.Status,
		&app.LocationID,
		&app.InsuranceID,
		&app.TravelAbilityID,
		&app.Notes,
		&app.CreatedAt,
		&app.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *applicationRepository) GetDetail(ctx context.Context, id string) (*domain.ApplicationDetail, error) {
	detail, err := scanApplicationDetail(r.db.QueryRow(ctx, applicationDetailSelect+` WHERE a.id=$1`, id))
	if err != nil {
		return nil, err
	}

	const servicesQuery = `
        SELECT s.id, s.code, s.name, s.is_active
        FROM application_services aps
        JOIN services s ON s.id = aps.service_id
        WHERE aps.application_id=$1
        ORDER BY s.name`
	rows, err := r.db.Query(ctx, servicesQuery, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	detail.Services = []domain.Lookup{}
	for rows.Next() {
		var svc domain.Lookup
		if err := rows.Scan(&svc.ID, &svc.Code, &svc.Name, &svc.IsActive); err != nil {
			return nil, err
		}
		detail.Services = append(detail.Services, svc)
	}
	return detail, rows.Err()
}

func (r *applicationRepository) List(ctx context.Context, filter ApplicationFilter) ([]domain.ApplicationDetail, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("a.user_id=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("a.status=$%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY a.created_at DESC LIMIT %d OFFSET %d`,
		applicationDetailSelect, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.ApplicationDetail{}
	for rows.Next() {
		detail, err := scanApplicationDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *detail)
	}
	return result, rows.Err()
}

func (r *applicationRepository) HasStatus(ctx context.Context, userID string, status domain.ApplicationStatus) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM applications WHERE user_id=$1 AND status=$2)`
	var exists bool
	err := r.db.QueryRow(ctx, query, userID, status).Scan(&exists)
	return exists, err
}

func (r *applicationRepository) UpdateStatus(ctx context.Context, id string, newStatus domain.ApplicationStatus, changedBy string, comment *string) (history *domain.ApplicationStatusHistory, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var oldStatus domain.ApplicationStatus
	if err = tx.QueryRow(ctx, lockApplicationStatusQuery, id).Scan(&oldStatus); err != nil {
		return nil, err
	}
	if _, err = tx.Exec(ctx, updateApplicationStatusQuery, newStatus, id); err != nil {
		return nil, err
	}

	history = &domain.ApplicationStatusHistory{
		ApplicationID: id,
		OldStatus:     oldStatus,
		NewStatus:     newStatus,
		ChangedBy:     changedBy,
		Comment:       comment,
	}
	if err = tx.QueryRow(ctx, insertStatusHistoryQuery,
		history.ApplicationID,
		history.OldStatus,
		history.NewStatus,
		history.ChangedBy,
		history.Comment,
	).Scan(&history.ID, &history.CreatedAt); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return history, nil
}

func scanApplicationDetail(row pgx.Row) (*domain.ApplicationDetail, error) {
	var d domain.ApplicationDetail
	if err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Status,
		&d.LocationID,
		&d.InsuranceID,
		&d.TravelAbilityID,
		&d.Notes,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.Owner.FirstName,
		&d.Owner.LastName,
		&d.Owner.Email,
		&d.Owner.Phone,
		&d.Location.Code,
		&d.Location.Name,
		&d.Location.IsActive,
		&d.Insurance.Code,
		&d.Insurance.Name,
		&d.Insurance.IsActive,
		&d.TravelAbility.Code,
		&d.TravelAbility.Name,
		&d.TravelAbility.IsActive,
	); err != nil {
		return nil, err
	}
	d.Owner.ID = d.UserID
	d.Location.ID = d.LocationID
	d.Insurance.ID = d.InsuranceID
	d.TravelAbility.ID = d.TravelAbilityID
	return &d, nil
}
