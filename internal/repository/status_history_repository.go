package repository

import (
	"context"

	"github.com/medconcierge/intake-service/internal/domain"
)

// StatusHistoryRepository reads the status audit trail. Rows are written only
// by ApplicationRepository.UpdateStatus.
type StatusHistoryRepository interface {
	ListByApplication(ctx context.Context, applicationID string) ([]domain.ApplicationStatusHistory, error)
}

type statusHistoryRepository struct {
	db DB
}

// NewStatusHistoryRepository builds repository.
func NewStatusHistoryRepository(db DB) StatusHistoryRepository {
	return &statusHistoryRepository{db: db}
}

func (r *statusHistoryRepository) ListByApplication(ctx context.Context, applicationID string) ([]domain.ApplicationStatusHistory, error) {
	const query = `
        SELECT id, application_id, old_status, new_status, changed_by, comment, created_at
        FROM application_status_history WHERE application_id=$1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.ApplicationStatusHistory{}
	for rows.Next() {
		var history domain.ApplicationStatusHistory
		if err := rows.Scan(
			&history.ID,
			&history.ApplicationID,
			&history.OldStatus,
			&history.NewStatus,
			&history.ChangedBy,
			&history.Comment,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
