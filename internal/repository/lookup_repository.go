package repository

import (
	"context"
	"fmt"

	"github.com/medconcierge/intake-service/internal/domain"
)

// LookupRepository reads the intake form's reference lists.
type LookupRepository interface {
	ListActive(ctx context.Context, kind domain.LookupKind) ([]domain.Lookup, error)
	CountActive(ctx context.Context, kind domain.LookupKind, ids []string) (int, error)
}

type lookupRepository struct {
	db DB
}

// NewLookupRepository builds repository.
func NewLookupRepository(db DB) LookupRepository {
	return &lookupRepository{db: db}
}

// table names come from a closed set, never from input.
func lookupTable(kind domain.LookupKind) (string, error) {
	switch kind {
	case domain.LookupLocation, domain.LookupInsurance, domain.LookupService, domain.LookupTravelAbility:
		return string(kind), nil
	}
	return "", fmt.Errorf("unknown lookup kind %q", kind)
}

func (r *lookupRepository) ListActive(ctx context.Context, kind domain.LookupKind) ([]domain.Lookup, error) {
	table, err := lookupTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT id, code, name, is_active FROM %s WHERE is_active ORDER BY name`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Lookup{}
	for rows.Next() {
		var l domain.Lookup
		if err := rows.Scan(&l.ID, &l.Code, &l.Name, &l.IsActive); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (r *lookupRepository) CountActive(ctx context.Context, kind domain.LookupKind, ids []string) (int, error) {
	table, err := lookupTable(kind)
	if err != nil {
		return 0, err
	}
	var count int
	err = r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE is_active AND id = ANY($1::uuid[])`, table),
		ids,
	).Scan(&count)
	return count, err
}
