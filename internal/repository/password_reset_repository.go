package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/medconcierge/intake-service/internal/domain"
)

// PasswordResetRepository manages password reset code persistence.
type PasswordResetRepository interface {
	Create(ctx context.Context, code *domain.PasswordResetCode) error
	GetLatestForUser(ctx context.Context, userID string) (*domain.PasswordResetCode, error)
	Redeem(ctx context.Context, codeID, userID, passwordHash string) error
}

type passwordResetRepository struct {
	db DB
}

// NewPasswordResetRepository constructs repository.
func NewPasswordResetRepository(db DB) PasswordResetRepository {
	return &passwordResetRepository{db: db}
}

func (r *passwordResetRepository) Create(ctx context.Context, code *domain.PasswordResetCode) error {
	const query = `
        INSERT INTO password_reset_codes (user_id, code, expires_at)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		code.UserID,
		code.Code,
		code.ExpiresAt,
	).Scan(&code.ID, &code.CreatedAt)
}

// GetLatestForUser returns the most recently issued code; older codes are superseded.
func (r *passwordResetRepository) GetLatestForUser(ctx context.Context, userID string) (*domain.PasswordResetCode, error) {
	const query = `
        SELECT id, user_id, code, expires_at, used_at, created_at
        FROM password_reset_codes WHERE user_id=$1
        ORDER BY created_at DESC LIMIT 1`
	var code domain.PasswordResetCode
	if err := r.db.QueryRow(ctx, query, userID).Scan(
		&code.ID,
		&code.UserID,
		&code.Code,
		&code.ExpiresAt,
		&code.UsedAt,
		&code.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &code, nil
}

const (
	markResetCodeUsedQuery = `UPDATE password_reset_codes SET used_at=NOW() WHERE id=$1 AND used_at IS NULL`
	updatePasswordQuery    = `UPDATE users SET password_hash=$1, updated_at=NOW() WHERE id=$2`
)

// Redeem marks the code used and stores the new password hash in one
// transaction. A code that is already used, or a missing user, yields
// pgx.ErrNoRows and changes nothing.
func (r *passwordResetRepository) Redeem(ctx context.Context, codeID, userID, passwordHash string) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	cmd, err := tx.Exec(ctx, markResetCodeUsedQuery, codeID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		err = pgx.ErrNoRows
		return err
	}
	if cmd, err = tx.Exec(ctx, updatePasswordQuery, passwordHash, userID); err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		err = pgx.ErrNoRows
		return err
	}
	return tx.Commit(ctx)
}
