package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/medconcierge/intake-service/internal/domain"
)

// MessageRepository manages application thread messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListByApplication(ctx context.Context, applicationID string) ([]domain.Message, error)
	// MarkRead flags every unread message in the thread authored by one of
	// senderRoles and returns the number of rows changed.
	MarkRead(ctx context.Context, applicationID string, senderRoles []domain.Role) (int64, error)
	// UnreadCounts groups unread messages authored by senderRole per application.
	UnreadCounts(ctx context.Context, senderRole domain.Role) (map[string]int, error)
}

type messageRepository struct {
	db DB
}

// NewMessageRepository builds repository.
func NewMessageRepository(db DB) MessageRepository {
	return &messageRepository{db: db}
}

// Create inserts the message and fills in its id, timestamps and sender identity.
func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        WITH inserted AS (
            INSERT INTO messages (application_id, sender_id, sender_role, content)
            VALUES ($1,$2,$3,$4)
            RETURNING id, is_read, created_at, sender_id
        )
        SELECT i.id, i.is_read, i.created_at, u.first_name, u.last_name, u.role
        FROM inserted i JOIN users u ON u.id = i.sender_id`
	sender := &domain.MessageSender{ID: msg.SenderID}
	if err := r.db.QueryRow(ctx, query,
		msg.ApplicationID,
		msg.SenderID,
		msg.SenderRole,
		msg.Content,
	).Scan(&msg.ID, &msg.IsRead, &msg.CreatedAt, &sender.FirstName, &sender.LastName, &sender.Role); err != nil {
		return err
	}
	msg.Sender = sender
	return nil
}

func (r *messageRepository) ListByApplication(ctx context.Context, applicationID string) ([]domain.Message, error) {
	const query = `
        SELECT m.id, m.application_id, m.sender_id, m.sender_role, m.content, m.is_read, m.created_at,
               u.first_name, u.last_name, u.role
        FROM messages m JOIN users u ON u.id = m.sender_id
        WHERE m.application_id=$1 ORDER BY m.created_at ASC, m.id ASC`
	rows, err := r.db.Query(ctx, query, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *messageRepository) MarkRead(ctx context.Context, applicationID string, senderRoles []domain.Role) (int64, error) {
	const query = `
        UPDATE messages SET is_read=TRUE
        WHERE application_id=$1 AND is_read=FALSE AND sender_role = ANY($2)`
	cmd, err := r.db.Exec(ctx, query, applicationID, rolesToStrings(senderRoles))
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *messageRepository) UnreadCounts(ctx context.Context, senderRole domain.Role) (map[string]int, error) {
	const query = `
        SELECT application_id, COUNT(*)
        FROM messages WHERE sender_role=$1 AND is_read=FALSE
        GROUP BY application_id`
	rows, err := r.db.Query(ctx, query, senderRole)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			appID string
			count int
		)
		if err := rows.Scan(&appID, &count); err != nil {
			return nil, err
		}
		counts[appID] = count
	}
	return counts, rows.Err()
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	result := []domain.Message{}
	for rows.Next() {
		var (
			msg    domain.Message
			sender domain.MessageSender
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.ApplicationID,
			&msg.SenderID,
			&msg.SenderRole,
			&msg.Content,
			&msg.IsRead,
			&msg.CreatedAt,
			&sender.FirstName,
			&sender.LastName,
			&sender.Role,
		); err != nil {
			return nil, err
		}
		sender.ID = msg.SenderID
		msg.Sender = &sender
		result = append(result, msg)
	}
	return result, rows.Err()
}
