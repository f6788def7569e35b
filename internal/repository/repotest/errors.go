package repotest

import "github.com/jackc/pgx/v5/pgconn"

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

func foreignKeyViolation() error {
	return &pgconn.PgError{Code: "23503", Message: "insert or update violates foreign key constraint"}
}
