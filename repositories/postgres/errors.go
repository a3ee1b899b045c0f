package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/maingoo/auth-service/repositories"
)

// PostgreSQL error codes we classify
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeInvalidTextRep      = "22P02"
	codeStringTooLong       = "22001"
)

// classify translates driver errors into repositories sentinels, keeping the
// original error in the chain.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, repositories.ErrNotFound)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w (%s)", op, repositories.ErrDuplicate, pqErr.Constraint)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w (%s)", op, repositories.ErrForeignKey, pqErr.Constraint)
		case codeNotNullViolation, codeInvalidTextRep, codeStringTooLong:
			return fmt.Errorf("%s: %w (%s)", op, repositories.ErrInvalidData, pqErr.Message)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
