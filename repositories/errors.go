package repositories

import "errors"

// Storage-level errors. Adapters translate driver errors into these so the
// service layer never inspects driver types.
var (
	ErrNotFound    = errors.New("record not found")
	ErrDuplicate   = errors.New("unique constraint violated")
	ErrForeignKey  = errors.New("foreign key constraint violated")
	ErrInvalidData = errors.New("invalid data for column")
)
