package repo

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate")
	ErrNotDeletable      = errors.New("only pending entries can be deleted")
	ErrInvalidTransition = errors.New("invalid status transition")
)
