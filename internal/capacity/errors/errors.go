package errors

import "errors"

var (
	ErrPoolNotFound    = errors.New("capacity pool not found")
	ErrDuplicateMember = errors.New("member already belongs to the pool")
)
