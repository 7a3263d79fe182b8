package errors

import "errors"

var (
	ErrHoldNotFound = errors.New("capacity hold not found")

	ErrDuplicateRequestKey = errors.New("a hold with this request key already exists")

	// ErrVersionConflict means the conditional write matched no active hold at the expected version.
	ErrVersionConflict = errors.New("capacity hold was modified concurrently")

	ErrPolicyNotFound = errors.New("capacity hold policy not found")

	ErrActivePolicyExists = errors.New("scope already has an active hold policy")
)
