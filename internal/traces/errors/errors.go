package errors

import "errors"

var ErrRunNotFound = errors.New("resolution run not found")
