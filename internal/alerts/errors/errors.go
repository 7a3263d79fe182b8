package errors

import "errors"

var ErrAlertNotFound = errors.New("demand alert not found")
