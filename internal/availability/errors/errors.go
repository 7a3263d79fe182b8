package errors

import "errors"

var (
	ErrNotFound = errors.New("not found")

	ErrCalendarNotFound = errors.New("calendar not found")

	ErrCalendarArchived = errors.New("calendar is archived")

	ErrVersionConflict = errors.New("calendar was modified concurrently")

	ErrDuplicatePrimaryBinding = errors.New("owner already has an active primary calendar binding")

	ErrRuleNotFound = errors.New("availability rule not found")

	ErrOverlayNotFound = errors.New("overlay not found")

	ErrTemplateNotFound = errors.New("rule template not found")

	ErrDependencyCycle = errors.New("dependency rule would introduce a cycle")

	ErrInvalidWindow = errors.New("window end must be after start")

	ErrWindowTooLarge = errors.New("window exceeds the maximum evaluation span")

	ErrSlotMisaligned = errors.New("window length is not a multiple of the calendar slot duration")

	ErrEvaluationAborted = errors.New("evaluation aborted before all rules were walked")
)
