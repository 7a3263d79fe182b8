package validator

import (
	"errors"
	"fmt"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	clockLayout = "15:04"
	dateLayout  = "2006-01-02"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// AvailabilityValidator checks calendars, rules, templates and dependency rules
// before they reach the rule store.
type AvailabilityValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewAvailabilityValidator(log *logger.Logger) *AvailabilityValidator {
	v := validator.New()

	if err := v.RegisterValidation("clock_time", validateClockTime); err != nil {
		log.Fatal("Failed to register 'clock_time' validator", "error", err)
	}
	v.RegisterStructValidation(calendarStructLevel, model.Calendar{})
	v.RegisterStructValidation(ruleStructLevel, model.AvailabilityRule{})
	v.RegisterStructValidation(overlayStructLevel, model.Overlay{})
	v.RegisterStructValidation(dependencyStructLevel, model.DependencyRule{})

	log.Info("Availability validator initialized successfully")

	return &AvailabilityValidator{
		validate: v,
		logger:   log,
	}
}

func validateClockTime(fl validator.FieldLevel) bool {
	_, ok := ParseClock(fl.Field().String())
	return ok
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, bool) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

func calendarStructLevel(sl validator.StructLevel) {
	cal := sl.Current().Interface().(model.Calendar)
	if cal.MaxAdvanceBookingDays > 0 && cal.MaxAdvanceBookingDays*24 < cal.MinAdvanceBookingHours {
		sl.ReportError(cal.MaxAdvanceBookingDays, "max_advance_booking_days", "MaxAdvanceBookingDays", "horizon", "")
	}
}

func overlayStructLevel(sl validator.StructLevel) {
	o := sl.Current().Interface().(model.Overlay)
	if o.EffectiveFrom != nil && o.EffectiveTo != nil && !o.EffectiveTo.After(*o.EffectiveFrom) {
		sl.ReportError(o.EffectiveTo, "effective_to", "EffectiveTo", "after_from", "")
	}
}

func ruleStructLevel(sl validator.StructLevel) {
	r := sl.Current().Interface().(model.AvailabilityRule)

	recurringSet := r.Frequency != "" || r.Interval != 0 || len(r.ByWeekday) > 0 || len(r.ByMonthDay) > 0 ||
		r.RecurrenceStart != nil || r.RecurrenceUntil != nil
	dateSet := r.StartDate != "" || r.EndDate != ""
	timestampSet := r.StartAt != nil || r.EndAt != nil

	switch r.Mode {
	case model.ModeRecurring:
		if dateSet || timestampSet {
			sl.ReportError(r.Mode, "mode", "Mode", "mode_payload", string(r.Mode))
		}
		checkRecurrence(sl, r)
		checkDailyHours(sl, r)
	case model.ModeDateRange:
		if recurringSet || timestampSet {
			sl.ReportError(r.Mode, "mode", "Mode", "mode_payload", string(r.Mode))
		}
		checkDateRange(sl, r)
		checkDailyHours(sl, r)
	case model.ModeTimestampRange:
		if recurringSet || dateSet || r.StartTime != "" || r.EndTime != "" {
			sl.ReportError(r.Mode, "mode", "Mode", "mode_payload", string(r.Mode))
		}
		if r.StartAt == nil || r.EndAt == nil {
			sl.ReportError(r.StartAt, "start_at", "StartAt", "required_for_mode", string(r.Mode))
		} else if !r.EndAt.After(*r.StartAt) {
			sl.ReportError(r.EndAt, "end_at", "EndAt", "after_start", "")
		}
	}

	checkActionPayload(sl, r.Action, r.CapacityDelta, r.PricingAdjustment, "action", "Action")
}

func checkRecurrence(sl validator.StructLevel, r model.AvailabilityRule) {
	switch r.Frequency {
	case model.FrequencyDaily:
	case model.FrequencyWeekly:
		if len(r.ByWeekday) == 0 {
			sl.ReportError(r.ByWeekday, "by_weekday", "ByWeekday", "required_for_frequency", string(r.Frequency))
		}
	case model.FrequencyMonthly:
		if len(r.ByWeekday) == 0 && len(r.ByMonthDay) == 0 {
			sl.ReportError(r.ByMonthDay, "by_month_day", "ByMonthDay", "required_for_frequency", string(r.Frequency))
		}
	case model.FrequencyYearly:
		if r.RecurrenceStart == nil {
			sl.ReportError(r.RecurrenceStart, "recurrence_start", "RecurrenceStart", "required_for_frequency", string(r.Frequency))
		}
	default:
		sl.ReportError(r.Frequency, "frequency", "Frequency", "oneof", "daily weekly monthly yearly")
		return
	}
	if r.Interval > 1 && r.RecurrenceStart == nil {
		sl.ReportError(r.RecurrenceStart, "recurrence_start", "RecurrenceStart", "required_for_interval", "")
	}
	if r.RecurrenceStart != nil && r.RecurrenceUntil != nil && !r.RecurrenceUntil.After(*r.RecurrenceStart) {
		sl.ReportError(r.RecurrenceUntil, "recurrence_until", "RecurrenceUntil", "after_start", "")
	}
}

func checkDateRange(sl validator.StructLevel, r model.AvailabilityRule) {
	if r.StartDate == "" || r.EndDate == "" {
		sl.ReportError(r.StartDate, "start_date", "StartDate", "required_for_mode", string(r.Mode))
		return
	}
	start, errStart := time.Parse(dateLayout, r.StartDate)
	end, errEnd := time.Parse(dateLayout, r.EndDate)
	if errStart != nil || errEnd != nil {
		return
	}
	if end.Before(start) {
		sl.ReportError(r.EndDate, "end_date", "EndDate", "after_start", "")
	}
}

// checkDailyHours requires both or neither clock bound. An end before the start wraps past midnight.
func checkDailyHours(sl validator.StructLevel, r model.AvailabilityRule) {
	if (r.StartTime == "") != (r.EndTime == "") {
		sl.ReportError(r.EndTime, "end_time", "EndTime", "hours_pair", "")
		return
	}
	if r.StartTime == "" {
		return
	}
	start, okStart := ParseClock(r.StartTime)
	end, okEnd := ParseClock(r.EndTime)
	if okStart && okEnd && start == end {
		sl.ReportError(r.EndTime, "end_time", "EndTime", "empty_hours", "")
	}
}

func checkActionPayload(sl validator.StructLevel, action model.RuleAction, delta *int, pricing *model.PricingAdjustment, field, structField string) {
	switch action {
	case model.ActionCapacityAdjustment:
		if delta == nil || pricing != nil {
			sl.ReportError(action, field, structField, "action_payload", string(action))
		}
	case model.ActionSpecialPricing:
		if pricing == nil || delta != nil {
			sl.ReportError(action, field, structField, "action_payload", string(action))
		}
	default:
		if delta != nil || pricing != nil {
			sl.ReportError(action, field, structField, "action_payload", string(action))
		}
	}
}

func dependencyStructLevel(sl validator.StructLevel) {
	d := sl.Current().Interface().(model.DependencyRule)

	if d.EvaluationMode == model.EvaluateThreshold && d.MinSatisfiedCount == nil && d.MinSatisfiedPercent == nil {
		sl.ReportError(d.MinSatisfiedCount, "min_satisfied_count", "MinSatisfiedCount", "threshold_required", "")
	}
	if d.MinSatisfiedCount != nil && *d.MinSatisfiedCount > len(d.Targets) {
		sl.ReportError(d.MinSatisfiedCount, "min_satisfied_count", "MinSatisfiedCount", "lte_targets", fmt.Sprint(len(d.Targets)))
	}

	seen := make(map[string]struct{}, len(d.Targets))
	for i, t := range d.Targets {
		field := fmt.Sprintf("targets[%d]", i)
		if _, err := model.NewDependencyTarget(t.Type, t.ID, t.Weight); err != nil {
			sl.ReportError(t, field, "Targets", "target", "")
			continue
		}
		if t.Type == model.DependencyOnCalendar && t.ID == d.DependentCalendarID {
			sl.ReportError(t, field, "Targets", "self_dependency", "")
		}
		if _, dup := seen[t.Key()]; dup {
			sl.ReportError(t, field, "Targets", "unique", "")
		}
		seen[t.Key()] = struct{}{}
	}

	if d.EnforcementMode == model.EnforceSoftGate && d.FailureAction == "" {
		sl.ReportError(d.FailureAction, "failure_action", "FailureAction", "required_for_soft_gate", "")
	}
	if d.FailureAction != "" {
		checkActionPayload(sl, d.FailureAction, d.FailureCapacityDelta, d.FailurePricing, "failure_action", "FailureAction")
	}
}

func (v *AvailabilityValidator) ValidateCalendar(cal *model.Calendar) error {
	return v.validateStruct(cal)
}

func (v *AvailabilityValidator) ValidateBinding(b *model.CalendarBinding) error {
	if _, err := model.NewOwnerRef(b.Owner.Type, b.Owner.ID); err != nil {
		return ValidationErrors{{Field: "owner", Message: err.Error()}}
	}
	return v.validateStruct(b)
}

func (v *AvailabilityValidator) ValidateOverlay(o *model.Overlay) error {
	return v.validateStruct(o)
}

func (v *AvailabilityValidator) ValidateRule(r *model.AvailabilityRule) error {
	return v.validateStruct(r)
}

func (v *AvailabilityValidator) ValidateExclusion(ex *model.RuleExclusion) error {
	return v.validateStruct(ex)
}

// ValidateTemplate checks the template and the shape of each of its rules.
// Template rules are not bound to a calendar yet.
func (v *AvailabilityValidator) ValidateTemplate(tpl *model.RuleTemplate) error {
	if err := v.validateStruct(tpl); err != nil {
		return err
	}
	var all ValidationErrors
	for i := range tpl.Rules {
		rule := tpl.Rules[i]
		rule.TenantID = tpl.TenantID
		if rule.CalendarID == "" {
			rule.CalendarID = tpl.ID
		}
		if err := v.validateStruct(&rule); err != nil {
			var errs ValidationErrors
			if errors.As(err, &errs) {
				for _, e := range errs {
					e.Field = fmt.Sprintf("rules[%d].%s", i, e.Field)
					all = append(all, e)
				}
				continue
			}
			return err
		}
	}
	if len(all) > 0 {
		return all
	}
	return nil
}

func (v *AvailabilityValidator) ValidateTemplateBinding(b *model.TemplateBinding) error {
	return v.validateStruct(b)
}

func (v *AvailabilityValidator) ValidateDependency(d *model.DependencyRule) error {
	return v.validateStruct(d)
}

func (v *AvailabilityValidator) validateStruct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *AvailabilityValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "gt", "gte":
			message = fmt.Sprintf("%s must be %s %s", err.Field(), err.Tag(), err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of [%s]", err.Field(), err.Param())
		case "timezone":
			message = "timezone must be a valid IANA zone name"
		case "datetime":
			message = fmt.Sprintf("%s must be a date in YYYY-MM-DD format", err.Field())
		case "clock_time":
			message = fmt.Sprintf("%s must be in HH:MM 24-hour format", err.Field())
		case "horizon":
			message = "max_advance_booking_days * 24 must be at least min_advance_booking_hours"
		case "mode_payload":
			message = fmt.Sprintf("rule carries fields that do not belong to mode %s", err.Param())
		case "required_for_mode":
			message = fmt.Sprintf("%s is required for mode %s", err.Field(), err.Param())
		case "required_for_frequency":
			message = fmt.Sprintf("%s is required for %s recurrence", err.Field(), err.Param())
		case "required_for_interval":
			message = "recurrence_start is required when interval is greater than 1"
		case "after_start", "after_from":
			message = fmt.Sprintf("%s must be after the range start", err.Field())
		case "hours_pair":
			message = "start_time and end_time must be set together"
		case "empty_hours":
			message = "start_time and end_time must differ"
		case "action_payload":
			message = fmt.Sprintf("action %s requires capacity_delta only for capacity_adjustment and pricing_adjustment only for special_pricing", err.Param())
		case "threshold_required":
			message = "threshold evaluation requires min_satisfied_count or min_satisfied_percent"
		case "lte_targets":
			message = fmt.Sprintf("min_satisfied_count cannot exceed the %s targets", err.Param())
		case "target":
			message = fmt.Sprintf("%s must be a calendar or custom_subject with an id and non-negative weight", err.Field())
		case "self_dependency":
			message = "a calendar cannot depend on itself"
		case "unique":
			message = fmt.Sprintf("%s is listed more than once", err.Field())
		case "required_for_soft_gate":
			message = "soft_gate enforcement requires a failure_action"
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
