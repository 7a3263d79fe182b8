package validator

import (
	"errors"
	"fmt"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"strings"

	"github.com/go-playground/validator/v10"
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

type HoldValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewHoldValidator(log *logger.Logger) *HoldValidator {
	v := validator.New()
	v.RegisterStructValidation(holdRequestStructLevel, model.CreateHoldRequest{})
	v.RegisterStructValidation(policyStructLevel, model.CapacityHoldPolicy{})

	log.Info("Hold validator initialized successfully")

	return &HoldValidator{
		validate: v,
		logger:   log,
	}
}

func holdRequestStructLevel(sl validator.StructLevel) {
	req := sl.Current().Interface().(model.CreateHoldRequest)

	if _, err := model.NewHoldTarget(req.Target.Type, req.Target.ID); err != nil {
		sl.ReportError(req.Target, "target", "Target", "tagged_ref", err.Error())
	}
	if req.Owner != nil {
		if _, err := model.NewHoldOwner(req.Owner.Type, req.Owner.ID); err != nil {
			sl.ReportError(req.Owner, "owner", "Owner", "tagged_ref", err.Error())
		}
	}
	if !req.StartsAt.IsZero() && !req.EndsAt.After(req.StartsAt) {
		sl.ReportError(req.EndsAt, "ends_at", "EndsAt", "after_start", "")
	}
	for i, s := range req.PolicyScopes {
		if _, err := model.NewPolicyScope(s.Type, s.ID); err != nil {
			sl.ReportError(s, fmt.Sprintf("policy_scopes[%d]", i), "PolicyScopes", "tagged_ref", err.Error())
		}
	}
	switch req.Actor.Type {
	case "", model.ActorUser, model.ActorSystem, model.ActorAdmin:
	default:
		sl.ReportError(req.Actor.Type, "actor", "Actor", "oneof", "user system admin")
	}
}

func policyStructLevel(sl validator.StructLevel) {
	p := sl.Current().Interface().(model.CapacityHoldPolicy)

	if _, err := model.NewPolicyScope(p.Scope.Type, p.Scope.ID); err != nil {
		sl.ReportError(p.Scope, "scope", "Scope", "tagged_ref", err.Error())
	}
	if p.MaxHoldDurationMin > 0 && p.MaxHoldDurationMin < p.MinHoldDurationMin {
		sl.ReportError(p.MaxHoldDurationMin, "max_hold_duration_min", "MaxHoldDurationMin", "duration_bounds", "")
	}
	if p.DefaultHoldDurationMin > 0 {
		if p.DefaultHoldDurationMin < p.MinHoldDurationMin ||
			(p.MaxHoldDurationMin > 0 && p.DefaultHoldDurationMin > p.MaxHoldDurationMin) {
			sl.ReportError(p.DefaultHoldDurationMin, "default_hold_duration_min", "DefaultHoldDurationMin", "default_in_bounds", "")
		}
	}
	if p.EffectiveFrom != nil && p.EffectiveTo != nil && !p.EffectiveTo.After(*p.EffectiveFrom) {
		sl.ReportError(p.EffectiveTo, "effective_to", "EffectiveTo", "after_start", "")
	}
	if p.MinPreauthAmountMinor > 0 && !p.RequirePaymentIntentForBlockingHold {
		sl.ReportError(p.MinPreauthAmountMinor, "min_preauth_amount_minor", "MinPreauthAmountMinor", "requires_payment_intent", "")
	}
}

func (v *HoldValidator) ValidateRequest(req *model.CreateHoldRequest) error {
	return v.validateStruct(req)
}

func (v *HoldValidator) ValidatePolicy(p *model.CapacityHoldPolicy) error {
	return v.validateStruct(p)
}

func (v *HoldValidator) validateStruct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *HoldValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
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
		case "tagged_ref":
			message = err.Param()
		case "after_start":
			message = fmt.Sprintf("%s must be after the start", err.Field())
		case "duration_bounds":
			message = "max_hold_duration_min must be at least min_hold_duration_min"
		case "default_in_bounds":
			message = "default_hold_duration_min must lie within the min and max hold durations"
		case "requires_payment_intent":
			message = "min_preauth_amount_minor only applies when require_payment_intent_for_blocking_hold is set"
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
