package validator

import (
	"errors"
	"fmt"
	"strings"
	"tripdesk/pkg/logger"
	"tripdesk/pkg/model"

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

type RuleValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewRuleValidator(log *logger.Logger) *RuleValidator {
	v := validator.New()

	log.Info("Rule validator initialized successfully")

	return &RuleValidator{
		validate: v,
		logger:   log,
	}
}

func (v *RuleValidator) Validate(rule *model.Rule) error {
	if err := v.validate.Struct(rule); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	if err := rule.Validate(); err != nil {
		field := "IntValue"
		if errors.Is(err, model.ErrRuleWindowInvalid) {
			field = "ValidFrom"
		}
		return ValidationErrors{
			ValidationError{
				Field:   field,
				Message: err.Error(),
			},
		}
	}

	// A text value on a list-shaped rule type must decode into a JSON array.
	switch rule.RuleType {
	case model.RuleBlackoutDays, model.RuleRestrictedServices:
		if value := rule.Value(); value.Kind == model.ValueList {
			if _, ok := value.AsStringList(); !ok {
				return ValidationErrors{
					ValidationError{
						Field:   "TextValue",
						Message: "expected a JSON array of strings",
					},
				}
			}
		}
	case model.RuleBlackoutHours:
		if value := rule.Value(); value.Kind == model.ValueList {
			hours, ok := value.AsIntList()
			if !ok {
				return ValidationErrors{
					ValidationError{
						Field:   "TextValue",
						Message: "expected a JSON array of hours",
					},
				}
			}
			for _, h := range hours {
				if h < 0 || h > 23 {
					return ValidationErrors{
						ValidationError{
							Field:   "TextValue",
							Message: fmt.Sprintf("hour %d is outside 0-23", h),
						},
					}
				}
			}
		}
	}

	return nil
}

func (v *RuleValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		var message string

		switch err.Tag() {
		case "required":
			message = "field is required"
		case "oneof":
			message = fmt.Sprintf("must be one of: %s", err.Param())
		case "min":
			message = fmt.Sprintf("must be at least %s", err.Param())
		case "max":
			message = fmt.Sprintf("must be at most %s", err.Param())
		default:
			message = err.Error()
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
