package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	playground "github.com/go-playground/validator/v10"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
	ValidateField(field string, value interface{}, rules string) error
}

type validator struct {
	v *playground.Validate
}

// New returns a validator reading `validate` tags, with the custom `phone` rule registered.
func New() Validator {
	v := playground.New()
	_ = RegisterPhone(v)
	return &validator{v: v}
}

// RegisterPhone adds the `phone` rule to an existing engine, e.g. gin's binding validator.
func RegisterPhone(v *playground.Validate) error {
	return v.RegisterValidation("phone", func(fl playground.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
}

func (v *validator) Validate(obj interface{}) error {
	if err := v.v.Struct(obj); err != nil {
		return humanize(err)
	}
	return nil
}

func (v *validator) ValidateField(field string, value interface{}, rules string) error {
	if err := v.v.Var(value, rules); err != nil {
		var errs playground.ValidationErrors
		if ok := asValidationErrors(err, &errs); ok && len(errs) > 0 {
			return fmt.Errorf("%s %s", field, describe(errs[0]))
		}
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

func humanize(err error) error {
	var errs playground.ValidationErrors
	if !asValidationErrors(err, &errs) {
		return err
	}
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		msgs = append(msgs, fmt.Sprintf("%s %s", strings.ToLower(fe.Field()), describe(fe)))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func asValidationErrors(err error, target *playground.ValidationErrors) bool {
	errs, ok := err.(playground.ValidationErrors)
	if ok {
		*target = errs
	}
	return ok
}

func describe(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "phone":
		return "must be a valid phone number"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must not exceed " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "failed on " + fe.Tag()
}
