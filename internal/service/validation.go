package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/igotyouboo-api/internal/repository"
)

var (
	emailPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,4}$`)
	whitespace   = regexp.MustCompile(`\s`)
)

// userRules is the shape every stored user must satisfy.  Field order
// decides the order of reported failures.
type userRules struct {
	Email    string `json:"email" validate:"required,siteemail,nowhitespace"`
	Password string `json:"password" validate:"required"`
	Username string `json:"username" validate:"required,max=16,nowhitespace"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("nowhitespace", func(fl validator.FieldLevel) bool {
		return !whitespace.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("siteemail", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || emailPattern.MatchString(s)
	})
	return v
}

// validateUser runs the user rules and converts failures into a
// *repository.ValidationError with user-facing messages.
func validateUser(v *validator.Validate, r userRules) error {
	err := v.Struct(r)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &repository.ValidationError{Model: "User"}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, repository.FieldError{
			Field:   fe.Field(),
			Message: ruleMessage(fe),
		})
	}
	return out
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Path `%s` is required.", fe.Field())
	case "max":
		return "Usernames can be a max of 16 characters"
	case "siteemail":
		return fmt.Sprintf("%v is not a valid email address", fe.Value())
	case "nowhitespace":
		if fe.Field() == "email" {
			return "Emails cannot contain whitespace"
		}
		return "Usernames cannot contain whitespace"
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}
