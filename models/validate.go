package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// ValidationError reports the message fields that are missing or unusable.
// It is returned before any write is attempted.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing message data: %s", strings.Join(e.Fields, ", "))
}

// Validate is the single required-field check shared by the REST and
// realtime entry points.
func (in MessageInput) Validate() error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := lo.Uniq(lo.Map(verrs, func(fe validator.FieldError, _ int) string {
		return fe.Field()
	}))
	return &ValidationError{Fields: fields}
}

// Normalize trims the identifier fields. Content is kept verbatim.
func (in MessageInput) Normalize() MessageInput {
	in.Sender = strings.TrimSpace(in.Sender)
	in.Receiver = strings.TrimSpace(in.Receiver)
	in.ClientRequestID = strings.TrimSpace(in.ClientRequestID)
	return in
}
