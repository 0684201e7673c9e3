package contact

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func messageValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		// Report fields by their form input name instead of the Go field name.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks that every field is present and the email address is
// well formed. It returns nil or a *ValidationError.
func Validate(m Message) error {
	err := messageValidator().Struct(m)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	failed := make(map[Field]Reason, len(verrs))
	for _, fe := range verrs {
		f, perr := ParseField(fe.Field())
		if perr != nil {
			continue
		}
		reason := ReasonInvalid
		if fe.Tag() == "required" {
			reason = ReasonRequired
		}
		failed[f] = reason
	}

	out := &ValidationError{}
	for _, f := range Fields {
		if r, ok := failed[f]; ok {
			out.Fields = append(out.Fields, FieldError{Field: f, Reason: r})
		}
	}
	return out
}
