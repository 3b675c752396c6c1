// Package validate holds the shared struct validator for operation inputs.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var v = validator.New(validator.WithRequiredStructEnabled())

// Struct validates s against its `validate` tags and returns a single error
// naming every failing field.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}

	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", f.Field(), f.Tag(), f.Param()))
			continue
		}

		msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", f.Field(), f.Tag()))
	}

	return errors.New(strings.Join(msgs, "; "))
}
