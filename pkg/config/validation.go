package config

import (
	"reflect"

	mcerr "github.com/mathchange/backend/pkg/errors"
)

// Validator is an optional interface configuration structs may implement
// for custom validation logic, called after tag-based required validation
// succeeds. Errors that are already [*mcerr.Error] are returned as-is;
// other errors are wrapped with [mcerr.CodeValidation].
type Validator interface {
	Validate() error
}

// validate performs tag-based required validation and then invokes the
// Validator interface if cfg implements it.
func validate(cfg any, rv reflect.Value) error {
	if err := validateRequired(rv, ""); err != nil {
		return err
	}

	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			if _, isCoded := mcerr.AsError(err); isCoded {
				return err
			}
			return mcerr.Wrap(err, mcerr.CodeValidation,
				"config: custom validation failed")
		}
	}
	return nil
}

// validateRequired recursively checks that all fields tagged with
// `required:"true"` hold non-zero values. The path parameter tracks the
// dotted field path for error messages (e.g., "Postgres.URI").
func validateRequired(rv reflect.Value, path string) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)

		if !field.CanSet() {
			continue
		}

		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}

		if field.Kind() == reflect.Struct && sf.Type != durationType {
			if err := validateRequired(field, fieldPath); err != nil {
				return err
			}
			continue
		}

		if sf.Tag.Get("required") != "true" {
			continue
		}
		if field.IsZero() {
			return mcerr.Newf(mcerr.CodeValidationRequired,
				"config: required field %q is empty", fieldPath)
		}
	}
	return nil
}
