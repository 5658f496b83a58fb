package validation

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is a singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their yaml key so errors match the config file.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	if err := validate.RegisterValidation("listenaddr", func(fl validator.FieldLevel) bool {
		return ValidateListenAddr(fl.Field().String()) == nil
	}); err != nil {
		panic(err)
	}
}

// Struct validates v against its `validate` struct tags and reports every
// failing field.
func Struct(v any) error {
	if v == nil {
		return errors.New("nothing to validate")
	}
	return formatValidationError(validate.Struct(v))
}

// ValidateListenAddr accepts "host:port" and ":port" with a port in 0..65535.
func ValidateListenAddr(addr string) error {
	if addr == "" {
		return errors.New("listen address is empty")
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("listen address %q: %w", addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("listen address %q: invalid port %q", addr, port)
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	errs := make([]error, 0, len(validationErrs))
	for _, e := range validationErrs {
		field := strings.TrimPrefix(e.Namespace(), rootName(e))
		param := e.Param()

		switch e.Tag() {
		case "required":
			errs = append(errs, fmt.Errorf("%s: field is required", field))
		case "min", "gte":
			errs = append(errs, fmt.Errorf("%s: must be at least %s", field, param))
		case "max", "lte":
			errs = append(errs, fmt.Errorf("%s: must not exceed %s", field, param))
		case "oneof":
			errs = append(errs, fmt.Errorf("%s: must be one of [%s]", field, param))
		case "listenaddr":
			errs = append(errs, fmt.Errorf("%s: %q is not a host:port address", field, e.Value()))
		default:
			errs = append(errs, fmt.Errorf("%s: validation failed (%s)", field, e.Tag()))
		}
	}

	return errors.Join(errs...)
}

// rootName is the struct type prefix of a namespace, e.g. "Config.".
func rootName(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[:i+1]
	}
	return ""
}
