package connections

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalid = errors.New("invalid connection")

	namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	validate    = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("connname", func(fl validator.FieldLevel) bool {
		return namePattern.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(validateDriverFields, Input{})
	return v
}

// validateDriverFields enforces the fields each driver needs when no DSN is given.
func validateDriverFields(sl validator.StructLevel) {
	in := sl.Current().Interface().(Input)
	if strings.TrimSpace(in.DSN) != "" {
		return
	}
	switch in.Driver {
	case DriverPostgres, "":
		if strings.TrimSpace(in.Host) == "" {
			sl.ReportError(in.Host, "host", "Host", "required_for_postgres", "")
		}
		if strings.TrimSpace(in.Database) == "" {
			sl.ReportError(in.Database, "database", "Database", "required", "")
		}
		if strings.TrimSpace(in.User) == "" {
			sl.ReportError(in.User, "user", "User", "required_for_postgres", "")
		}
	case DriverDuckDB, DriverSQLite:
		if strings.TrimSpace(in.Database) == "" {
			sl.ReportError(in.Database, "database", "Database", "required", "")
		}
	}
}

// ValidationError lists the offending fields of an Input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, rule := range e.Fields {
		parts = append(parts, field+" ("+rule+")")
	}
	slices.Sort(parts)
	return fmt.Sprintf("invalid connection: %s", strings.Join(parts, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// Validate checks an Input against its tags and the per-driver requirements.
func Validate(in Input) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return out
}
