package tcerr

import (
	"fmt"
	"strings"
)

// ValidationError reports a malformed or out-of-range input. It is always
// returned before any device primitive is issued.
type ValidationError struct {
	Field      string
	Value      string
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid value %q: %s", e.Value, e.Constraint)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Constraint)
}

// Invalid is a shorthand for building a *ValidationError.
func Invalid(field, value, constraint string) error {
	return &ValidationError{Field: field, Value: value, Constraint: constraint}
}

// DelayNotSetError is returned when jitter or reordering is requested on a
// device whose impairment leaf has no delay yet.
type DelayNotSetError struct {
	Device string
	Op     string
}

func (e *DelayNotSetError) Error() string {
	return fmt.Sprintf("%s on %s requires a delay to be set first", e.Op, e.Device)
}

// NameTooLongError is returned when an interface name, or a name derived from
// it, does not fit the kernel interface name limit.
type NameTooLongError struct {
	Name  string
	Limit int
}

func (e *NameTooLongError) Error() string {
	return fmt.Sprintf("interface name %q is %d characters long, the limit is %d; shorten the owning interface name",
		e.Name, len(e.Name), e.Limit)
}

// CommandError is a failed device primitive.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", strings.Join(e.Args, " "), e.Err, out)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// InvalidQdiscError is returned for a discipline name outside the supported
// set. It unwraps to a *ValidationError.
type InvalidQdiscError struct {
	Name      string
	Supported []string
}

func (e *InvalidQdiscError) Error() string {
	return e.validation().Error()
}

func (e *InvalidQdiscError) Unwrap() error {
	return e.validation()
}

func (e *InvalidQdiscError) validation() *ValidationError {
	return &ValidationError{
		Field:      "qdisc",
		Value:      e.Name,
		Constraint: "must be one of " + strings.Join(e.Supported, ", "),
	}
}
