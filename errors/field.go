package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Field wraps err with the name of the request or record attribute it
// describes. It returns nil if err is nil.
//
// Use Go naming for the field name, for example Target or Description.
// Nested fields use dot notation: Operations.2.Data
func Field(fieldName string, err error, description string, args ...interface{}) error {
	if isNilErr(err) {
		return nil
	}
	if stackTrace(err) == nil {
		err = errors.WithStack(err)
	}
	if len(args) > 0 {
		description = fmt.Sprintf(description, args...)
	}
	return &fieldError{parent: err, field: fieldName, desc: description}
}

// AppendField appends fieldErrOrNil, attributed to fieldName, to
// errorsOrNil.
func AppendField(errorsOrNil error, fieldName string, fieldErrOrNil error) error {
	return Append(errorsOrNil, Field(fieldName, fieldErrOrNil, ""))
}

type fieldError struct {
	parent error
	field  string
	desc   string
}

func (e *fieldError) Error() string {
	if e.desc == "" {
		return fmt.Sprintf("field %q: %s", e.field, e.parent)
	}
	return fmt.Sprintf("field %q: %s: %s", e.field, e.desc, e.parent)
}

func (e *fieldError) Cause() error  { return e.parent }
func (e *fieldError) Field() string { return e.field }

// FieldErrors returns all errors attributed to given field name.
func FieldErrors(err error, fieldName string) []error {
	var res []error
	walkFields(err, func(name string, e error) {
		if name == fieldName {
			res = append(res, e)
		}
	})
	return res
}

// Fields returns the names of all fields err is attributed to, in the
// order they were appended. Each name is returned once.
func Fields(err error) []string {
	var names []string
	seen := make(map[string]bool)
	walkFields(err, func(name string, _ error) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	})
	return names
}

// walkFields calls fn for the outermost field error of every branch of
// err. Field errors wrapped by another field error are not visited.
func walkFields(err error, fn func(name string, err error)) {
	for !isNilErr(err) {
		if f, ok := err.(interface{ Field() string }); ok {
			fn(f.Field(), err)
			return
		}
		if u, ok := err.(unpacker); ok {
			// Unpack returns every child, Cause would only repeat
			// the first one.
			for _, e := range u.Unpack() {
				walkFields(e, fn)
			}
			return
		}
		c, ok := err.(causer)
		if !ok {
			return
		}
		err = c.Cause()
	}
}
