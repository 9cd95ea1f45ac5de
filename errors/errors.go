package errors

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

var (
	// ErrValidation is returned when the input of an operation is malformed.
	ErrValidation = Register(2, "validation error")

	// ErrNotFound is used when a requested record does not exist.
	ErrNotFound = Register(3, "not found")

	// ErrInvalidState is returned when a record is not in a state that
	// allows the requested operation.
	ErrInvalidState = Register(4, "invalid state")

	// ErrDuplicateSigner is returned when a signer has already approved
	// given record.
	ErrDuplicateSigner = Register(5, "duplicate signer")

	// ErrInvalidSignature is returned when a signature does not recover to
	// the claimed signer.
	ErrInvalidSignature = Register(6, "invalid signature")

	// ErrNotAuthorizedSigner is returned when an address is not currently
	// an owner of the custody account.
	ErrNotAuthorizedSigner = Register(7, "not authorized signer")

	// ErrInsufficientSignatures is returned when the number of collected
	// signatures is below the required threshold.
	ErrInsufficientSignatures = Register(8, "insufficient signatures")

	// ErrConflict is returned when a concurrent writer modified the record.
	// It is safe to retry the whole operation.
	ErrConflict = Register(9, "conflict")

	// ErrChainUnavailable is returned when the chain gateway cannot be
	// reached or did not answer in time. It is safe to retry.
	ErrChainUnavailable = Register(10, "chain unavailable")

	// ErrExecutionFailed is returned when the execution target explicitly
	// rejected or reverted an operation.
	ErrExecutionFailed = Register(11, "execution failed")

	// ErrExpired is returned when a record passed its expiration time.
	ErrExpired = Register(12, "expired")

	// ErrAlreadyExists is returned when a record with the same id is
	// already stored.
	ErrAlreadyExists = Register(13, "already exists")

	// ErrUnauthorized is returned when the caller is not authenticated.
	ErrUnauthorized = Register(14, "unauthorized")

	// ErrDatabase is returned when the persistence layer fails.
	ErrDatabase = Register(15, "database")

	// ErrEmpty is returned when a value fails a not empty assertion.
	ErrEmpty = Register(16, "value is empty")

	// ErrIteratorDone is returned by iterators when there are no more
	// elements to return.
	ErrIteratorDone = Register(17, "iterator done")

	// ErrHuman is returned when application reaches a code path which
	// should not ever be reached if the code was written as expected.
	ErrHuman = Register(18, "coding error")

	// ErrPanic is only set when we recover from a panic, so we know to
	// redact potentially sensitive system info.
	ErrPanic = Register(111222, "panic")
)

// Register returns an error instance that should be used as the base for
// creating error instances during runtime.
//
// This function ensures that no error code is used twice. Attempt to reuse an
// error code results in panic.
//
// Use this function only during a program startup phase.
func Register(code uint32, description string) *Error {
	if e, ok := usedCodes[code]; ok {
		panic(fmt.Sprintf("error with code %d is already registered: %q", code, e.desc))
	}
	err := &Error{
		code: code,
		desc: description,
	}
	usedCodes[err.code] = err
	return err
}

// usedCodes is keeping track of used codes to ensure their uniqueness. No two
// error instances should share the same error code.
var usedCodes = map[uint32]*Error{
	1: nil, // Error code 1 is reserved for errors without a code.
}

// Lookup returns the registered root error with given code.
func Lookup(code uint32) (*Error, bool) {
	e, ok := usedCodes[code]
	if !ok || e == nil {
		return nil, false
	}
	return e, true
}

// Error represents a root error.
//
// Each instance created during the runtime should wrap one of the declared
// root errors. This allows error tests and returning all errors to the client
// in a safe manner.
type Error struct {
	code uint32
	desc string
}

func (e Error) Error() string {
	return e.desc
}

// Code returns the unique numeric code of this error kind.
func (e Error) Code() uint32 {
	return e.code
}

// New returns a new error. Returned instance is having the root cause set to
// this error. Below two lines are equal
//   e.New("my description")
//   Wrap(e, "my description")
func (e *Error) New(description string) error {
	return Wrap(e, description)
}

// Newf is basically New with formatting capabilities.
func (e *Error) Newf(description string, args ...interface{}) error {
	return e.New(fmt.Sprintf(description, args...))
}

// Is check if given error instance is of a given kind/type. This involves
// unwrapping given error using the Cause method if available.
func (kind *Error) Is(err error) bool {
	// Reflect usage is necessary to correctly compare with
	// a nil implementation of an error.
	if kind == nil {
		if err == nil {
			return true
		}
		return reflect.ValueOf(err).IsNil()
	}

	for {
		if err == kind {
			return true
		}

		// A multi error is of a kind if any of its members is.
		if u, ok := err.(unpacker); ok {
			for _, e := range u.Unpack() {
				if kind.Is(e) {
					return true
				}
			}
		}

		if c, ok := err.(causer); ok {
			err = c.Cause()
		} else {
			return false
		}
	}
}

// Wrap extends given error with an additional information.
//
// If err is nil, this returns nil, avoiding the need for an if statement when
// wrapping a error returned at the end of a function
func Wrap(err error, description string) error {
	if err == nil {
		return nil
	}

	// If this error does not carry the stacktrace information yet, attach
	// one. This should be done only once per error at the lowest frame
	// possible (most inner wrap).
	if stackTrace(err) == nil {
		err = errors.WithStack(err)
	}

	return &wrappedError{
		parent: err,
		msg:    description,
	}
}

// Wrapf extends given error with an additional information.
//
// This function works like Wrap function with additional funtionality of
// formatting the input as specified.
func Wrapf(err error, format string, args ...interface{}) error {
	desc := fmt.Sprintf(format, args...)
	return Wrap(err, desc)
}

type wrappedError struct {
	// This error layer description.
	msg string
	// The underlying error that triggered this one.
	parent error
}

func (e *wrappedError) Error() string {
	return fmt.Sprintf("%s: %s", e.msg, e.parent.Error())
}

func (e *wrappedError) Cause() error {
	return e.parent
}

// Format prints the stacktrace of the innermost wrap when %+v is used.
func (e *wrappedError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "%s", e.Error())
		if st := stackTrace(e); st != nil {
			fmt.Fprintf(s, "%+v", st)
		}
		return
	}
	fmt.Fprint(s, e.Error())
}

// Recover captures a panic and stop its propagation. If panic happens it is
// transformed into a ErrPanic instance and assigned to given error. Call this
// function using defer in order to work as expected.
func Recover(err *error) {
	if r := recover(); r != nil {
		*err = Wrapf(ErrPanic, "%v", r)
	}
}

// causer is an interface implemented by an error that supports wrapping. Use
// it to test if an error wraps another error instance.
type causer interface {
	Cause() error
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// stackTrace returns the first found stack trace frame carried by given error
// or any wrapped error. It returns nil if no stack trace is found.
func stackTrace(err error) errors.StackTrace {
	type causer interface {
		Cause() error
	}

	for {
		if st, ok := err.(stackTracer); ok {
			return st.StackTrace()
		}

		if c, ok := err.(causer); ok {
			err = c.Cause()
		} else {
			return nil
		}
	}
}
