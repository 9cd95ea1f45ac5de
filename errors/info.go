package errors

import (
	"fmt"
)

const (
	// internalCode is used for all errors that do not wrap a registered
	// root error.
	internalCode uint32 = 1
	internalLog         = "internal error"
)

// Info returns the code, kind name and the message of given error, as they
// should be presented to a client. Any error that does not wrap a registered
// root error is categorized as internal error with code 1.
// When not running in a debug mode all messages of internal errors are
// replaced with generic "internal error".
func Info(err error, debug bool) (code uint32, kind string, log string) {
	if isNilErr(err) {
		return 0, "", ""
	}

	root := rootOf(err)
	if root == nil || root == ErrPanic {
		if debug {
			return internalCode, "internal", fmt.Sprintf("%+v", err)
		}
		return internalCode, "internal", internalLog
	}
	if debug {
		return root.code, root.desc, fmt.Sprintf("%+v", err)
	}
	return root.code, root.desc, err.Error()
}

// Code returns the code of the root error wrapped by given error or 1 if
// the error does not wrap any registered root error.
func Code(err error) uint32 {
	code, _, _ := Info(err, false)
	return code
}

// IsRetryable returns true if the operation that returned given error can be
// safely repeated by the caller.
func IsRetryable(err error) bool {
	return ErrConflict.Is(err) || ErrChainUnavailable.Is(err)
}

// rootOf returns the registered root error that given error wraps. For multi
// errors the first member decides, consistent with a fail-fast approach.
func rootOf(err error) *Error {
	for {
		if e, ok := err.(*Error); ok {
			return e
		}
		if u, ok := err.(unpacker); ok {
			if errs := u.Unpack(); len(errs) > 0 {
				return rootOf(errs[0])
			}
			return nil
		}
		if c, ok := err.(causer); ok {
			err = c.Cause()
		} else {
			return nil
		}
	}
}
