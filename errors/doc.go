/*
Package errors implements the error taxonomy of the custody coordinator.

Every error returned by the coordinator wraps one of the root errors declared
in this package. A root error carries a unique numeric code that clients can
rely on, and a kind name that is safe to expose. Use Errxxx.New and
Errxxx.Newf or Wrap and Wrapf to create an instance at the point where the
problem is detected so that a stacktrace is attached.

Test for an error kind with the Is method of the root error:

	if errors.ErrConflict.Is(err) {
		// retry
	}

Errors of kind Conflict and ChainUnavailable are retryable, see IsRetryable.

Once you have an error, you can use `fmt.Printf/Sprintf` to get more context
	%s is just the error message
	%+v is the full stack trace
*/
package errors
