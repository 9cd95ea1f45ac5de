/*
Package superpool context helpers.

We pass request scoped values through context.Context between the HTTP
layer, the coordinator and the gateways. For every value XYZ of type T that
we want to support in a context there are two functions:

  WithXYZ(context.Context, T) context.Context
  GetXYZ(context.Context) (val T, ok bool)
*/
package superpool

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tendermint/tendermint/libs/log"
)

var (
	// DefaultLogger is used for all context that have not
	// set anything themselves
	DefaultLogger = log.NewNopLogger()
)

type contextKey int

const (
	contextKeyLogger contextKey = iota
	contextKeyCaller
	contextKeyNow
	contextKeyRequestID
)

// WithLogger sets the logger for this context.
func WithLogger(ctx context.Context, logger log.Logger) context.Context {
	return context.WithValue(ctx, contextKeyLogger, logger)
}

// WithLogInfo accepts keyvalue pairs, and returns another
// context like this, after passing all the keyvals to the
// Logger
func WithLogInfo(ctx context.Context, keyvals ...interface{}) context.Context {
	logger := GetLogger(ctx).With(keyvals...)
	return WithLogger(ctx, logger)
}

// GetLogger returns the currently set logger, or DefaultLogger if none was
// set.
func GetLogger(ctx context.Context) log.Logger {
	if l, ok := ctx.Value(contextKeyLogger).(log.Logger); ok && l != nil {
		return l
	}
	return DefaultLogger
}

// WithCaller sets the authenticated caller address. It should only be called
// by the authentication layer.
func WithCaller(ctx context.Context, caller common.Address) context.Context {
	return context.WithValue(ctx, contextKeyCaller, caller)
}

// GetCaller returns the authenticated caller address. The second value is
// false when the request was not authenticated.
func GetCaller(ctx context.Context) (common.Address, bool) {
	c, ok := ctx.Value(contextKeyCaller).(common.Address)
	return c, ok
}

// WithRequestID attaches a request identifier used to correlate log lines
// and audit entries.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, id)
}

// GetRequestID returns the request identifier or an empty string.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// WithNow overrides the current time as seen by all operations using this
// context. This is mostly useful in tests.
func WithNow(ctx context.Context, now time.Time) context.Context {
	return context.WithValue(ctx, contextKeyNow, now)
}

// Now returns the current time as declared in the context or the wall clock
// time if none was declared.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(contextKeyNow).(time.Time); ok {
		return t
	}
	return time.Now()
}

// IsExpired returns true if given time is in the past as compared to the "now"
// as declared in the context. Expiration is inclusive, meaning that if current
// time is equal to the expiration time than this function returns true.
func IsExpired(ctx context.Context, t UnixTime) bool {
	return t <= AsUnixTime(Now(ctx))
}
