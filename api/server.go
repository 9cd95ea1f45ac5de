package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/tendermint/tendermint/libs/log"
)

// Config is the "server" configuration section.
type Config struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// DefaultConfig returns the configuration used when nothing else is
// declared. The write timeout must outlive a confirmation wait, because
// execution responds only once the submission is final.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:8000",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		MaxBodyBytes:    1 << 20,
	}
}

func (c Config) Validate() error {
	var errs error
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		errs = errors.AppendField(errs, "Addr", errors.Wrap(errors.ErrValidation, err.Error()))
	}
	if c.ReadTimeout <= 0 {
		errs = errors.AppendField(errs, "ReadTimeout", errors.ErrEmpty)
	}
	if c.WriteTimeout <= 0 {
		errs = errors.AppendField(errs, "WriteTimeout", errors.ErrEmpty)
	}
	if c.ShutdownTimeout <= 0 {
		errs = errors.AppendField(errs, "ShutdownTimeout", errors.ErrEmpty)
	}
	if c.MaxBodyBytes < 1024 {
		errs = errors.AppendField(errs, "MaxBodyBytes",
			errors.Wrap(errors.ErrValidation, "must be at least 1KiB"))
	}
	return errs
}

// NewRouter returns the handler serving the whole HTTP API.
func NewRouter(custody Custody, auth Authenticator, logger log.Logger, maxBody int64) http.Handler {
	rt := http.NewServeMux()
	rt.Handle("POST /transactions", &ProposeHandler{Custody: custody, MaxBody: maxBody})
	rt.Handle("POST /transactions/batch", &ProposeBatchHandler{Custody: custody, MaxBody: maxBody})
	rt.Handle("POST /transactions/emergency", &EmergencyHandler{Custody: custody, MaxBody: maxBody})
	rt.Handle("POST /transactions/{id}/signatures", &SignatureHandler{Custody: custody, MaxBody: maxBody})
	rt.Handle("POST /transactions/{id}/execute", &ExecuteHandler{Custody: custody})
	rt.Handle("POST /transactions/{id}/reconcile", &ReconcileHandler{Custody: custody})
	rt.Handle("GET /transactions", &ListHandler{Custody: custody})
	rt.Handle("GET /transactions/{id}", &StatusHandler{Custody: custody})
	rt.Handle("GET /info", &InfoHandler{Custody: custody})
	rt.Handle("/", &DefaultHandler{})

	return &middleware{next: rt, auth: auth, logger: logger}
}

// middleware attaches the request id, the logger and the authenticated
// caller to the request context, and turns a panic into an error response.
type middleware struct {
	next   http.Handler
	auth   Authenticator
	logger log.Logger
}

func (m *middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", reqID)

	ctx := superpool.WithRequestID(r.Context(), reqID)
	ctx = superpool.WithLogger(ctx, m.logger.With("request", reqID))

	caller, err := m.auth.Authenticate(r)
	switch {
	case err == nil:
		ctx = superpool.WithCaller(ctx, caller)
		ctx = superpool.WithLogInfo(ctx, "caller", caller.Hex())
	case errors.ErrEmpty.Is(err):
		// Anonymous requests may read. Mutations are refused by the
		// coordinator.
	default:
		JSONErr(ctx, w, err)
		return
	}

	start := time.Now()
	rw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	if err := m.serve(ctx, rw, r.WithContext(ctx)); err != nil {
		superpool.GetLogger(ctx).Error("handler panic", "err", err)
		if !rw.written {
			JSONErr(ctx, rw, err)
		}
	}
	superpool.GetLogger(ctx).Info("request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rw.code,
		"took", time.Since(start).String())
}

func (m *middleware) serve(ctx context.Context, w http.ResponseWriter, r *http.Request) (err error) {
	defer errors.Recover(&err)
	m.next.ServeHTTP(w, r)
	return nil
}

type statusWriter struct {
	http.ResponseWriter
	code    int
	written bool
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.written = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// NewServer returns an HTTP server configured with conf.
func NewServer(conf Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         conf.Addr,
		Handler:      handler,
		ReadTimeout:  conf.ReadTimeout,
		WriteTimeout: conf.WriteTimeout,
	}
}

// Serve runs srv until ctx is cancelled and then shuts it down gracefully,
// waiting at most conf.ShutdownTimeout for in flight requests.
func Serve(ctx context.Context, conf Config, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- errors.Wrap(err, "listen")
			return
		}
		errc <- nil
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return <-errc
}
