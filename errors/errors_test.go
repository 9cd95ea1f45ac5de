package errors

import (
	stdlib "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestIs(t *testing.T) {
	cases := map[string]struct {
		kind *Error
		err  error
		want bool
	}{
		"root error is of its own kind": {
			kind: ErrNotFound,
			err:  ErrNotFound,
			want: true,
		},
		"wrapped error": {
			kind: ErrConflict,
			err:  Wrap(ErrConflict, "record changed"),
			want: true,
		},
		"double wrapped error": {
			kind: ErrConflict,
			err:  Wrap(Wrapf(ErrConflict, "version %d", 3), "outer"),
			want: true,
		},
		"different kind": {
			kind: ErrConflict,
			err:  Wrap(ErrNotFound, "record"),
			want: false,
		},
		"stdlib error": {
			kind: ErrNotFound,
			err:  stdlib.New("not found"),
			want: false,
		},
		"pkg errors wrap": {
			kind: ErrExpired,
			err:  errors.Wrap(ErrExpired, "outer"),
			want: true,
		},
		"multi error member": {
			kind: ErrValidation,
			err:  Append(ErrNotFound, Wrap(ErrValidation, "target")),
			want: true,
		},
		"nil kind matches nil error": {
			kind: nil,
			err:  nil,
			want: true,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			if got := tc.kind.Is(tc.err); got != tc.want {
				t.Fatalf("want %v, got %v", tc.want, got)
			}
		})
	}
}

func TestRegisterDuplicateCodePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("panic expected")
		}
	}()
	Register(ErrConflict.Code(), "another conflict")
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, "nothing"); err != nil {
		t.Fatalf("want nil, got %v", err)
	}
}

func TestWrapMessage(t *testing.T) {
	err := Wrapf(ErrDuplicateSigner, "signer %s", "0xab")
	if want := "signer 0xab: duplicate signer"; err.Error() != want {
		t.Fatalf("want %q, got %q", want, err.Error())
	}
}

func TestStackTraceOnlyOnce(t *testing.T) {
	err := Wrap(Wrap(ErrHuman, "inner"), "outer")
	full := fmt.Sprintf("%+v", err)
	if !strings.Contains(full, "errors_test.go") {
		t.Fatalf("expected stacktrace, got %s", full)
	}
	if n := strings.Count(full, "TestStackTraceOnlyOnce"); n != 1 {
		t.Fatalf("want stacktrace attached once, got %d", n)
	}
}

func TestRecover(t *testing.T) {
	fn := func() (err error) {
		defer Recover(&err)
		panic("boom")
	}
	if err := fn(); !ErrPanic.Is(err) {
		t.Fatalf("want panic error, got %+v", err)
	}
}

func TestInfo(t *testing.T) {
	cases := map[string]struct {
		err      error
		debug    bool
		wantCode uint32
		wantKind string
		wantLog  string
	}{
		"nil": {
			err:      nil,
			wantCode: 0,
		},
		"registered": {
			err:      Wrap(ErrExpired, "record 0x01"),
			wantCode: ErrExpired.Code(),
			wantKind: "expired",
			wantLog:  "record 0x01: expired",
		},
		"stdlib is internal": {
			err:      stdlib.New("database password is secret"),
			wantCode: 1,
			wantKind: "internal",
			wantLog:  "internal error",
		},
		"panic is internal": {
			err:      Wrap(ErrPanic, "runtime error"),
			wantCode: 1,
			wantKind: "internal",
			wantLog:  "internal error",
		},
		"multi error uses first": {
			err:      Append(Wrap(ErrValidation, "a"), Wrap(ErrNotFound, "b")),
			wantCode: ErrValidation.Code(),
			wantKind: "validation error",
			wantLog:  "2 errors occurred:\n\t* a: validation error\n\t* b: not found\n",
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			code, kind, log := Info(tc.err, tc.debug)
			if code != tc.wantCode {
				t.Errorf("want code %d, got %d", tc.wantCode, code)
			}
			if kind != tc.wantKind {
				t.Errorf("want kind %q, got %q", tc.wantKind, kind)
			}
			if log != tc.wantLog {
				t.Errorf("want log %q, got %q", tc.wantLog, log)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(Wrap(ErrConflict, "cas")) {
		t.Error("conflict must be retryable")
	}
	if !IsRetryable(ErrChainUnavailable.New("timeout")) {
		t.Error("chain unavailable must be retryable")
	}
	if IsRetryable(ErrExecutionFailed.New("reverted")) {
		t.Error("execution failure is terminal")
	}
	if IsRetryable(ErrExpired) {
		t.Error("expiration is terminal")
	}
}

func TestLookup(t *testing.T) {
	if e, ok := Lookup(ErrExpired.Code()); !ok || e != ErrExpired {
		t.Fatalf("want expired error, got %v", e)
	}
	if _, ok := Lookup(1); ok {
		t.Fatal("internal code must not resolve")
	}
	if _, ok := Lookup(987654); ok {
		t.Fatal("unregistered code must not resolve")
	}
}
