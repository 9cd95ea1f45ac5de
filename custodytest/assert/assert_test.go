package assert

import (
	stderrors "errors"
	"testing"

	"github.com/rafamiziara/superpool-sub007/errors"
)

// recorder counts failures instead of stopping the test.
type recorder struct {
	testing.TB
	failures []string
}

func (r *recorder) Fatal(args ...interface{}) {
	r.failures = append(r.failures, "fatal")
}

func (r *recorder) Fatalf(format string, args ...interface{}) {
	r.failures = append(r.failures, format)
}

func (r *recorder) Helper() {}

func check(t *testing.T, wantFail bool, fn func(testing.TB)) {
	t.Helper()
	r := &recorder{TB: t}
	fn(r)
	if failed := len(r.failures) > 0; failed != wantFail {
		t.Fatalf("want failure %v, got %d failures", wantFail, len(r.failures))
	}
}

func TestIsErr(t *testing.T) {
	cases := map[string]struct {
		want     *errors.Error
		got      error
		wantFail bool
	}{
		"same kind":          {want: errors.ErrConflict, got: errors.ErrConflict},
		"wrapped":            {want: errors.ErrExpired, got: errors.Wrap(errors.ErrExpired, "record")},
		"member of multi":    {want: errors.ErrValidation, got: errors.Append(errors.ErrEmpty, errors.ErrValidation)},
		"different kind":     {want: errors.ErrExpired, got: errors.Wrap(errors.ErrNotFound, "record"), wantFail: true},
		"missing error":      {want: errors.ErrConflict, wantFail: true},
		"no error expected":  {},
		"unexpected error":   {got: errors.ErrConflict, wantFail: true},
		"stdlib not a kind":  {want: errors.ErrDatabase, got: stderrors.New("disk"), wantFail: true},
		"stdlib unexpected":  {got: stderrors.New("disk"), wantFail: true},
		"typed nil expected": {got: (*errors.Error)(nil)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			check(t, tc.wantFail, func(r testing.TB) { IsErr(r, tc.want, tc.got) })
		})
	}
}

func TestFieldError(t *testing.T) {
	single := errors.Field("Target", errors.ErrValidation, "zero address")
	many := errors.Append(
		errors.Field("Data", errors.ErrEmpty, "first"),
		errors.Field("Data", errors.ErrValidation, "second"),
	)
	cases := map[string]struct {
		err      error
		field    string
		want     *errors.Error
		wantFail bool
	}{
		"found":                    {err: single, field: "Target", want: errors.ErrValidation},
		"absent as expected":       {err: single, field: "Description"},
		"present but not expected": {err: single, field: "Target", wantFail: true},
		"wrong kind":               {err: single, field: "Target", want: errors.ErrExpired, wantFail: true},
		"other field":              {err: single, field: "Value", want: errors.ErrValidation, wantFail: true},
		"one of many":              {err: many, field: "Data", want: errors.ErrValidation},
		"no error at all":          {field: "Data", want: errors.ErrValidation, wantFail: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			check(t, tc.wantFail, func(r testing.TB) { FieldError(r, tc.err, tc.field, tc.want) })
		})
	}
}

func TestNil(t *testing.T) {
	var nilMap map[string]int
	check(t, false, func(r testing.TB) { Nil(r, nil) })
	check(t, false, func(r testing.TB) { Nil(r, nilMap) })
	check(t, false, func(r testing.TB) { Nil(r, (*errors.Error)(nil)) })
	check(t, true, func(r testing.TB) { Nil(r, errors.ErrConflict) })
	check(t, true, func(r testing.TB) { Nil(r, 0) })
}

func TestEqualAndPanics(t *testing.T) {
	check(t, false, func(r testing.TB) { Equal(r, []byte("a"), []byte("a")) })
	check(t, true, func(r testing.TB) { Equal(r, int64(1), 1) })
	check(t, false, func(r testing.TB) { Panics(r, func() { panic("boom") }) })
	check(t, true, func(r testing.TB) { Panics(r, func() {}) })
}
