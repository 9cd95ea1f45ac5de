/*
Package assert holds the assertions shared by the store, orm and coordinator
tests. Error assertions compare kinds, and a failure names the kind and code
that was found.
*/
package assert

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/rafamiziara/superpool-sub007/errors"
)

// Nil fails the test unless value is nil. A nil pointer, map or slice
// stored in an interface counts as nil.
func Nil(t testing.TB, value interface{}) {
	t.Helper()
	if isNil(value) {
		return
	}
	if err, ok := value.(error); ok {
		t.Fatalf("unexpected %s error: %+v", describe(err), err)
	}
	t.Fatalf("want nil, got %T %v", value, value)
}

func isNil(value interface{}) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// Equal fails the test unless want and got are deeply equal.
func Equal(t testing.TB, want, got interface{}) {
	t.Helper()
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("not equal\nwant %T %#v\n got %T %#v", want, want, got, got)
	}
}

// Panics fails the test unless fn panics.
func Panics(t testing.TB, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatal("want a panic")
		}
	}()
	fn()
}

// IsErr fails the test unless got is of the kind want. A nil want expects
// no error at all.
func IsErr(t testing.TB, want *errors.Error, got error) {
	t.Helper()
	switch {
	case want == nil && isNil(got):
		return
	case want == nil:
		t.Fatalf("want no error, got %s: %+v", describe(got), got)
	case want.Is(got):
		return
	case isNil(got):
		t.Fatalf("want %s, got no error", describe(want))
	default:
		t.Fatalf("want %s, got %s: %+v", describe(want), describe(got), got)
	}
}

// FieldError fails the test unless err attributes an error of the kind want
// to fieldName. A nil want expects no error for that field.
func FieldError(t testing.TB, err error, fieldName string, want *errors.Error) {
	t.Helper()
	errs := errors.FieldErrors(err, fieldName)
	if want == nil {
		if len(errs) > 0 {
			t.Fatalf("want no %q error, got %v", fieldName, errs)
		}
		return
	}
	for _, e := range errs {
		if want.Is(e) {
			return
		}
	}
	if len(errs) == 0 {
		t.Fatalf("no %q error, errors are attributed to %q: %v", fieldName, errors.Fields(err), err)
	}
	t.Fatalf("no %s among %q errors %v", describe(want), fieldName, errs)
}

// describe names the kind and the code of err.
func describe(err error) string {
	code, kind, _ := errors.Info(err, false)
	return fmt.Sprintf("%q (code %d)", kind, code)
}
