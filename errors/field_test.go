package errors

import (
	"testing"
)

func TestFieldErrors(t *testing.T) {
	err := Append(
		Field("Target", ErrValidation, "must not be zero"),
		Field("Description", ErrEmpty, "required"),
		Field("SubOperations.1.Data", ErrValidation, "selector too short"),
	)

	if errs := FieldErrors(err, "Target"); len(errs) != 1 || !ErrValidation.Is(errs[0]) {
		t.Fatalf("unexpected Target errors: %v", errs)
	}
	if errs := FieldErrors(err, "Description"); len(errs) != 1 || !ErrEmpty.Is(errs[0]) {
		t.Fatalf("unexpected Description errors: %v", errs)
	}
	if errs := FieldErrors(err, "SubOperations.1.Data"); len(errs) != 1 {
		t.Fatalf("unexpected nested errors: %v", errs)
	}
	if errs := FieldErrors(err, "Value"); len(errs) != 0 {
		t.Fatalf("want no Value errors, got %v", errs)
	}
}

func TestFieldNil(t *testing.T) {
	if err := Field("Target", nil, "ignored"); err != nil {
		t.Fatalf("want nil, got %v", err)
	}
	if err := AppendField(nil, "Target", nil); err != nil {
		t.Fatalf("want nil, got %v", err)
	}
}

func TestFieldMessage(t *testing.T) {
	err := Field("Value", ErrValidation, "exceeds %d bits", 256)
	want := `field "Value": exceeds 256 bits: validation error`
	if err.Error() != want {
		t.Fatalf("want %q, got %q", want, err.Error())
	}
}

func TestFields(t *testing.T) {
	err := Append(
		Field("Target", ErrValidation, "must not be zero"),
		Wrap(Field("Value", ErrValidation, "negative"), "proposal"),
		Field("Target", ErrEmpty, "required"),
		ErrConflict,
	)
	got := Fields(err)
	if len(got) != 2 || got[0] != "Target" || got[1] != "Value" {
		t.Fatalf("unexpected fields: %q", got)
	}
	if got := Fields(ErrNotFound); len(got) != 0 {
		t.Fatalf("want no fields, got %q", got)
	}
	if got := Fields(nil); len(got) != 0 {
		t.Fatalf("want no fields, got %q", got)
	}
}
