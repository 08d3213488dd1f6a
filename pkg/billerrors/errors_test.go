// Copyright 2025 Certen Protocol

package billerrors

import (
	"errors"
	"testing"
)

func TestIsMatchesByKindOnly(t *testing.T) {
	err := FieldError(KindPayloadInvalid, "sum")
	target := New(KindPayloadInvalid)
	if !errors.Is(err, target) {
		t.Fatalf("expected errors.Is to match on Kind regardless of Field")
	}

	other := New(KindInvalidSum)
	if errors.Is(err, other) {
		t.Fatalf("errors.Is matched across different Kinds")
	}
}

func TestUnwrapExposesUnderlyingCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindStoreIO, cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to reach the wrapped cause")
	}
}

func TestPayloadShorthand(t *testing.T) {
	err := Payload("currency")
	if err.Kind != KindPayloadInvalid || err.Field != "currency" {
		t.Fatalf("Payload shorthand built unexpected error: %+v", err)
	}
}

func TestErrorStringVariants(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want string
	}{
		{"bare", New(KindBillAlreadyAccepted), "BillAlreadyAccepted"},
		{"field", FieldError(KindPayloadInvalid, "sum"), "PayloadInvalid(sum)"},
	}
	for _, c := range cases {
		if got := c.err.Error(); got != c.want {
			t.Errorf("%s: Error() = %q, want %q", c.name, got, c.want)
		}
	}

	wrapped := Wrap(KindStoreIO, errors.New("disk full"))
	if got, want := wrapped.Error(), "StoreIO: disk full"; got != want {
		t.Errorf("wrapped: Error() = %q, want %q", got, want)
	}
}
