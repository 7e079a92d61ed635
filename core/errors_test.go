package core

import (
	"reflect"
	"testing"

	"github.com/pkg/errors"
)

func TestValidationError(t *testing.T) {
	bare := ValidationError{Err: errors.New("nope")}
	if got := bare.Error(); got != "nope" {
		t.Errorf("Error() = %q; want %q", got, "nope")
	}
	if got := bare.FieldMap(); len(got) != 0 {
		t.Errorf("FieldMap() = %v; want empty", got)
	}

	flds := ValidationError{Fields: []FieldError{
		{Field: "concept", Error: "concept is required"},
		{Field: "sheet", Error: "answer sheet image is required"},
	}}
	if got := flds.Error(); got != "" {
		t.Errorf("Error() = %q; want empty", got)
	}
	want := map[string]string{
		"concept": "concept is required",
		"sheet":   "answer sheet image is required",
	}
	if got := flds.FieldMap(); !reflect.DeepEqual(got, want) {
		t.Errorf("FieldMap() = %v; want %v", got, want)
	}
}

func TestIsShutdown(t *testing.T) {
	err := NewShutdownError("integrity issue")
	if !IsShutdown(errors.Wrap(err, "handling request")) {
		t.Error("expected a shutdown error")
	}
	if IsShutdown(errors.New("lol")) {
		t.Error("unexpected shutdown error")
	}
}
