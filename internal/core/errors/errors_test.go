package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeEmptyInput, "version set is empty")
		if err.Error() != "[EMPTY_INPUT] version set is empty" {
			t.Errorf("expected [EMPTY_INPUT] version set is empty, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("permission denied")
		err := Wrap(original, CodeIO, "read unit")
		expected := "[IO_ERROR] read unit: permission denied"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeTimeout, "pytest exceeded 60s")
		if !IsCode(err, CodeTimeout) {
			t.Error("expected IsCode to return true for CodeTimeout")
		}
		if IsCode(err, CodeParse) {
			t.Error("expected IsCode to return false for CodeParse")
		}
	})

	t.Run("IsCodeThroughFmtWrap", func(t *testing.T) {
		inner := New(CodeToolUnavailable, "ruff not found")
		err := fmt.Errorf("lint stage: %w", inner)
		if !IsCode(err, CodeToolUnavailable) {
			t.Error("expected IsCode to see through fmt.Errorf wrapping")
		}
		if CodeOf(err) != CodeToolUnavailable {
			t.Errorf("expected CodeOf=%s, got %s", CodeToolUnavailable, CodeOf(err))
		}
	})

	t.Run("AddContextPromotesPlainErrors", func(t *testing.T) {
		err := AddContext(errors.New("boom"), CtxUnit, "a/utils.py")
		if !IsCode(err, CodeInternal) {
			t.Fatalf("expected plain error to be promoted to CodeInternal, got %v", err)
		}
		var de *DomainError
		if !errors.As(err, &de) || de.Context[CtxUnit] != "a/utils.py" {
			t.Fatalf("expected unit context to be attached, got %+v", de)
		}
	})

	t.Run("CodeOfPlainError", func(t *testing.T) {
		if CodeOf(errors.New("plain")) != "" {
			t.Error("expected empty code for plain errors")
		}
	})
}
