package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
		expectText string
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
			expectText: "file not found: no such file",
		},
		{
			name:       "parse error",
			category:   CategoryParse,
			code:       CodeInvalidFormat,
			message:    "invalid format",
			expectCode: 3,
			expectText: "invalid format",
		},
		{
			name:       "not found",
			category:   CategoryNotFound,
			code:       CodeEntityNotFound,
			message:    "missing",
			expectCode: 5,
			expectText: "missing",
		},
		{
			name:       "concurrency",
			category:   CategoryConcurrency,
			code:       CodeAlreadyMatched,
			message:    "claimed",
			expectCode: 6,
			expectText: "claimed",
		},
		{
			name:       "storage",
			category:   CategoryStorage,
			code:       CodeStorageFailure,
			message:    "disk",
			cause:      errors.New("locked"),
			expectCode: 7,
			expectText: "disk: locked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.expectText {
				t.Errorf("expected error string %q, got %q", tt.expectText, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
		})
	}
}

func TestReconcilerErrorWithContext(t *testing.T) {
	err := New(CategoryFile, CodeFileNotFound, "test error").
		WithContext("file", "/path/to/file").
		WithContext("line", 42).
		WithSuggestion("check file path")

	if err.Context["file"] != "/path/to/file" {
		t.Errorf("expected file context, got %v", err.Context["file"])
	}
	if err.Context["line"] != 42 {
		t.Errorf("expected line context 42, got %v", err.Context["line"])
	}

	expected := "test error (suggestion: check file path)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestTaxonomyConstructors(t *testing.T) {
	t.Run("ParseError", func(t *testing.T) {
		err := ParseError(CodeInvalidDate, "stmt.csv", 7, "date", "31/31/2024", nil)
		if !IsParse(err) {
			t.Fatalf("expected parse category, got %s", err.Category)
		}
		if err.Context["line"] != 7 {
			t.Errorf("expected line 7, got %v", err.Context["line"])
		}
		if err.Context["value"] != "31/31/2024" {
			t.Errorf("expected offending value in context, got %v", err.Context["value"])
		}
	})

	t.Run("NotFoundError", func(t *testing.T) {
		err := NotFoundError("statement item", "abc")
		if !IsNotFound(err) {
			t.Fatalf("expected not_found category, got %s", err.Category)
		}
		if err.Message != "statement item not found: abc" {
			t.Errorf("unexpected message %q", err.Message)
		}
	})

	t.Run("ConcurrencyError", func(t *testing.T) {
		err := ConcurrencyError("txn-1", "item-9")
		if !IsConcurrency(err) {
			t.Fatalf("expected concurrency category, got %s", err.Category)
		}
		if err.Context["claimed_by"] != "item-9" {
			t.Errorf("expected claimed_by context, got %v", err.Context["claimed_by"])
		}
	})

	t.Run("InvalidStateError", func(t *testing.T) {
		err := InvalidStateError("reconciliation", "r1", "RECONCILED", "IN_PROGRESS")
		if !IsValidation(err) || err.Code != CodeInvalidState {
			t.Fatalf("expected validation/invalid_state, got %s/%s", err.Category, err.Code)
		}
	})

	t.Run("StorageError migration code", func(t *testing.T) {
		err := StorageError("migrate v2", errors.New("syntax"))
		if err.Code != CodeMigration {
			t.Errorf("expected migration code, got %s", err.Code)
		}
	})
}

func TestCategoryHelpersFollowWrapChain(t *testing.T) {
	base := NotFoundError("reconciliation", "r1")
	wrapped := fmt.Errorf("loading: %w", base)

	if !IsNotFound(wrapped) {
		t.Error("expected IsNotFound through fmt wrap")
	}
	if IsConcurrency(wrapped) {
		t.Error("did not expect concurrency category")
	}
	if CategoryOf(errors.New("plain")) != CategoryInternal {
		t.Error("expected plain errors to be internal")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	if WrapIfNeeded(nil, CategoryInternal, CodeUnexpectedError, "x") != nil {
		t.Error("expected nil for nil error")
	}

	original := ValidationError(CodeMissingField, "accountId", "", nil)
	if got := WrapIfNeeded(original, CategoryInternal, CodeUnexpectedError, "x"); got != original {
		t.Error("expected existing ReconcilerError to be returned unchanged")
	}

	plain := errors.New("boom")
	got := WrapIfNeeded(plain, CategoryStorage, CodeStorageFailure, "write")
	if got.Category != CategoryStorage || got.Cause != plain {
		t.Errorf("expected wrapped storage error, got %+v", got)
	}
}

func TestErrorSummary(t *testing.T) {
	empty := NewErrorSummary(nil)
	if empty.Error() != "no errors" || empty.GetExitCode() != 0 {
		t.Errorf("unexpected empty summary: %q %d", empty.Error(), empty.GetExitCode())
	}

	errs := []*ReconcilerError{
		ParseError(CodeInvalidAmount, "a.csv", 2, "amount", "x", nil),
		ParseError(CodeInvalidDate, "a.csv", 3, "date", "y", nil),
		ConcurrencyError("t1", ""),
	}
	summary := NewErrorSummary(errs)

	if summary.Total != 3 {
		t.Errorf("expected 3 errors, got %d", summary.Total)
	}
	if summary.ByCategory[CategoryParse] != 2 {
		t.Errorf("expected 2 parse errors, got %d", summary.ByCategory[CategoryParse])
	}
	if !summary.HasCode(CodeAlreadyMatched) {
		t.Error("expected already_matched code")
	}
	if summary.HasCategory(CategoryFile) {
		t.Error("did not expect file category")
	}
	if summary.GetExitCode() != 6 {
		t.Errorf("expected highest exit code 6, got %d", summary.GetExitCode())
	}
}
