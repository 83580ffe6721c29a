package cmd

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"golang-bank-reconciliation/pkg/errors"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		verbose    bool
		exitCode   int
		expectText []string
	}{
		{
			name:     "nil error",
			err:      nil,
			exitCode: 0,
		},
		{
			name:       "file error",
			err:        errors.FileError(errors.CodeFileNotFound, "/tmp/jan.csv", os.ErrNotExist),
			exitCode:   2,
			expectText: []string{"Error: ", "file_path: /tmp/jan.csv", "File error help"},
		},
		{
			name: "parse error with suggestion",
			err: errors.ParseError(errors.CodeInvalidAmount, "jan.csv", 4, "amount", "12,3,4", nil).
				WithSuggestion("check the decimal separator"),
			exitCode:   3,
			expectText: []string{"Suggestion: check the decimal separator", "Parse error help"},
		},
		{
			name:       "conflict",
			err:        errors.ConcurrencyError("L1", "item-7"),
			exitCode:   6,
			expectText: []string{"Conflict help"},
		},
		{
			name:       "wrapped not found",
			err:        fmt.Errorf("loading: %w", errors.NotFoundError("statement", "jan")),
			exitCode:   5,
			expectText: []string{"Not found help"},
		},
		{
			name:       "verbose shows cause",
			err:        errors.StorageError("save statement", stderrors.New("database is locked")),
			verbose:    true,
			exitCode:   7,
			expectText: []string{"Underlying error: database is locked"},
		},
		{
			name:       "os error",
			err:        &os.PathError{Op: "open", Path: "x.csv", Err: os.ErrPermission},
			exitCode:   2,
			expectText: []string{"file permissions"},
		},
		{
			name:       "usage error",
			err:        stderrors.New(`unknown flag: --bogus`),
			exitCode:   1,
			expectText: []string{"unknown flag", "reconciler --help"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			code := NewCLIErrorHandler(&out, tt.verbose).HandleError(tt.err)
			if code != tt.exitCode {
				t.Errorf("expected exit code %d, got %d", tt.exitCode, code)
			}
			for _, text := range tt.expectText {
				if !strings.Contains(out.String(), text) {
					t.Errorf("expected %q in output:\n%s", text, out.String())
				}
			}
		})
	}
}

func TestFormatValidationErrors(t *testing.T) {
	if got := FormatValidationErrors(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}

	single := FormatValidationErrors([]error{stderrors.New("bad row")})
	if single != "Validation error: bad row" {
		t.Errorf("unexpected single error format: %q", single)
	}

	var errs []error
	for i := 0; i < 12; i++ {
		code := errors.CodeInvalidDate
		if i%3 == 0 {
			code = errors.CodeInvalidAmount
		}
		errs = append(errs, errors.ParseError(code, "jan.csv", i+2, "col", "x", nil))
	}
	got := FormatValidationErrors(errs)

	for _, text := range []string{
		"Found 12 validation errors:",
		"... and 2 more errors",
		"By code: invalid_amount: 4, invalid_date: 8",
	} {
		if !strings.Contains(got, text) {
			t.Errorf("expected %q in:\n%s", text, got)
		}
	}
	if strings.Contains(got, "11.") {
		t.Errorf("expected at most ten listed errors:\n%s", got)
	}
}
