package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "message only",
			err:  &AppError{Code: ErrCodeNotFound, Message: "job not found"},
			want: "job not found",
		},
		{
			name: "with cause",
			err:  &AppError{Code: ErrCodeInternal, Message: "database error", Cause: errors.New("conn reset")},
			want: "database error: conn reset",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("throttled")
	err := Wrapf(cause, ErrCodeUnavailable, "put %s", "job-1")
	if err.Message != "put job-1" {
		t.Errorf("Message = %q", err.Message)
	}
	if !errors.Is(err, cause) {
		t.Error("Wrapf should preserve the cause")
	}
	if Wrap(nil, ErrCodeInternal, "x") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestCodeHelpers(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NotFoundf("job %s", "job-1"))
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound should see through wrapping")
	}
	if IsConflict(wrapped) || IsValidation(wrapped) || IsUnavailable(wrapped) {
		t.Error("unexpected code match")
	}
	if !IsValidation(Validationf("bad %d", 1)) {
		t.Error("Validationf should carry ErrCodeValidation")
	}
	if GetCode(errors.New("plain")) != "" {
		t.Error("GetCode of a plain error should be empty")
	}
}

func TestGetField(t *testing.T) {
	err := fmt.Errorf("insert: %w", &AppError{Code: ErrCodeConflict, Field: "record_id"})
	if got := GetField(err); got != "record_id" {
		t.Errorf("GetField() = %q, want record_id", got)
	}
	if got := GetField(errors.New("plain")); got != "" {
		t.Errorf("GetField() = %q, want empty", got)
	}
}
