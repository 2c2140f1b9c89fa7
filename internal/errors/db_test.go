package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_Codes(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  ErrorCode
		wantField string
		wantMsg   string
	}{
		{
			name:     "deadline exceeded",
			err:      fmt.Errorf("query: %w", context.DeadlineExceeded),
			wantCode: ErrCodeTimeout,
		},
		{
			name:     "canceled",
			err:      context.Canceled,
			wantCode: ErrCodeCanceled,
		},
		{
			name:     "no rows",
			err:      pgx.ErrNoRows,
			wantCode: ErrCodeNotFound,
		},
		{
			name: "duplicate record key from detail",
			err: &pgconn.PgError{
				Code:      pgerrcode.UniqueViolation,
				TableName: "record_results",
				Detail:    "Key (job_id, record_id)=(job-1, 3) already exists.",
			},
			wantCode:  ErrCodeConflict,
			wantField: "job_id, record_id",
			wantMsg:   "record result already exists",
		},
		{
			name:      "duplicate job with column metadata",
			err:       &pgconn.PgError{Code: pgerrcode.UniqueViolation, TableName: "screening_jobs", ColumnName: "job_id"},
			wantCode:  ErrCodeConflict,
			wantField: "job_id",
			wantMsg:   "screening job already exists",
		},
		{
			name:     "result for missing job",
			err:      &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, TableName: "record_results"},
			wantCode: ErrCodeForeignKey,
			wantMsg:  "record result references a missing screening job",
		},
		{
			name:      "score out of range",
			err:       &pgconn.PgError{Code: pgerrcode.CheckViolation, TableName: "record_results", ColumnName: "risk_score"},
			wantCode:  ErrCodeValidation,
			wantField: "risk_score",
			wantMsg:   "invalid record result value",
		},
		{
			name:     "not null on unknown table",
			err:      &pgconn.PgError{Code: pgerrcode.NotNullViolation, TableName: "audit_log"},
			wantCode: ErrCodeValidation,
			wantMsg:  "invalid audit log value",
		},
		{
			name:     "serialization failure",
			err:      &pgconn.PgError{Code: pgerrcode.SerializationFailure},
			wantCode: ErrCodeUnavailable,
		},
		{
			name:     "too many connections",
			err:      &pgconn.PgError{Code: pgerrcode.TooManyConnections},
			wantCode: ErrCodeUnavailable,
		},
		{
			name:     "syntax error",
			err:      &pgconn.PgError{Code: pgerrcode.SyntaxError},
			wantCode: ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			if got := GetCode(err); got != tt.wantCode {
				t.Fatalf("code = %q, want %q", got, tt.wantCode)
			}
			if got := GetField(err); got != tt.wantField {
				t.Errorf("field = %q, want %q", got, tt.wantField)
			}
			var appErr *AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *AppError, got %T", err)
			}
			if tt.wantMsg != "" && appErr.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", appErr.Message, tt.wantMsg)
			}
			if !errors.Is(err, tt.err) && !errors.Is(err, errors.Unwrap(tt.err)) {
				t.Errorf("cause not preserved in %v", err)
			}
		})
	}
}

func TestMapDBError_StandardError(t *testing.T) {
	orig := errors.New("boom")
	if err := MapDBError(orig); err != orig {
		t.Errorf("MapDBError() = %v, want original error", err)
	}
}

func TestTransient(t *testing.T) {
	if !Transient(MapDBError(&pgconn.PgError{Code: pgerrcode.DeadlockDetected})) {
		t.Error("deadlock should be transient")
	}
	if !Transient(MapDBError(context.DeadlineExceeded)) {
		t.Error("timeout should be transient")
	}
	if Transient(MapDBError(&pgconn.PgError{Code: pgerrcode.CheckViolation})) {
		t.Error("check violation should not be transient")
	}
	if Transient(errors.New("plain")) {
		t.Error("uncoded error should not be transient")
	}
}
