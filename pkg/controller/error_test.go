package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/nimburion/listing/pkg/listing"
	"github.com/nimburion/listing/pkg/observability/logger"
	"github.com/nimburion/listing/pkg/resilience"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name:     "error without cause",
			appError: NewValidationError("validation failed", nil),
			want:     "validation failed",
		},
		{
			name:     "error with cause",
			appError: NewInternalError("database error", errors.New("connection timeout")),
			want:     "database error: connection timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appError.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	if unwrapped := NewInternalError("boom", cause).Unwrap(); unwrapped != cause {
		t.Errorf("AppError.Unwrap() = %v, want %v", unwrapped, cause)
	}
}

func TestMapError(t *testing.T) {
	ctx := logger.ContextWithRequestID(context.Background(), "req-123")

	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantCategory  string
		wantCode      string
		wantDetailKey string
	}{
		{
			name:          "invalid sort field",
			err:           fmt.Errorf("%w: %q is not sortable for tasks", listing.ErrInvalidSortField, "password"),
			wantStatus:    http.StatusBadRequest,
			wantCategory:  "validation_error",
			wantCode:      "validation.invalid_sort_field",
			wantDetailKey: "reason",
		},
		{
			name:         "unknown entity",
			err:          fmt.Errorf("%w: widgets", listing.ErrUnknownEntity),
			wantStatus:   http.StatusNotFound,
			wantCategory: "not_found",
			wantCode:     "resource.not_found",
		},
		{
			name:          "query failure",
			err:           &listing.QueryExecutionError{Entity: "tasks", Phase: listing.PhaseCount, Err: errors.New("down")},
			wantStatus:    http.StatusInternalServerError,
			wantCategory:  "internal_server_error",
			wantCode:      "listing.query_failed",
			wantDetailKey: "phase",
		},
		{
			name:          "validation error",
			err:           NewValidationError("malformed request body", map[string]interface{}{"reason": "eof"}),
			wantStatus:    http.StatusBadRequest,
			wantCategory:  "validation_error",
			wantCode:      "validation.failed",
			wantDetailKey: "reason",
		},
		{
			name:          "store timeout",
			err:           &listing.QueryExecutionError{Entity: "comments", Phase: listing.PhaseQuery, Err: &resilience.TimeoutError{Limit: time.Second}},
			wantStatus:    http.StatusGatewayTimeout,
			wantCategory:  "timeout",
			wantCode:      "listing.query_timeout",
			wantDetailKey: "entity",
		},
		{
			name:         "wrapped app error without status",
			err:          fmt.Errorf("handler: %w", &AppError{Code: "auth.forbidden", Message: "no"}),
			wantStatus:   http.StatusInternalServerError,
			wantCategory: "internal_server_error",
			wantCode:     "auth.forbidden",
		},
		{
			name:         "unknown error",
			err:          errors.New("something odd"),
			wantStatus:   http.StatusInternalServerError,
			wantCategory: "internal_server_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := MapError(ctx, tt.err)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if resp.Error != tt.wantCategory {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantCategory)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
			if resp.RequestID != "req-123" {
				t.Errorf("request_id = %q", resp.RequestID)
			}
			if resp.Message == "" {
				t.Error("message must not be empty")
			}
			if tt.wantDetailKey != "" {
				if _, ok := resp.Details[tt.wantDetailKey]; !ok {
					t.Errorf("details = %v, missing %q", resp.Details, tt.wantDetailKey)
				}
			}
		})
	}
}

func TestMapError_DoesNotLeakCause(t *testing.T) {
	err := &listing.QueryExecutionError{Entity: "users", Phase: listing.PhaseQuery, Err: errors.New("mongodb://admin:pw@db")}
	_, resp := MapError(context.Background(), err)
	if resp.Message != "failed to retrieve listing" {
		t.Fatalf("message = %q", resp.Message)
	}
	for _, v := range resp.Details {
		if s, ok := v.(string); ok && s == err.Err.Error() {
			t.Fatal("store error must not reach the client")
		}
	}
}
