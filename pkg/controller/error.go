package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/nimburion/listing/pkg/listing"
	"github.com/nimburion/listing/pkg/observability/logger"
	"github.com/nimburion/listing/pkg/resilience"
)

const internalMessage = "an unexpected error occurred"

// AppError is an error with an HTTP mapping. Message and Details reach the
// client; Cause never does.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// ErrorResponse is the body of every non-2xx listing response.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Code      string                 `json:"code,omitempty"`
	Message   string                 `json:"message,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// NewValidationError reports a malformed request.
func NewValidationError(message string, details map[string]interface{}) *AppError {
	return &AppError{Code: "validation.failed", Message: message, HTTPStatus: http.StatusBadRequest, Details: details}
}

// NewNotFoundError reports a missing resource.
func NewNotFoundError(message string) *AppError {
	return &AppError{Code: "resource.not_found", Message: message, HTTPStatus: http.StatusNotFound}
}

// NewInternalError hides cause behind message.
func NewInternalError(message string, cause error) *AppError {
	return &AppError{Code: "internal.error", Message: message, HTTPStatus: http.StatusInternalServerError, Cause: cause}
}

// listingRules translate engine errors, first match wins. A timeout is a
// query failure too, so it is listed before the generic one.
var listingRules = []func(error) *AppError{
	func(err error) *AppError {
		if !errors.Is(err, listing.ErrInvalidSortField) {
			return nil
		}
		return &AppError{
			Code:       "validation.invalid_sort_field",
			Message:    "invalid sort field",
			HTTPStatus: http.StatusBadRequest,
			Details:    map[string]interface{}{"reason": err.Error()},
			Cause:      err,
		}
	},
	func(err error) *AppError {
		if !errors.Is(err, listing.ErrUnknownEntity) {
			return nil
		}
		return &AppError{Code: "resource.not_found", Message: "unknown entity", HTTPStatus: http.StatusNotFound, Cause: err}
	},
	func(err error) *AppError {
		var qe *listing.QueryExecutionError
		if !errors.As(err, &qe) || !errors.Is(err, resilience.ErrTimeout) {
			return nil
		}
		return &AppError{
			Code:       "listing.query_timeout",
			Message:    "listing took too long to retrieve",
			HTTPStatus: http.StatusGatewayTimeout,
			Details:    map[string]interface{}{"entity": qe.Entity, "phase": qe.Phase},
			Cause:      err,
		}
	},
	func(err error) *AppError {
		var qe *listing.QueryExecutionError
		if !errors.As(err, &qe) {
			return nil
		}
		return &AppError{
			Code:       "listing.query_failed",
			Message:    "failed to retrieve listing",
			HTTPStatus: http.StatusInternalServerError,
			Details:    map[string]interface{}{"entity": qe.Entity, "phase": qe.Phase},
			Cause:      err,
		}
	},
}

func classify(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, rule := range listingRules {
		if appErr := rule(err); appErr != nil {
			return appErr
		}
	}
	return nil
}

// MapError picks the status and body for err. Anything unrecognised is an
// opaque 500.
func MapError(ctx context.Context, err error) (int, ErrorResponse) {
	resp := ErrorResponse{RequestID: logger.RequestIDFromContext(ctx)}

	appErr := classify(err)
	if appErr == nil {
		resp.Error = category(http.StatusInternalServerError)
		resp.Message = internalMessage
		return http.StatusInternalServerError, resp
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	resp.Error = category(status)
	resp.Code = appErr.Code
	resp.Message = appErr.Message
	if resp.Message == "" {
		resp.Message = internalMessage
	}
	resp.Details = appErr.Details
	return status, resp
}

func category(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusGatewayTimeout:
		return "timeout"
	}
	if status >= 500 {
		return "internal_server_error"
	}
	return "application_error"
}
