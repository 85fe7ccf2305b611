// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse is the JSON body of every failed API call
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorCode represents standard error codes used across the API
type ErrorCode string

const (
	// Client errors (4xx)
	ErrorCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrorCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrorCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrorCodeTooManyRequests ErrorCode = "TOO_MANY_REQUESTS"
	ErrorCodeUnprocessable   ErrorCode = "UNPROCESSABLE"

	// Server errors (5xx)
	ErrorCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrorCodeTimeout            ErrorCode = "TIMEOUT"
	ErrorCodeDependencyFailure  ErrorCode = "DEPENDENCY_FAILURE"
)

// RequestIDHeader carries the request id echoed in error responses
const RequestIDHeader = "X-Request-ID"

// ServiceError is an error with the HTTP status and code the API reports
type ServiceError struct {
	Message    string
	Code       ErrorCode
	StatusCode int
	Internal   error
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Internal
}

// ToErrorResponse converts a ServiceError to an ErrorResponse
func (e *ServiceError) ToErrorResponse(requestID string) ErrorResponse {
	return ErrorResponse{
		Error:     e.Message,
		Code:      string(e.Code),
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	}
}

// NewServiceError creates a new ServiceError
func NewServiceError(message string, code ErrorCode, statusCode int, internal error) *ServiceError {
	return &ServiceError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeBadRequest, http.StatusBadRequest, internal)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeNotFound, http.StatusNotFound, internal)
}

// NewUnprocessableError reports a well-formed request the service cannot act on
func NewUnprocessableError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeUnprocessable, http.StatusUnprocessableEntity, internal)
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeInternalError, http.StatusInternalServerError, internal)
}

// NewServiceUnavailableError creates a new service unavailable error
func NewServiceUnavailableError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeServiceUnavailable, http.StatusServiceUnavailable, internal)
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeTimeout, http.StatusGatewayTimeout, internal)
}

// NewDependencyFailureError creates a new dependency failure error
func NewDependencyFailureError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeDependencyFailure, http.StatusBadGateway, internal)
}

// AsServiceError converts err to a ServiceError. Context and circuit breaker
// errors get their own codes; anything else becomes an internal error.
func AsServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError("The operation is taking longer than expected. Please try again.", err)
	case errors.Is(err, context.Canceled):
		return NewServiceError("The request was canceled.", ErrorCodeBadRequest, http.StatusBadRequest, err)
	case errors.Is(err, ErrCircuitBreakerOpen):
		return NewServiceUnavailableError("The service is temporarily unavailable. Please try again in a few minutes.", err)
	default:
		return NewInternalError("An error occurred while processing request", err)
	}
}

// WriteError aborts the gin request with the ErrorResponse for err
func WriteError(c *gin.Context, logger *zap.Logger, err error) {
	serviceErr := AsServiceError(err)
	if logger != nil {
		fields := []zap.Field{
			zap.String("path", c.Request.URL.Path),
			zap.String("error_code", string(serviceErr.Code)),
			zap.Int("status_code", serviceErr.StatusCode),
			zap.Error(err),
		}
		if serviceErr.StatusCode >= http.StatusInternalServerError {
			logger.Error("Request failed", fields...)
		} else {
			logger.Debug("Request rejected", fields...)
		}
	}
	c.AbortWithStatusJSON(serviceErr.StatusCode, serviceErr.ToErrorResponse(c.GetHeader(RequestIDHeader)))
}
