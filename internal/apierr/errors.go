// Package apierr provides standardized error handling for the plugin host.
//
// It implements a consistent error format across boot-time and request-time
// failures:
//   - Structured error responses with machine-readable codes
//   - Automatic HTTP status code mapping
//   - Optional details for debugging (serialized into the response whenever set)
//
// Boot-time kinds (DependencyCycle, UnregisteredRule, BrokerUnavailable) are
// returned as plain errors during boot; cmd/server aborts startup via
// log.Fatal when plugin boot fails. UnregisteredRule also reaches HTTP
// callers: RoleRepo.SetRoleRules returns it (500) for a rule id that does
// not exist. Request-time kinds map to the JSON envelope below.
package apierr

import (
	"fmt"
	"net/http"
)

// Error is a standardized application error with HTTP context.
type Error struct {
	// Code is a machine-readable identifier, UPPER_SNAKE_CASE.
	Code string `json:"code"`
	// Message is human-readable and safe to show to the caller.
	Message string `json:"message"`
	// Details carries debugging context; it is included in every response where it is set.
	Details string `json:"details,omitempty"`
	// StatusCode is the HTTP status to return; not serialized.
	StatusCode int `json:"-"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Response is the JSON envelope returned to HTTP callers.
type Response struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (e *Error) ToResponse() Response {
	return Response{Error: e.Code, Message: e.Message, Code: e.Code, Details: e.Details}
}

// Error codes, taken from spec.md §7.
const (
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeBadRequest          = "BAD_REQUEST"
	CodeConflict            = "CONFLICT"
	CodeDependencyCycle     = "DEPENDENCY_CYCLE"
	CodeUnregisteredRule    = "UNREGISTERED_RULE"
	CodeInvalidConfig       = "INVALID_CONFIG"
	CodeIsolationViolation  = "ISOLATION_VIOLATION"
	CodeBrokerUnavailable   = "BROKER_UNAVAILABLE"
	CodeInternal            = "INTERNAL_SERVER_ERROR"
	CodeAlreadyCompleted    = "ALREADY_COMPLETED"
)

func statusFor(code string) int {
	switch code {
	case CodeBadRequest, CodeInvalidConfig, CodeAlreadyCompleted:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeIsolationViolation:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeBrokerUnavailable:
		return http.StatusServiceUnavailable
	case CodeDependencyCycle, CodeUnregisteredRule, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func New(code, message string) *Error {
	return &Error{Code: code, Message: message, StatusCode: statusFor(code)}
}

func NewWithDetails(code, message, details string) *Error {
	return &Error{Code: code, Message: message, Details: details, StatusCode: statusFor(code)}
}

func Wrap(code, message string, err error) *Error {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return NewWithDetails(code, message, details)
}

// Convenience constructors mirroring the taxonomy in spec.md §7.

func Unauthorized(message string) *Error { return New(CodeUnauthorized, message) }

func Forbidden(message string) *Error { return New(CodeForbidden, message) }

func NotFound(resource string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func BadRequest(message string) *Error { return New(CodeBadRequest, message) }

func Conflict(message string) *Error { return New(CodeConflict, message) }

func DependencyCycle(detail string) *Error {
	return NewWithDetails(CodeDependencyCycle, "plugin service dependency graph has a cycle", detail)
}

func UnregisteredRule(pluginID, rule string) *Error {
	return NewWithDetails(CodeUnregisteredRule, "contract references an undeclared access rule",
		fmt.Sprintf("plugin=%s rule=%s", pluginID, rule))
}

func InvalidConfig(message string) *Error { return New(CodeInvalidConfig, message) }

func IsolationViolation(message string) *Error { return New(CodeIsolationViolation, message) }

func BrokerUnavailable(err error) *Error {
	return Wrap(CodeBrokerUnavailable, "queue broker is unavailable", err)
}

func Internal(err error) *Error {
	return Wrap(CodeInternal, "internal server error", err)
}

func AlreadyCompleted(message string) *Error { return New(CodeAlreadyCompleted, message) }
