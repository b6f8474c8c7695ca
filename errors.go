package ignis

import (
	"fmt"
	"net/http"
)

// ErrorCategory classifies an engine-originated error per the error
// taxonomy: protocol, routing, validation, dependency, handler, capacity,
// timeout.
type ErrorCategory uint8

// Error categories.
const (
	CategoryProtocol ErrorCategory = iota
	CategoryRouting
	CategoryValidation
	CategoryDependency
	CategoryHandler
	CategoryCapacity
	CategoryTimeout
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryProtocol:
		return "protocol"
	case CategoryRouting:
		return "routing"
	case CategoryValidation:
		return "validation"
	case CategoryDependency:
		return "dependency"
	case CategoryHandler:
		return "handler"
	case CategoryCapacity:
		return "capacity"
	case CategoryTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// FieldError describes one offending field in a validation error.
type FieldError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ErrorBody is the structured wire format for every engine-originated error
// response: {error, details?}.
type ErrorBody struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}

// HTTPError is an error carrying the status code and category it should
// produce on the wire. Handlers and middleware may return one directly;
// any other error is wrapped as a CategoryHandler 500 by the engine.
type HTTPError struct {
	Status   int
	Category ErrorCategory
	Message  string
	Details  []FieldError
	Cause    error
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

// Unwrap exposes the underlying cause, if any, to errors.Is/errors.As.
func (e *HTTPError) Unwrap() error { return e.Cause }

// NewHTTPError builds an HTTPError for the given status with a formatted
// message.
func NewHTTPError(status int, category ErrorCategory, format string, args ...interface{}) *HTTPError {
	return &HTTPError{
		Status:   status,
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Protocol-level constructors (§7: 400/413/431, connection closed after
// response).

func errMalformedRequest(reason string) *HTTPError {
	return &HTTPError{Status: http.StatusBadRequest, Category: CategoryProtocol, Message: "malformed request: " + reason}
}

func errHeaderTooLarge() *HTTPError {
	return &HTTPError{Status: http.StatusRequestHeaderFieldsTooLarge, Category: CategoryProtocol, Message: "request header fields too large"}
}

func errBodyTooLarge() *HTTPError {
	return &HTTPError{Status: http.StatusRequestEntityTooLarge, Category: CategoryProtocol, Message: "request body too large"}
}

// Routing-level constructors (§7: 404/405, connection may be kept alive).

func errNotFound() *HTTPError {
	return &HTTPError{Status: http.StatusNotFound, Category: CategoryRouting, Message: "not found"}
}

func errMethodNotAllowed(allowed []string) *HTTPError {
	return &HTTPError{
		Status:   http.StatusMethodNotAllowed,
		Category: CategoryRouting,
		Message:  "method not allowed",
		Details:  methodsAsDetails(allowed),
	}
}

func methodsAsDetails(allowed []string) []FieldError {
	fe := make([]FieldError, len(allowed))
	for i, m := range allowed {
		fe[i] = FieldError{Field: "method", Message: "allowed", Value: m}
	}
	return fe
}

// Validation-level constructors (§7: 422 with field list, 400 for missing
// required parameters).

func errValidation(details []FieldError) *HTTPError {
	return &HTTPError{
		Status:   http.StatusUnprocessableEntity,
		Category: CategoryValidation,
		Message:  "validation failed",
		Details:  details,
	}
}

func errMissingParam(name string) *HTTPError {
	return &HTTPError{
		Status:   http.StatusBadRequest,
		Category: CategoryValidation,
		Message:  fmt.Sprintf("missing required parameter %q", name),
		Details:  []FieldError{{Field: name, Message: "required"}},
	}
}

// Dependency-level constructors (§7: 500 with category, sanitized message,
// cause logged not returned).

func errUnknownService(name string) *HTTPError {
	return &HTTPError{
		Status:   http.StatusInternalServerError,
		Category: CategoryDependency,
		Message:  "dependency resolution failed",
		Cause:    fmt.Errorf("unknown service %q", name),
	}
}

func errDependencyCycle(cycle []string) *HTTPError {
	return &HTTPError{
		Status:   http.StatusInternalServerError,
		Category: CategoryDependency,
		Message:  "dependency resolution failed",
		Cause:    fmt.Errorf("dependency cycle: %v", cycle),
	}
}

func errConstructionFailure(name string, cause error) *HTTPError {
	return &HTTPError{
		Status:   http.StatusInternalServerError,
		Category: CategoryDependency,
		Message:  "dependency resolution failed",
		Cause:    fmt.Errorf("constructing service %q: %w", name, cause),
	}
}

// Handler-level constructor (§7: 500, uncaught handler/middleware error).

func errHandler(cause error) *HTTPError {
	return &HTTPError{
		Status:   http.StatusInternalServerError,
		Category: CategoryHandler,
		Message:  "internal server error",
		Cause:    cause,
	}
}

// Capacity-level constructor (§7: 503, worker pool or accept queue
// saturated).

func errCapacitySaturated() *HTTPError {
	return &HTTPError{
		Status:   http.StatusServiceUnavailable,
		Category: CategoryCapacity,
		Message:  "server at capacity",
	}
}

// Timeout-level constructor (§7: 408 header/body phase). A handler-phase
// 504 would need the dispatch call itself to run under a cancellable
// deadline, which the single-goroutine-per-connection model here doesn't
// give it; HandlerTimeoutMS only sets the connection's read deadline during
// dispatch (see serveOne) and never stops a running handler, so there is no
// 504 constructor to pair with it.

func errReadTimeout() *HTTPError {
	return &HTTPError{Status: http.StatusRequestTimeout, Category: CategoryTimeout, Message: "request timeout"}
}

// sanitize turns any error into the ErrorBody written to the wire. The full
// cause (including an HTTPError's Cause) is never included; logging it is
// left to the caller, as Engine.defaultErrorHandler does.
func sanitize(err error, debug bool) (status int, body ErrorBody) {
	he, ok := err.(*HTTPError)
	if !ok {
		return http.StatusInternalServerError, ErrorBody{Error: errCodeFor(CategoryHandler)}
	}

	code := errCodeFor(he.Category)
	if debug && he.Message != "" {
		code = he.Message
	}

	return he.Status, ErrorBody{Error: code, Details: he.Details}
}

func errCodeFor(c ErrorCategory) string {
	switch c {
	case CategoryProtocol:
		return "protocol_error"
	case CategoryRouting:
		return "routing_error"
	case CategoryValidation:
		return "validation_error"
	case CategoryDependency:
		return "dependency_error"
	case CategoryCapacity:
		return "capacity_error"
	case CategoryTimeout:
		return "timeout_error"
	default:
		return "internal_error"
	}
}
