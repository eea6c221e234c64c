package adm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these errors.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("adm: not found")

	// ErrGateway is matched by every error produced by a Gateway.
	ErrGateway = errors.New("adm: gateway error")

	// ErrConnection indicates the backend could not be reached.
	ErrConnection = errors.New("adm: connection error")

	// ErrParse indicates a response body was not valid JSON.
	ErrParse = errors.New("adm: parse error")

	// Status-specific gateway errors

	ErrBadRequest          = errors.New("adm: bad request")
	ErrUnauthorized        = errors.New("adm: unauthorized")
	ErrForbidden           = errors.New("adm: forbidden")
	ErrConflict            = errors.New("adm: conflict")
	ErrUnprocessableEntity = errors.New("adm: unprocessable entity")
	ErrRequestTimeout      = errors.New("adm: request timeout")
	ErrTooManyRequests     = errors.New("adm: too many requests")
	ErrServerError         = errors.New("adm: server error")

	// Registry related errors

	// ErrLoaderNotFound indicates no resolver is registered for a registry key.
	ErrLoaderNotFound = errors.New("adm: loader not found")

	// ErrNilLoader indicates a nil loader function was registered.
	ErrNilLoader = errors.New("adm: nil loader")

	// ErrUnexpectedType indicates a registry value has a different type than requested.
	ErrUnexpectedType = errors.New("adm: unexpected type")

	// Model related errors

	// ErrNilModel indicates a nil model was passed.
	ErrNilModel = errors.New("adm: nil model")

	// ErrNoPrimaryKey indicates a model has no primary key value.
	ErrNoPrimaryKey = errors.New("adm: model has no primary key")

	// ErrNoDAO indicates a model is not bound to a DAO and cannot reload.
	ErrNoDAO = errors.New("adm: model has no dao")

	// ErrUnknownAttribute indicates an attribute not declared in the model schema.
	ErrUnknownAttribute = errors.New("adm: unknown attribute")
)

// GatewayError describes a failed gateway call.
type GatewayError struct {
	// Kind is one of the sentinel errors above (ErrNotFound, ErrServerError...).
	Kind   error
	Method string
	Path   string
	Status int
	Body   string
	Err    error

	// Message, when set, is the complete error text. Not-found outcomes
	// replayed from the cache carry the text of the original error here.
	Message string
}

// Error returns the error message.
func (e *GatewayError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	kind := ErrGateway
	if e.Kind != nil {
		kind = e.Kind
	}

	var b strings.Builder
	b.WriteString(kind.Error())
	if e.Method != "" {
		fmt.Fprintf(&b, " on %s %s", e.Method, e.Path)
	} else if e.Path != "" {
		fmt.Fprintf(&b, ": %s", e.Path)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ", body: %s", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Is reports whether target matches this error's kind.
// Every GatewayError matches ErrGateway.
func (e *GatewayError) Is(target error) bool {
	if target == ErrGateway {
		return true
	}
	return e.Kind != nil && target == e.Kind
}

// Unwrap returns the underlying cause.
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a not-found GatewayError for path.
func NewNotFoundError(method, path string) *GatewayError {
	return &GatewayError{Kind: ErrNotFound, Method: method, Path: path, Status: http.StatusNotFound}
}

// IsNotFound reports whether err signals a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StatusKind maps an HTTP status code to the sentinel describing it.
// It returns nil for successful statuses.
func StatusKind(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusBadRequest:
		return ErrBadRequest
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusRequestTimeout:
		return ErrRequestTimeout
	case status == http.StatusConflict:
		return ErrConflict
	case status == http.StatusUnprocessableEntity:
		return ErrUnprocessableEntity
	case status == http.StatusTooManyRequests:
		return ErrTooManyRequests
	case status >= 500:
		return ErrServerError
	default:
		return ErrGateway
	}
}

// notFoundMessage extracts the message stored when caching a not-found outcome.
func notFoundMessage(err error) string {
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		return gerr.Error()
	}
	return err.Error()
}

// replayedNotFound rebuilds the error for a cached not-found message.
func replayedNotFound(message string) *GatewayError {
	return &GatewayError{Kind: ErrNotFound, Status: http.StatusNotFound, Message: message}
}

// LoaderNotFoundError reports a registry key without a resolver.
type LoaderNotFoundError struct {
	Key string
}

// Error returns the error message.
func (e *LoaderNotFoundError) Error() string {
	return fmt.Sprintf("adm: loader not found for key %q", e.Key)
}

// Is reports whether target matches ErrLoaderNotFound.
func (e *LoaderNotFoundError) Is(target error) bool {
	return target == ErrLoaderNotFound
}

// NewLoaderNotFoundError creates a LoaderNotFoundError.
func NewLoaderNotFoundError(key string) *LoaderNotFoundError {
	return &LoaderNotFoundError{Key: key}
}
