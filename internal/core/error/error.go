package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// StoreErrorMessage describes history store failures.
	StoreErrorMessage = "history store operation failed"
	// CompletionErrorMessage describes completion provider failures.
	CompletionErrorMessage = "completion provider failed"
)

// Sentinel errors for the failure modes of a chat turn. Tool-level errors
// (invalid arguments, execution failures, malformed expressions) are
// recoverable: the agent loop feeds them back into the model context as
// observations. Store and completion errors abort the turn.
var (
	ErrStoreUnavailable     = errors.New("history store unavailable")
	ErrInvalidToolArguments = errors.New("invalid tool arguments")
	ErrToolExecution        = errors.New("tool execution failed")
	ErrEvaluation           = errors.New("expression evaluation failed")
	ErrAgentLoopExceeded    = errors.New("agent loop exceeded maximum tool rounds")
	ErrUpstreamCompletion   = errors.New("upstream completion failed")
	ErrStreamAborted        = errors.New("stream aborted by client")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Wrap attaches a sentinel kind to err so callers can classify the failure
// with errors.Is while still seeing the original cause.
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Upstream wraps a completion provider failure with a consistent status.
func Upstream(err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Err:     Wrap(ErrUpstreamCompletion, err),
		Status:  http.StatusBadGateway,
		Message: CompletionErrorMessage,
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
