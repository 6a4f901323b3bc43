package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrProviderError    = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound   = fmt.Errorf("llm provider not found")
	ErrAgentNotFound      = fmt.Errorf("agent not found")
	ErrNoChair            = fmt.Errorf("no chair agent assigned")
	ErrPathOutsideSandbox = fmt.Errorf("path is outside sandbox boundary")
	ErrConfigLoad         = fmt.Errorf("failed to load configuration")
	ErrEncryption         = fmt.Errorf("encryption operation failed")
	ErrDecryption         = fmt.Errorf("decryption failed")
	ErrStore              = fmt.Errorf("store operation failed")

	// ErrAborted marks a cooperative cancellation of an ask. It is never
	// reported as an ordinary failure.
	ErrAborted = fmt.Errorf("aborted")

	// Provider resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrServerError     = fmt.Errorf("provider server error")
	ErrCircuitOpen     = fmt.Errorf("provider circuit open")

	// Tool and scoring errors.
	ErrToolFailure        = fmt.Errorf("tool execution failed")
	ErrUnknownDirective   = fmt.Errorf("unknown directive kind")
	ErrBackendUnavailable = fmt.Errorf("tool backend unavailable")
	ErrUnparseableVerdict = fmt.Errorf("secretary response is not a verdict object")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Chair.Run")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Aborted returns an error that matches both ErrAborted and the given cause
// (typically context.Canceled or context.DeadlineExceeded).
func Aborted(op string, cause error) error {
	if cause == nil {
		return NewDomainError(op, ErrAborted, "")
	}
	return NewDomainError(op, errors.Join(ErrAborted, cause), "")
}

// IsAborted reports whether err represents a cancelled ask.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}

// ErrorCode is a machine-parseable error category for logs and events.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeDuplicate          ErrorCode = "DUPLICATE"
	CodeTimeout            ErrorCode = "TIMEOUT"
	CodePermissionDenied   ErrorCode = "PERMISSION_DENIED"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeProviderError      ErrorCode = "PROVIDER_ERROR"
	CodeProviderNotFound   ErrorCode = "PROVIDER_NOT_FOUND"
	CodeAgentNotFound      ErrorCode = "AGENT_NOT_FOUND"
	CodeNoChair            ErrorCode = "NO_CHAIR"
	CodePathOutsideSandbox ErrorCode = "PATH_OUTSIDE_SANDBOX"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeEncryption         ErrorCode = "ENCRYPTION"
	CodeDecryption         ErrorCode = "DECRYPTION"
	CodeStore              ErrorCode = "STORE"
	CodeAborted            ErrorCode = "ABORTED"
	CodeContextOverflow    ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeServerError        ErrorCode = "SERVER_ERROR"
	CodeCircuitOpen        ErrorCode = "CIRCUIT_OPEN"
	CodeToolFailure        ErrorCode = "TOOL_FAILURE"
	CodeUnknownDirective   ErrorCode = "UNKNOWN_DIRECTIVE"
	CodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	CodeUnparseableVerdict ErrorCode = "UNPARSEABLE_VERDICT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:           CodeNotFound,
	ErrDuplicate:          CodeDuplicate,
	ErrTimeout:            CodeTimeout,
	ErrPermissionDenied:   CodePermissionDenied,
	ErrInvalidInput:       CodeInvalidInput,
	ErrProviderError:      CodeProviderError,
	ErrProviderNotFound:   CodeProviderNotFound,
	ErrAgentNotFound:      CodeAgentNotFound,
	ErrNoChair:            CodeNoChair,
	ErrPathOutsideSandbox: CodePathOutsideSandbox,
	ErrConfigLoad:         CodeConfigLoad,
	ErrEncryption:         CodeEncryption,
	ErrDecryption:         CodeDecryption,
	ErrStore:              CodeStore,
	ErrAborted:            CodeAborted,
	ErrContextOverflow:    CodeContextOverflow,
	ErrRateLimit:          CodeRateLimit,
	ErrAuthInvalid:        CodeAuthInvalid,
	ErrServerError:        CodeServerError,
	ErrCircuitOpen:        CodeCircuitOpen,
	ErrToolFailure:        CodeToolFailure,
	ErrUnknownDirective:   CodeUnknownDirective,
	ErrBackendUnavailable: CodeBackendUnavailable,
	ErrUnparseableVerdict: CodeUnparseableVerdict,
}

// ErrorCodeOf returns the ErrorCode for err, walking wrapped errors.
// Aborted takes precedence so that cancellation is never reported as
// an ordinary failure.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}
	if errors.Is(err, ErrAborted) {
		return CodeAborted
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e)
}
