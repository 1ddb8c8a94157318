package translate

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors reported by New.
	ErrNoFileStore = errors.New("translate: no file store configured")
	ErrNoLoader    = errors.New("translate: no loader configured")
	ErrNoLauncher  = errors.New("translate: no launcher configured")

	// ErrCancelled is the cause chained under every cancellation-kind
	// ErrorInfo, so errors.Is(err, ErrCancelled) identifies cancelled
	// jobs regardless of where the flag was observed.
	ErrCancelled = errors.New("translate: cancelled")

	// Output errors reported by ReleaseOutput.
	ErrNoOutput       = errors.New("translate: no output available")
	ErrOutputReleased = errors.New("translate: output already released")
)

// Kind classifies a terminal translation error.
type Kind int

const (
	// KindGeneric covers failures with no more specific classification.
	KindGeneric Kind = iota

	// KindIO covers file and fetch failures; the ErrorInfo carries an
	// IOCode naming the operation that failed.
	KindIO

	// KindWorker covers code-generator and linker failures, including a
	// worker dying mid-exchange.
	KindWorker

	// KindCancelled marks jobs torn down because Cancel was requested.
	KindCancelled
)

// String returns the kind name used in logs and events.
func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindWorker:
		return "worker"
	case KindCancelled:
		return "cancelled"
	default:
		return "generic"
	}
}

// IOCode identifies which pipeline file operation an I/O error came from.
type IOCode int

const (
	CodeNone IOCode = iota
	CodeDirCreate
	CodeFetch
	CodeFileCreate
	CodeFileOpen
	CodeFileClose
	CodeFileDelete
	CodeFileRename
)

// String returns the code name used in logs and events.
func (c IOCode) String() string {
	switch c {
	case CodeDirCreate:
		return "dir_create"
	case CodeFetch:
		return "fetch"
	case CodeFileCreate:
		return "file_create"
	case CodeFileOpen:
		return "file_open"
	case CodeFileClose:
		return "file_close"
	case CodeFileDelete:
		return "file_delete"
	case CodeFileRename:
		return "file_rename"
	default:
		return "none"
	}
}

// ErrorInfo is the terminal failure report delivered to the completion
// callback. The first error recorded for a job wins; anything that goes
// wrong during teardown is logged and discarded.
type ErrorInfo struct {
	// Kind classifies the failure.
	Kind Kind

	// Code names the failing file operation for KindIO errors, CodeNone
	// otherwise.
	Code IOCode

	// Message is the human-readable description.
	Message string

	cause error
}

var _ error = (*ErrorInfo)(nil)

// Error implements error.
func (e *ErrorInfo) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *ErrorInfo) Unwrap() error { return e.cause }

func genericError(format string, args ...any) *ErrorInfo {
	return &ErrorInfo{Kind: KindGeneric, Message: fmt.Sprintf(format, args...)}
}

func ioError(code IOCode, err error, message string) *ErrorInfo {
	return &ErrorInfo{Kind: KindIO, Code: code, Message: message, cause: err}
}

func workerError(err error, message string) *ErrorInfo {
	return &ErrorInfo{Kind: KindWorker, Message: message, cause: err}
}

func cancelledError() *ErrorInfo {
	return &ErrorInfo{Kind: KindCancelled, Message: "translation cancelled", cause: ErrCancelled}
}
