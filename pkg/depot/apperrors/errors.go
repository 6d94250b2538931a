// Package apperrors defines the typed error kinds shared across the depot
// core. Every subsystem returns one of these instead of an ad-hoc
// fmt.Errorf so that the transport layer and CLI can map failures to
// status codes / exit codes without type-switching on concrete types.
package apperrors

import "fmt"

// Kind enumerates the abstract error categories from the depot's error
// handling design. A Kind is stable across subsystems: the same
// NotFound kind is returned whether a model id, an alias, or a hub
// repository is missing.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindAlreadyRunning       Kind = "already_running"
	KindAuthRequired         Kind = "auth_required"
	KindForbidden            Kind = "forbidden"
	KindTransient            Kind = "transient"
	KindInsufficientDisk     Kind = "insufficient_disk_space"
	KindInvalidIdentifier    Kind = "invalid_identifier"
	KindInvalidRequest       Kind = "invalid_request"
	KindModelSourceNotFound  Kind = "model_source_not_found"
	KindModelLoadFailure     Kind = "model_load_failure"
	KindAdapterUnavailable   Kind = "adapter_unavailable"
	KindGenerationFailure    Kind = "generation_failure"
	KindCancelled            Kind = "cancelled"
)

// Error is the concrete type returned by every depot subsystem. Message
// is meant to be human-readable on its own; Cause, when present, is
// preserved for %w-style unwrapping.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// ErrorKind lets callers recover the Kind from any error in the chain
// without a type assertion on *Error specifically.
func ErrorKind(err error) (Kind, bool) {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	if e == nil {
		return "", false
	}
	return e.Kind, true
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func InvalidIdentifierf(format string, args ...interface{}) *Error {
	return New(KindInvalidIdentifier, fmt.Sprintf(format, args...))
}

func InvalidRequestf(format string, args ...interface{}) *Error {
	return New(KindInvalidRequest, fmt.Sprintf(format, args...))
}

// AuthRequired returns the spec's mandated human-readable auth error.
func AuthRequired(repoID string) *Error {
	return New(KindAuthRequired, fmt.Sprintf("repository %q requires authentication: set a hub token", repoID))
}

// InsufficientDiskSpace formats required/available sizes in binary units
// per the spec's user-visible-behavior requirement.
func InsufficientDiskSpace(required, available int64) *Error {
	return New(KindInsufficientDisk, fmt.Sprintf(
		"insufficient disk space: need %s, have %s free",
		FormatBinarySize(required), FormatBinarySize(available)))
}

// FormatBinarySize renders a byte count using binary (KiB/MiB/...) units.
func FormatBinarySize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	units := "KMGTPE"
	return fmt.Sprintf("%.2f %ciB", float64(n)/float64(div), units[exp])
}

// AlreadyRunning reports that a download session for modelID is already
// active.
func AlreadyRunning(modelID string) *Error {
	return New(KindAlreadyRunning, fmt.Sprintf("download for %q is already running", modelID))
}

// Cancelled reports a caller-initiated cancellation. Generation and
// download callers are expected to translate this into a status/finish
// reason rather than propagating it as a hard error where the spec says
// to (see GenerationFailure vs Cancelled handling in the generation
// engine).
func Cancelled(what string) *Error {
	return New(KindCancelled, fmt.Sprintf("%s was cancelled", what))
}
