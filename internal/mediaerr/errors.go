// Package mediaerr defines the error taxonomy of the ingestion pipeline and
// maps errors to the messages shown to uploaders.
package mediaerr

import (
	"errors"
	"fmt"
)

// Messages shown to uploaders.
const (
	MsgUnsupportedType  = "Error: Unsupported file type."
	MsgProcessingFailed = "Error: Processing failed."
)

// UserFacing is implemented by errors whose message may be shown to the uploader verbatim.
type UserFacing interface {
	error
	UserMessage() string
}

// UnsupportedTypeError means the sniffed MIME type is not accepted by the site.
type UnsupportedTypeError struct {
	MimeType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported media type %q", e.MimeType)
}

// UserMessage implements UserFacing.
func (e *UnsupportedTypeError) UserMessage() string { return MsgUnsupportedType }

// ExtensionMismatchError means the file's extension implies a different
// category than its content. The uploader sees the unsupported-type message.
type ExtensionMismatchError struct {
	Extension string
	MimeType  string
}

func (e *ExtensionMismatchError) Error() string {
	return fmt.Sprintf("extension %q does not match content type %q", e.Extension, e.MimeType)
}

// UserMessage implements UserFacing.
func (e *ExtensionMismatchError) UserMessage() string { return MsgUnsupportedType }

// ValidationError is a field-level rejection with a human-readable message.
// Reason is a short machine label ("size", "aspect_ratio", ...) for metrics.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// UserMessage implements UserFacing.
func (e *ValidationError) UserMessage() string { return e.Message }

// NewValidationError formats a ValidationError message.
func NewValidationError(reason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// TranscodeIOError reports a failed external process or image operation.
// Output holds captured diagnostics for operators.
type TranscodeIOError struct {
	Op     string
	Tool   string
	Output string
	Err    error
}

func (e *TranscodeIOError) Error() string {
	msg := e.Op
	if e.Tool != "" {
		msg = e.Tool + " " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TranscodeIOError) Unwrap() error { return e.Err }

// NamingExhaustionError means no unique name was found within the retry budget.
type NamingExhaustionError struct {
	Candidate string
	Attempts  int
}

func (e *NamingExhaustionError) Error() string {
	return fmt.Sprintf("no unique name for %q after %d attempts", e.Candidate, e.Attempts)
}

// UserMessage returns the message to show the uploader for err: the specific
// template for rejections, the generic processing failure for everything else.
func UserMessage(err error) string {
	var uf UserFacing
	if errors.As(err, &uf) {
		return uf.UserMessage()
	}
	return MsgProcessingFailed
}

// IsRejection reports whether err is an input-gate rejection (as opposed to a
// processing failure).
func IsRejection(err error) bool {
	var uf UserFacing
	return errors.As(err, &uf)
}

// Reason returns a metrics label for a rejection.
func Reason(err error) string {
	var (
		unsupported *UnsupportedTypeError
		mismatch    *ExtensionMismatchError
		validation  *ValidationError
	)
	switch {
	case errors.As(err, &unsupported):
		return "unsupported_type"
	case errors.As(err, &mismatch):
		return "extension_mismatch"
	case errors.As(err, &validation):
		return validation.Reason
	default:
		return "other"
	}
}
