package mediaerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "unsupported type",
			err:  &UnsupportedTypeError{MimeType: "text/plain"},
			want: MsgUnsupportedType,
		},
		{
			name: "extension mismatch hides the detail",
			err:  &ExtensionMismatchError{Extension: ".mp4", MimeType: "image/jpeg"},
			want: MsgUnsupportedType,
		},
		{
			name: "validation message passes through",
			err:  NewValidationError("duration", "Error: The video is longer than %s.", "10 minutes"),
			want: "Error: The video is longer than 10 minutes.",
		},
		{
			name: "wrapped validation error",
			err:  fmt.Errorf("validate: %w", NewValidationError("size", "Error: too big.")),
			want: "Error: too big.",
		},
		{
			name: "transcode failure is generic",
			err:  &TranscodeIOError{Op: "convert", Tool: "ffmpeg", Output: "Invalid data found", Err: errors.New("exit status 1")},
			want: MsgProcessingFailed,
		},
		{
			name: "naming exhaustion is generic",
			err:  &NamingExhaustionError{Candidate: "cat", Attempts: 100},
			want: MsgProcessingFailed,
		},
		{
			name: "plain error is generic",
			err:  errors.New("disk full"),
			want: MsgProcessingFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRejectionAndReason(t *testing.T) {
	tests := []struct {
		err       error
		rejection bool
		reason    string
	}{
		{&UnsupportedTypeError{}, true, "unsupported_type"},
		{&ExtensionMismatchError{}, true, "extension_mismatch"},
		{NewValidationError("fps", "x"), true, "fps"},
		{&TranscodeIOError{Op: "poster"}, false, "other"},
		{errors.New("x"), false, "other"},
	}

	for _, tt := range tests {
		if got := IsRejection(tt.err); got != tt.rejection {
			t.Errorf("IsRejection(%T) = %v, want %v", tt.err, got, tt.rejection)
		}
		if got := Reason(tt.err); got != tt.reason {
			t.Errorf("Reason(%T) = %q, want %q", tt.err, got, tt.reason)
		}
	}
}

func TestTranscodeIOErrorUnwrap(t *testing.T) {
	inner := errors.New("exit status 1")
	err := &TranscodeIOError{Op: "resize", Tool: "ffmpeg", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("TranscodeIOError should unwrap to its cause")
	}
	if got, want := err.Error(), "ffmpeg resize: exit status 1"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
