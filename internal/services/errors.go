package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind is the machine-readable failure classification attached to every
// terminal failure.
type Kind string

const (
	KindNone               Kind = ""
	KindInvalidInput       Kind = "invalid_input"
	KindNotAccessible      Kind = "not_accessible"
	KindNetwork            Kind = "network"
	KindRateLimited        Kind = "rate_limited"
	KindServiceUnavailable Kind = "service_unavailable"
	KindNoSpeech           Kind = "no_speech"
	KindCancelled          Kind = "cancelled"
	KindStorageFailure     Kind = "storage_failure"
	KindMediaUnavailable   Kind = "media_unavailable"
	KindConfiguration      Kind = "configuration"
	KindInternal           Kind = "internal"
)

// Retryable reports whether failures of this kind are transient.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindRateLimited, KindServiceUnavailable:
		return true
	default:
		return false
	}
}

var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// Error carries a failure kind plus the stage context it was raised in.
type Error struct {
	Kind      Kind
	Stage     string
	Operation string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds an error that includes stage context while tagging it with
// the provided kind for later classification.
func Wrap(kind Kind, stage, operation, message string, err error) error {
	if kind == KindNone {
		kind = KindInternal
	}
	return &Error{
		Kind:      kind,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Err:       err,
	}
}

// KindOf classifies err. Nested *Error values win over context errors, and
// anything unrecognised is internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var svcErr *Error
	if errors.As(err, &svcErr) && svcErr.Kind != KindNone {
		return svcErr.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case errors.Is(err, ErrValidation):
		return KindInvalidInput
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrNotFound):
		return KindNotAccessible
	default:
		return KindInternal
	}
}

// Message returns the human-readable part of err without the kind prefix.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		detail := buildDetail(svcErr.Stage, svcErr.Operation, svcErr.Message)
		if svcErr.Err != nil {
			return detail + ": " + svcErr.Err.Error()
		}
		return detail
	}
	return err.Error()
}

// Exit codes reported by the CLI.
const (
	ExitSuccess      = 0
	ExitInvalidInput = 1
	ExitUnavailable  = 2
	ExitNetwork      = 3
	ExitProcessing   = 4
	ExitStorage      = 5
)

// ExitCode maps a failure kind to the process exit status.
func ExitCode(kind Kind) int {
	switch kind {
	case KindNone, KindNoSpeech:
		return ExitSuccess
	case KindInvalidInput, KindConfiguration:
		return ExitInvalidInput
	case KindNotAccessible, KindMediaUnavailable:
		return ExitUnavailable
	case KindNetwork, KindRateLimited, KindServiceUnavailable:
		return ExitNetwork
	case KindStorageFailure:
		return ExitStorage
	default:
		return ExitProcessing
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
