package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// Sentinel errors produced by the dispatch layer.
var (
	// ErrUnknownCommand is returned when an interaction names a command
	// that was never registered. These arrive routinely after restarts
	// while Discord's command cache catches up, so they are dropped
	// without a trace.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrPermissionDenied is returned when the caller fails the
	// permission check for a command.
	ErrPermissionDenied = errors.New("permission denied")
)

// UsageError signals that the caller supplied arguments the handler
// could not work with. The detail is echoed back to the user verbatim.
type UsageError struct {
	Detail string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("invalid command usage: %s", e.Detail)
}

// NewUsageError creates a UsageError with the given detail message.
func NewUsageError(format string, args ...any) *UsageError {
	return &UsageError{Detail: fmt.Sprintf(format, args...)}
}

// ExternalServiceError wraps a failure from a third-party dependency
// that is outside our control. Handlers wrap outbound call failures in
// this type so the classifier treats them as warnings rather than bugs.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %s failed: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// Disposition describes what to do with a handler error: whether and
// how to log it, and whether to tell the user anything.
type Disposition struct {
	// Silent means drop the error entirely: no log line, no reply.
	Silent bool

	// Log controls whether a log line is emitted at LogLevel.
	Log          bool
	LogLevel     log.Level
	LogMessage   string
	IncludeStack bool

	// Notify controls whether UserMessage is sent back to the caller.
	Notify      bool
	UserMessage string
}

// Classifier maps handler errors to dispositions. Rules are checked in
// order; the first match wins.
type Classifier struct {
	// notifyOnUnexpected mirrors the NotifyUserOnError config flag:
	// when false, unexpected errors are logged but the caller gets no
	// reply at all.
	notifyOnUnexpected bool
}

func NewClassifier(notifyOnUnexpected bool) *Classifier {
	return &Classifier{notifyOnUnexpected: notifyOnUnexpected}
}

// Classify inspects err (including wrapped errors) and returns the
// disposition for it. err must be non-nil.
func (c *Classifier) Classify(err error) Disposition {
	if errors.Is(err, ErrUnknownCommand) {
		return Disposition{Silent: true}
	}

	if errors.Is(err, ErrPermissionDenied) {
		return Disposition{
			Notify:      true,
			UserMessage: "You don't have permission to use this command.",
		}
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return Disposition{
			Log:         true,
			LogLevel:    log.WarnLevel,
			LogMessage:  fmt.Sprintf("invalid command usage: %s", usageErr.Detail),
			Notify:      true,
			UserMessage: fmt.Sprintf("Invalid usage: %s", usageErr.Detail),
		}
	}

	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return Disposition{
			Log:        true,
			LogLevel:   log.WarnLevel,
			LogMessage: fmt.Sprintf("rate limited by Discord, retry after %s", rateErr.RetryAfter),
		}
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && isForbidden(restErr) {
		return Disposition{
			Log:         true,
			LogLevel:    log.ErrorLevel,
			LogMessage:  fmt.Sprintf("missing Discord permissions: %v", err),
			Notify:      true,
			UserMessage: "I don't have the Discord permissions needed to do that.",
		}
	}

	var extErr *ExternalServiceError
	if errors.As(err, &extErr) {
		return Disposition{
			Log:         true,
			LogLevel:    log.WarnLevel,
			LogMessage:  fmt.Sprintf("external service %s unavailable: %v", extErr.Service, extErr.Err),
			Notify:      true,
			UserMessage: fmt.Sprintf("External service %s is unavailable: %v. Please try again later.", extErr.Service, extErr.Err),
		}
	}

	return Disposition{
		Log:          true,
		LogLevel:     log.ErrorLevel,
		LogMessage:   fmt.Sprintf("unexpected error: %v", err),
		IncludeStack: true,
		Notify:       c.notifyOnUnexpected,
		UserMessage:  "An unexpected error occurred. The issue has been logged.",
	}
}

// isForbidden reports whether a REST error means Discord refused us
// permission. The HTTP response can be absent, so the JSON error code
// is checked as well.
func isForbidden(restErr *discordgo.RESTError) bool {
	if restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden {
		return true
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
			return true
		}
	}
	return false
}
