package plugins

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/llx/pkg/protocol"
)

var (
	// ErrMalformedPlugin means a library lacks a required entry point or answered
	// the handshake with something other than a name.
	ErrMalformedPlugin = errors.New("malformed plugin")
	// ErrHandleClosed is returned by calls on a closed handle.
	ErrHandleClosed = errors.New("plugin handle is closed")
	// ErrInvalidResponse means the plugin answered with a response of the wrong kind.
	ErrInvalidResponse = errors.New("plugin returned a response of the wrong kind")
	// ErrPluginNotFound means no plugin with the given name is registered.
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrPluginDisabled means the plugin is registered but not enabled.
	ErrPluginDisabled = errors.New("plugin is not enabled")
	// ErrDuplicatePlugin means a plugin with the same name is already registered.
	ErrDuplicatePlugin = errors.New("plugin already registered")
)

// LoadError reports a library that could not be turned into a registered plugin.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load plugin %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// VersionMismatchError reports a plugin built against an unsupported protocol.
type VersionMismatchError struct {
	Declared  uint32
	Supported protocol.VersionRange
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("protocol version %d is not supported (host supports %s)", e.Declared, e.Supported)
}

// ForeignCallError reports a failure inside the foreign call itself: a fault, a
// null or oversized buffer, or a closed library.
type ForeignCallError struct {
	Plugin string
	Kind   protocol.Kind
	Err    error
}

func (e *ForeignCallError) Error() string {
	return fmt.Sprintf("plugin %s: %s call failed: %v", e.Plugin, e.Kind, e.Err)
}

func (e *ForeignCallError) Unwrap() error { return e.Err }

// UnsupportedRequestError reports a plugin that answered with ErrorResponse.
type UnsupportedRequestError struct {
	Plugin              string
	Kind                protocol.Kind
	Message             string
	MissingDependencies []string
}

func (e *UnsupportedRequestError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "plugin %s rejected %s: %s", e.Plugin, e.Kind, e.Message)
	if len(e.MissingDependencies) > 0 {
		fmt.Fprintf(&b, " (missing: %s)", strings.Join(e.MissingDependencies, ", "))
	}
	return b.String()
}

// ActionError reports an action the plugin ran and reported as failed.
type ActionError struct {
	Plugin string
	Action string
	Reason string
}

func (e *ActionError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "unknown error"
	}
	return fmt.Sprintf("plugin %s: action %s failed: %s", e.Plugin, e.Action, reason)
}

// rejectionReason labels a load failure for metrics.
func rejectionReason(err error) string {
	var mismatch *VersionMismatchError
	switch {
	case errors.As(err, &mismatch):
		return "version"
	case errors.Is(err, ErrMalformedPlugin):
		return "malformed"
	case errors.Is(err, ErrDuplicatePlugin):
		return "duplicate"
	default:
		return "open"
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
