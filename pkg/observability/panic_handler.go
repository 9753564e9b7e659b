package observability

import (
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoverPanicWithCallback recovers from a panic, logs it, and executes a callback
//
// Usage in defer statements:
//
//	go func() {
//	    defer observability.RecoverPanicWithCallback(logger, "decorate worker", func(r interface{}) {
//	        health.RecordError(plugin, fmt.Sprintf("panicked: %v", r))
//	    })
//	    // ... code that might panic
//	}()
//
// The callback only runs when a panic occurred. After logging, the panic is
// NOT re-raised - the function returns normally.
func RecoverPanicWithCallback(logger logrus.FieldLogger, context string, callback func(r interface{})) {
	if r := recover(); r != nil {
		logger.WithFields(logrus.Fields{
			"panic":   r,
			"stack":   string(debug.Stack()),
			"context": context,
		}).Error("PANIC recovered")
		if callback != nil {
			callback(r)
		}
	}
}

// RecoverError converts a recovered panic value into an error
//
// Usage when you want to convert panics to errors:
//
//	func callPlugin() (resp []byte, err error) {
//	    defer func() {
//	        if rerr := observability.RecoverError(recover()); rerr != nil {
//	            err = rerr
//	        }
//	    }()
//	    // ... code that might panic
//	}
//
// If r is nil, returns nil. The stack trace is NOT included in the error.
func RecoverError(r interface{}) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
