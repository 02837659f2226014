// Package safego launches background work (export archiving, audit shipping, scheduled
// jobs) in goroutines that recover and log panics instead of crashing the server.
package safego

import (
	"context"
	"log/slog"
	"time"
)

// Go runs fn in a new goroutine. A panic is recovered and logged with task as context.
func Go(task string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine", "task", task, "panic", r)
			}
		}()
		fn()
	}()
}

// Detached returns a context that keeps the values of parent but is not canceled with it
// and expires after timeout. Use it for work that must outlive the request that started it.
func Detached(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
