// Package safego launches background goroutines that survive panics.
package safego

import "log/slog"

// Go runs fn on a new goroutine, recovering and logging any panic instead of
// letting it take the process down. Fire-and-forget work (asynchronous audit
// writes, limiter cleanup loops) goes through here so a panic cannot silently
// kill the whole server.
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in background goroutine", "panic", r)
			}
		}()
		fn()
	}()
}
