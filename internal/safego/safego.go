// Package safego launches background goroutines that survive panics.
package safego

import "log/slog"

// Go runs fn in its own goroutine and recovers any panic, logging it instead
// of taking down the process. The marketplace uses it for fire-and-forget
// work: the rate limiter's cleanup loop, DB stats collection, and the metrics
// side-channel server. A panic in any of those would otherwise die silently
// or crash the server.
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background goroutine panicked", "panic", r)
			}
		}()
		fn()
	}()
}
