// -----------------------------------------------------------------------
// Safe Goroutine - Panic-protected goroutine wrappers
// -----------------------------------------------------------------------

package common

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

// goroutineCounter tracks spawned goroutines for diagnostics and crash
// reports.
var goroutineCounter int64

// GetGoroutineCount returns how many goroutines were spawned through
// SafeGo and SafeGoWithContext over the process lifetime.
func GetGoroutineCount() int64 {
	return atomic.LoadInt64(&goroutineCounter)
}

// recoverPanic logs a recovered panic with its stack trace. A panicking
// background goroutine must never take the process down with it.
func recoverPanic(logger arbor.ILogger, name string) {
	r := recover()
	if r == nil {
		return
	}

	buf := make([]byte, 4096)
	stack := string(buf[:runtime.Stack(buf, false)])

	if logger == nil {
		fmt.Fprintf(os.Stderr, "PANIC in goroutine %s: %v\n%s\n", name, r, stack)
		return
	}
	logger.Error().
		Str("goroutine", name).
		Str("panic", fmt.Sprintf("%v", r)).
		Str("stack", stack).
		Msg("Recovered from panic in goroutine - continuing service operation")
}

// SafeGo runs fn on its own goroutine with panic recovery. The name
// identifies the goroutine in panic logs.
//
// Example:
//
//	common.SafeGo(logger, "publishEvent", func() {
//	    eventService.Publish(event)
//	})
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	atomic.AddInt64(&goroutineCounter, 1)

	go func() {
		defer recoverPanic(logger, name)
		fn()
	}()
}

// SafeGoWithContext is SafeGo for context-bound work: fn is skipped
// entirely when the context is already cancelled at spawn time, so a
// torn-down owner never starts new background work.
func SafeGoWithContext(ctx context.Context, logger arbor.ILogger, name string, fn func()) {
	atomic.AddInt64(&goroutineCounter, 1)

	go func() {
		defer recoverPanic(logger, name)

		if ctx.Err() != nil {
			if logger != nil {
				logger.Debug().Str("goroutine", name).Msg("Goroutine cancelled before start")
			}
			return
		}

		fn()
	}()
}
