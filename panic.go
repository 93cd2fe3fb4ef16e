package httpconn

import (
	"fmt"
	"os"
	"runtime/debug"
)

// runGuarded runs fn and, if it panics, prints a stack trace and calls
// os.Exit(2) instead of letting the panic unwind off a LoopChannel's single
// event-loop goroutine. Each channel is pinned to one event-loop thread; all
// channel callbacks execute on that thread and never reenter — a panicking
// callback that escaped silently would leave that thread dead while every
// other goroutine believed it was still running, which is worse than
// crashing loudly.
//
// See also https://iximiuz.com/en/posts/go-http-handlers-panic-and-deadlocks/,
// which documents the same failure mode for net/http's per-request
// goroutines.
func runGuarded(fn func()) {
	defer exitOnPanic()
	fn()
}

func exitOnPanic() {
	e := recover()
	if e == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "panic on httpconn event loop: %v\n\n%s", e, debug.Stack())
	os.Exit(2)
}
