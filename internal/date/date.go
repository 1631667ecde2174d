// Package date provides a cached, thread-safe RFC1123 date string for the
// response "date" header, avoiding a time.Now().Format() allocation on
// every stream.
package date

import (
	"sync/atomic"
	"time"
)

// refreshInterval matches RFC1123's second-level precision; refreshing
// more often than the header can represent buys nothing.
const refreshInterval = time.Second

var current atomic.Pointer[[]byte]

// StartTicker starts a ticker that refreshes the cached date string every
// refreshInterval and returns a stop function.
func StartTicker() func() {
	update()

	ticker := time.NewTicker(refreshInterval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				update()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}

func update() {
	b := []byte(time.Now().UTC().Format(time.RFC1123))
	current.Store(&b)
}

// Current returns the current cached date header bytes.
func Current() []byte {
	if p := current.Load(); p != nil {
		return *p
	}
	// StartTicker was never called; fall back to a direct format rather
	// than returning an empty header value.
	return []byte(time.Now().UTC().Format(time.RFC1123))
}
