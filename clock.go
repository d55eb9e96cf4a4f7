package lifecycle

import (
	"sync"
	"time"
)

// Clock supplies the current instant. Every expiry and inactivity check in
// the package reads time through a Clock so tests can advance virtual time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock {
	return ClockFunc(time.Now)
}

// Scheduler runs a function on a fixed interval. Sweeps for session and
// credential expiry are registered through a Scheduler rather than raw
// tickers so tests can fire ticks deterministically.
type Scheduler interface {
	// Every invokes fn on each interval tick until the returned stop
	// function is called. fn runs on the scheduler's goroutine; it must
	// not block for longer than the interval.
	Every(interval time.Duration, fn func()) (stop func())
}

// NewTickerScheduler returns a Scheduler backed by time.Ticker.
func NewTickerScheduler() Scheduler {
	return tickerScheduler{}
}

type tickerScheduler struct{}

func (tickerScheduler) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
