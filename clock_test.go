package lifecycle_test

import (
	"testing"
	"time"

	lifecycle "github.com/spaportal/go-lifecycle"
	"github.com/stretchr/testify/assert"
)

func TestTickerSchedulerFiresAndStops(t *testing.T) {
	scheduler := lifecycle.NewTickerScheduler()

	fired := make(chan struct{}, 1)
	stop := scheduler.Every(time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("scheduler never ticked")
	}

	stop()
}

func TestTickerSchedulerStopIsIdempotent(t *testing.T) {
	scheduler := lifecycle.NewTickerScheduler()

	stop := scheduler.Every(time.Hour, func() {})

	assert.NotPanics(t, func() {
		stop()
		stop()
	})
}
