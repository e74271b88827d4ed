package timer

import (
	"net/http"
	"sync/atomic"
	"time"
)

// Time contains the unix-time in milliseconds updated every [Resolution] milliseconds
var Time = new(atomic.Int64)

// date holds the pre-formatted value of the Date response header.
var date atomic.Pointer[string]

func Now() time.Time {
	millis := Time.Load()
	return time.Unix(millis/1000, (millis%1000)*1e6)
}

// Millis returns the coarse unix-time in milliseconds.
func Millis() int64 {
	return Time.Load()
}

// Date returns the current time in the IMF-fixdate format, as required by the Date header.
func Date() string {
	return *date.Load()
}

// Resolution is the frequency at which time is updated. Default 500ms are
// precise enough for setting I/O deadlines and rendering the Date header
const Resolution = 500 * time.Millisecond

func tick() {
	now := time.Now()
	Time.Store(now.UnixMilli())
	formatted := now.UTC().Format(http.TimeFormat)
	date.Store(&formatted)
}

func init() {
	// there is no guarantee that the goroutine will be started immediately. If it won't,
	// some rapid usage of the timer will result in zero-time, which isn't great actually
	tick()

	go func() {
		for {
			time.Sleep(Resolution)
			tick()
		}
	}()
}
