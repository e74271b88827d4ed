package timer

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimer(t *testing.T) {
	t.Run("now keeps up", func(t *testing.T) {
		// a tick may be late by a little, so allow half of the resolution on top
		const lag = Resolution + Resolution/2

		for range 4 {
			require.WithinDuration(t, time.Now(), Now(), lag)
			time.Sleep(Resolution / 2)
		}
	})

	t.Run("millis", func(t *testing.T) {
		require.InDelta(t, Now().UnixMilli(), Millis(), float64(Resolution.Milliseconds()))
	})

	t.Run("date", func(t *testing.T) {
		parsed, err := http.ParseTime(Date())
		require.NoError(t, err)
		require.WithinDuration(t, time.Now(), parsed, 2*time.Second)
	})
}

func BenchmarkNow(b *testing.B) {
	b.Run("time.Now()", func(b *testing.B) {
		for range b.N {
			_ = time.Now().Add(5 * time.Second)
		}
	})

	b.Run("timer.Now()", func(b *testing.B) {
		for range b.N {
			_ = Now().Add(5 * time.Second)
		}
	})
}
