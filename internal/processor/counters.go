package processor

import "sync/atomic"

// Counters aggregate request statistics over all processors of a protocol handler.
type Counters struct {
	Requests  atomic.Int64
	Errors    atomic.Int64
	BytesSent atomic.Int64
	// Processing is the time spent serving requests, in milliseconds.
	Processing atomic.Int64
	// MaxTime is the longest request, in milliseconds.
	MaxTime atomic.Int64
}

// Update accounts a finished request.
func (c *Counters) Update(failed bool, sent, elapsedMillis int64) {
	if c == nil {
		return
	}

	c.Requests.Add(1)
	if failed {
		c.Errors.Add(1)
	}

	c.BytesSent.Add(sent)
	c.Processing.Add(elapsedMillis)

	for {
		current := c.MaxTime.Load()
		if elapsedMillis <= current || c.MaxTime.CompareAndSwap(current, elapsedMillis) {
			return
		}
	}
}

// Snapshot is a plain copy of the counters.
type Snapshot struct {
	Requests   int64 `json:"requests"`
	Errors     int64 `json:"errors"`
	BytesSent  int64 `json:"bytes_sent"`
	Processing int64 `json:"processing_ms"`
	MaxTime    int64 `json:"max_time_ms"`
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Requests:   c.Requests.Load(),
		Errors:     c.Errors.Load(),
		BytesSent:  c.BytesSent.Load(),
		Processing: c.Processing.Load(),
		MaxTime:    c.MaxTime.Load(),
	}
}
