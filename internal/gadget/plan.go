package gadget

import (
	"fmt"
	"time"
)

// DownloadPlan holds the logger bounds read at download start.
type DownloadPlan struct {
	OldestMs        int64
	NewestMs        int64
	IntervalMs      uint32
	ExpectedSamples uint32
}

// NewDownloadPlan computes floor((newest-oldest)/interval) expected samples.
// A newest bound before the oldest one yields an empty plan.
func NewDownloadPlan(oldestMs, newestMs int64, intervalMs uint32) (DownloadPlan, error) {
	if intervalMs == 0 {
		return DownloadPlan{}, ErrInvalidInterval
	}

	plan := DownloadPlan{OldestMs: oldestMs, NewestMs: newestMs, IntervalMs: intervalMs}
	if newestMs > oldestMs {
		n := (newestMs - oldestMs) / int64(intervalMs)
		if n > int64(^uint32(0)) {
			return DownloadPlan{}, fmt.Errorf("logger span %dms holds more samples than a sequence can address", newestMs-oldestMs)
		}
		plan.ExpectedSamples = uint32(n)
	}
	return plan, nil
}

// Timestamp returns the wall-clock time, in ms since epoch, of sample id.
// Ids count backward from the newest reading.
func (p DownloadPlan) Timestamp(id uint32) int64 {
	return p.NewestMs - int64(id)*int64(p.IntervalMs)
}

// Span is the logged time range.
func (p DownloadPlan) Span() time.Duration {
	if p.NewestMs <= p.OldestMs {
		return 0
	}
	return time.Duration(p.NewestMs-p.OldestMs) * time.Millisecond
}

// Interval is the logger interval as a duration.
func (p DownloadPlan) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}
