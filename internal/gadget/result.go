package gadget

import (
	"sort"
	"time"
)

// Sample is one downloaded history reading.
type Sample struct {
	Seq         uint32
	TimestampMs int64
	Value       float64
}

// Time returns the sample timestamp.
func (s Sample) Time() time.Time {
	return time.UnixMilli(s.TimestampMs)
}

// ChannelProgress accumulates one channel's samples during a session.
type ChannelProgress struct {
	NextExpectedSeq uint32
	Missed          map[uint32]struct{}
	Samples         []Sample
	Duplicates      int
	// Discarded counts values whose id lies past the plan.
	Discarded int
}

func newChannelProgress() *ChannelProgress {
	return &ChannelProgress{NextExpectedSeq: 1, Missed: make(map[uint32]struct{})}
}

// downloaded is the highest sample id accounted for.
func (p *ChannelProgress) downloaded() uint32 {
	return p.NextExpectedSeq - 1
}

// ChannelResult is the frozen outcome for one channel.
type ChannelResult struct {
	Kind        ChannelKind
	Description string
	Unit        string
	Samples     []Sample // ordered by Seq
	Missed      []uint32 // ascending
	Duplicates  int
	Discarded   int
}

// MissedCount returns the number of sample ids never received.
func (c *ChannelResult) MissedCount() int {
	return len(c.Missed)
}

// Result is the outcome of a finished or failed download. Failed results
// still carry every sample received before the failure.
type Result struct {
	Status    SessionState
	Err       error
	Plan      DownloadPlan
	StartedAt time.Time
	Duration  time.Duration
	Channels  map[ChannelKind]*ChannelResult
}

// Complete reports whether the download reached the last expected sample id.
// Ids skipped on the way stay listed in each channel's Missed.
func (r *Result) Complete() bool {
	return r != nil && r.Status == Finished
}

// Kinds returns the channel kinds in the result, in display order.
func (r *Result) Kinds() []ChannelKind {
	kinds := make([]ChannelKind, 0, len(r.Channels))
	for k := range r.Channels {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// TotalSamples sums the samples of every channel.
func (r *Result) TotalSamples() int {
	n := 0
	for _, c := range r.Channels {
		n += len(c.Samples)
	}
	return n
}

// Point is a time series entry.
type Point struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Value       float64 `json:"value"`
}

// Series returns channel name → points ordered by sequence id.
func (r *Result) Series() map[string][]Point {
	out := make(map[string][]Point, len(r.Channels))
	for kind, c := range r.Channels {
		pts := make([]Point, 0, len(c.Samples))
		for _, s := range c.Samples {
			pts = append(pts, Point{TimestampMs: s.TimestampMs, Value: s.Value})
		}
		out[kind.String()] = pts
	}
	return out
}

func freezeProgress(ch *Channel, p *ChannelProgress) *ChannelResult {
	samples := make([]Sample, len(p.Samples))
	copy(samples, p.Samples)
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Seq < samples[j].Seq })

	missed := make([]uint32, 0, len(p.Missed))
	for id := range p.Missed {
		missed = append(missed, id)
	}
	sort.Slice(missed, func(i, j int) bool { return missed[i] < missed[j] })

	return &ChannelResult{
		Kind:        ch.Kind,
		Description: ch.Description(),
		Unit:        ch.Unit(),
		Samples:     samples,
		Missed:      missed,
		Duplicates:  p.Duplicates,
		Discarded:   p.Discarded,
	}
}
