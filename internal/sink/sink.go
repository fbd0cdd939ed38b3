// Package sink publishes gadget readings and downloaded history.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/srg/smartgadget/internal/gadget"
)

// Source tells live readings from downloaded history.
type Source string

const (
	Live    Source = "live"
	History Source = "history"
)

// Record is one time-stamped channel value. Seq is zero for live readings.
type Record struct {
	Address   string    `json:"address"`
	Channel   string    `json:"channel"`
	Source    Source    `json:"source"`
	Seq       uint32    `json:"seq,omitempty"`
	Timestamp time.Time `json:"ts"`
	Value     float64   `json:"value"`
}

// Batch is what one poll of a gadget produced.
type Batch struct {
	Address string
	At      time.Time
	Live    map[gadget.ChannelKind]float64
	// Result is nil when no download was attempted.
	Result *gadget.Result
}

// Records flattens the batch: live readings first, then history in
// channel and sequence order.
func (b Batch) Records() []Record {
	var out []Record
	for _, kind := range gadget.ChannelKinds {
		v, ok := b.Live[kind]
		if !ok {
			continue
		}
		out = append(out, Record{
			Address:   b.Address,
			Channel:   kind.String(),
			Source:    Live,
			Timestamp: b.At,
			Value:     v,
		})
	}
	if b.Result == nil {
		return out
	}
	for _, kind := range b.Result.Kinds() {
		for _, s := range b.Result.Channels[kind].Samples {
			out = append(out, Record{
				Address:   b.Address,
				Channel:   kind.String(),
				Source:    History,
				Seq:       s.Seq,
				Timestamp: s.Time(),
				Value:     s.Value,
			})
		}
	}
	return out
}

// Publisher delivers batches somewhere.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, b Batch) error
}

// Multi fans a batch out to every publisher. All publishers are tried;
// their errors are joined.
type Multi []Publisher

func (m Multi) Name() string { return "multi" }

func (m Multi) Publish(ctx context.Context, b Batch) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, b); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
