package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// JSONSink writes one JSON object per record, newline separated.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

func (j *JSONSink) Name() string { return "json" }

func (j *JSONSink) Publish(_ context.Context, b Batch) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, r := range b.Records() {
		if err := j.enc.Encode(r); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}
	return nil
}
