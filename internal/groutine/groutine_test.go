package groutine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGo_NamesContext(t *testing.T) {
	got := make(chan string, 1)
	Go(context.Background(), "worker-1", func(ctx context.Context) {
		got <- GetName(ctx)
	})
	assert.Equal(t, "worker-1", <-got)
	assert.Equal(t, "", GetName(context.Background()))
}

func TestGroup_WaitsAndRecovers(t *testing.T) {
	var mu sync.Mutex
	var panicked []string
	g := NewGroup(func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		panicked = append(panicked, name)
		assert.ErrorContains(t, err, "boom")
	})

	var ran atomic.Int32
	for i := 0; i < 4; i++ {
		g.Go(context.Background(), "ok", func(context.Context) { ran.Add(1) })
	}
	g.Go(context.Background(), "bad", func(context.Context) { panic("boom") })
	g.Wait()

	assert.Equal(t, int32(4), ran.Load())
	assert.Equal(t, []string{"bad"}, panicked)
}
