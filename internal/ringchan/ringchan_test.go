package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_DropsOldest(t *testing.T) {
	c := New[int](3)
	for i := 1; i <= 5; i++ {
		c.Send(i)
	}

	require.Equal(t, 3, c.Len())
	assert.Equal(t, 3, <-c.C(), "oldest values MUST be evicted first")
	assert.Equal(t, 4, <-c.C())
	assert.Equal(t, 5, <-c.C())
	assert.Equal(t, Stats{Sent: 5, Dropped: 2}, c.Stats())
}

func TestChannel_SendReportsEviction(t *testing.T) {
	c := New[string](1)
	assert.False(t, c.Send("a"))
	assert.True(t, c.Send("b"))
	assert.Equal(t, "b", <-c.C())
}

func TestChannel_ConcurrentSendersNeverBlock(t *testing.T) {
	c := New[int](4)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				c.Send(i)
			}
		}()
	}
	wg.Wait()

	s := c.Stats()
	assert.Equal(t, int64(8000), s.Sent)
	assert.Equal(t, int64(8000-c.Len()), s.Dropped)
}

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}

func TestChannel_Close(t *testing.T) {
	c := New[int](2)
	c.Send(7)
	c.Close()

	var got []int
	for v := range c.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{7}, got)
}
