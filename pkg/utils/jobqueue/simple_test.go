package jobqueue

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueLimits(t *testing.T) {
	q := NewSimpleQueue(1, 1)
	require.NoError(t, q.Add())
	require.NoError(t, q.Add())
	assert.ErrorIs(t, q.Add(), ErrQueueFull)
	require.NoError(t, q.Remove())
	require.NoError(t, q.Remove())
	assert.ErrorIs(t, q.Remove(), ErrQueueEmpty)
	assert.ErrorIs(t, q.End(), ErrQueueEmpty)

	stop := errors.New("closed")
	q.SetNoAccept(stop)
	assert.ErrorIs(t, q.Add(), stop)
}

func TestMapBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	keys := []string{"t3.micro", "t3.small", "m5.large", "c5.xlarge", "r5.large"}
	out := Map(keys, 2, func(k string) int {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return len(k)
	})
	assert.Len(t, out, 5)
	assert.Equal(t, 8, out["t3.micro"])
	assert.LessOrEqual(t, peak.Load(), int32(2))
}
