package utils

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPoolRunsAllTasks(t *testing.T) {
	wp := NewWorkerPool(4)
	var count atomic.Int32
	for range 100 {
		wp.Execute(func() { count.Add(1) })
	}
	wp.Wait()
	assert.Equal(t, int32(100), count.Load())
}

func TestWorkerPoolLimitsConcurrency(t *testing.T) {
	wp := NewWorkerPool(2)
	var running, peak atomic.Int32
	for range 10 {
		wp.Execute(func() {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
		})
	}
	wp.Wait()
	assert.Equal(t, int32(2), peak.Load())
}
