package stats

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStatusTracker_TotalEqualsSuccessPlusFail(t *testing.T) {
	s := NewStatusTracker(nil, "", "cmd")

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		switch rng.Intn(3) {
		case 0:
			s.Start()
		case 1:
			s.Success()
		default:
			s.Fail()
		}

		snap := s.Snapshot()
		assert.Equal(t, snap.Total, snap.Success+snap.Fail)
		assert.GreaterOrEqual(t, snap.Active, int64(0))
	}
}

func TestStatusTracker_ConcurrentSnapshot(t *testing.T) {
	s := NewStatusTracker(nil, "", "cmd")

	const writers, perWriter = 4, 2000
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				s.Start()
				s.Record((i+w)%2 == 0)
			}
		}(w)
	}

	var done atomic.Bool
	var violations atomic.Int64
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for !done.Load() {
			snap := s.Snapshot()
			if snap.Total < snap.Success+snap.Fail {
				violations.Add(1)
			}
		}
	}()

	wg.Wait()
	done.Store(true)
	<-readerDone

	assert.Zero(t, violations.Load(), "snapshot saw total < success + fail")
	snap := s.Snapshot()
	assert.Equal(t, uint64(writers*perWriter), snap.Total)
	assert.Equal(t, snap.Total, snap.Success+snap.Fail)
	assert.Equal(t, int64(0), snap.Active)
}

func TestStatusTracker_ActiveClampedAtZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewStatusTracker(reg, "test", "cmd")

	// 没有 Start 的完成不会让 active 变为负数
	s.Fail()
	s.Success()
	assert.Equal(t, int64(0), s.Snapshot().Active)
	assert.Equal(t, 0.0, testutil.ToFloat64(s.activeG))

	s.Start()
	s.Start()
	assert.Equal(t, 2.0, testutil.ToFloat64(s.activeG))

	s.Record(true)
	assert.Equal(t, int64(1), s.Snapshot().Active)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.activeG))

	assert.Equal(t, 3.0, testutil.ToFloat64(s.totalCtr))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.successCtr))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.failCtr))
}
