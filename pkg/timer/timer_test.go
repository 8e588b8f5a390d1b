package timer

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqlight/mqlight-go/pkg/clienterr"
	"github.com/mqlight/mqlight-go/pkg/log"
	"github.com/mqlight/mqlight-go/pkg/promise"
)

func waitDone(t *testing.T, p *promise.Promise[struct{}], timeout time.Duration) error {
	t.Helper()
	select {
	case <-p.Done():
		_, err := p.Result()
		return err
	case <-time.After(timeout):
		t.Fatal("promise not completed in time")
		return nil
	}
}

func TestScheduleFires(t *testing.T) {
	svc := NewService(Config{})
	p := promise.New[struct{}](nil)

	start := time.Now()
	svc.Schedule(20*time.Millisecond, p)
	assert.Equal(t, 1, svc.Pending())

	require.NoError(t, waitDone(t, p, time.Second))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, promise.StateSucceeded, p.State())
	assert.Equal(t, 0, svc.Pending())
}

func TestScheduleDoesNotCompleteOnCallerGoroutine(t *testing.T) {
	svc := NewService(Config{})
	var inline atomic.Bool
	calling := true
	var mu sync.Mutex

	p := promise.New(func(struct{}, error) {
		mu.Lock()
		inline.Store(calling)
		mu.Unlock()
	})

	mu.Lock()
	svc.Schedule(0, p)
	calling = false
	mu.Unlock()

	require.NoError(t, waitDone(t, p, time.Second))
	assert.False(t, inline.Load())
}

func TestCancelBeforeFire(t *testing.T) {
	svc := NewService(Config{})
	var outcomes atomic.Int32
	p := promise.New(func(struct{}, error) { outcomes.Add(1) })

	svc.Schedule(time.Hour, p)
	svc.Cancel(p)

	err := waitDone(t, p, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, clienterr.KindCancelled, clienterr.KindOf(err))
	assert.Equal(t, int32(1), outcomes.Load())
	assert.Equal(t, 0, svc.Pending())
}

func TestCancelAfterFireIsNoop(t *testing.T) {
	svc := NewService(Config{})
	p := promise.New[struct{}](nil)

	svc.Schedule(time.Millisecond, p)
	require.NoError(t, waitDone(t, p, time.Second))

	svc.Cancel(p)
	_, err := p.Result()
	assert.NoError(t, err)
	assert.Equal(t, promise.StateSucceeded, p.State())
}

func TestCancelUnscheduledIsNoop(t *testing.T) {
	svc := NewService(Config{})
	p := promise.New[struct{}](nil)

	svc.Cancel(p)
	svc.Cancel(nil)

	assert.Equal(t, promise.StatePending, p.State())
}

func TestCancelFireRaceCompletesExactlyOnce(t *testing.T) {
	svc := NewService(Config{})
	const n = 200

	var succeeded, failed atomic.Int32
	promises := make([]*promise.Promise[struct{}], n)
	for i := range promises {
		promises[i] = promise.New(func(_ struct{}, err error) {
			if err != nil {
				failed.Add(1)
			} else {
				succeeded.Add(1)
			}
		})
		svc.Schedule(time.Millisecond, promises[i])
	}

	time.Sleep(time.Millisecond)
	for _, p := range promises {
		go svc.Cancel(p)
	}

	for _, p := range promises {
		waitDone(t, p, 2*time.Second)
	}
	assert.Equal(t, int32(n), succeeded.Load()+failed.Load())
}

func TestStop(t *testing.T) {
	svc := NewService(Config{})
	p1 := promise.New[struct{}](nil)
	p2 := promise.New[struct{}](nil)
	svc.Schedule(time.Hour, p1)
	svc.Schedule(time.Hour, p2)

	svc.Stop()
	assert.ErrorIs(t, waitDone(t, p1, time.Second), ErrCancelled)
	assert.ErrorIs(t, waitDone(t, p2, time.Second), ErrCancelled)

	p3 := promise.New[struct{}](nil)
	svc.Schedule(time.Millisecond, p3)
	assert.ErrorIs(t, waitDone(t, p3, time.Second), ErrStopped)
}

func TestScheduleLogsEvents(t *testing.T) {
	var mu sync.Mutex
	var outcomes []string
	svc := NewService(Config{ProtocolLogger: log.LoggerFunc(func(e log.Event) {
		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, e.Timer.Outcome)
	})})

	p := promise.New[struct{}](nil)
	svc.ScheduleMillis(1, p)
	require.NoError(t, waitDone(t, p, time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{OutcomeScheduled, OutcomeFired}, outcomes)
}

func TestBackoff(t *testing.T) {
	t.Run("Sequence", func(t *testing.T) {
		b := NewBackoff(BackoffConfig{Jitter: -1})
		want := []time.Duration{1, 2, 4, 8, 16, 32, 60, 60}
		for i, w := range want {
			assert.Equal(t, w*time.Second, b.Next(), "attempt %d", i)
		}
		assert.Equal(t, len(want), b.Attempts())
	})

	t.Run("JitterBounds", func(t *testing.T) {
		b := NewBackoff(BackoffConfig{Initial: 100 * time.Millisecond})
		d := b.Next()
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoff(BackoffConfig{})
		b.Next()
		b.Next()
		b.Reset()
		assert.Equal(t, DefaultInitialBackoff, b.Base())
		assert.Zero(t, b.Attempts())
	})

	t.Run("ScheduleNext", func(t *testing.T) {
		svc := NewService(Config{})
		b := NewBackoff(BackoffConfig{Initial: time.Millisecond, Jitter: -1})
		p := promise.New[struct{}](nil)

		assert.Equal(t, time.Millisecond, b.ScheduleNext(svc, p))
		assert.NoError(t, waitDone(t, p, time.Second))
	})
}

func TestCancelledErrorIsDistinguishable(t *testing.T) {
	svc := NewService(Config{})
	p := promise.New[struct{}](nil)
	svc.Schedule(time.Hour, p)
	svc.Cancel(p)

	_, err := p.Result()
	assert.False(t, errors.Is(err, &clienterr.Error{Kind: clienterr.KindTransport}))
	assert.True(t, errors.Is(err, &clienterr.Error{Kind: clienterr.KindCancelled}))
}
