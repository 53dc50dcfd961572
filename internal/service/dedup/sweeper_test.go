package dedup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/metrics"
	"github.com/vladislavdragonenkov/shopbot/internal/storage/memory"
)

var _ domain.DedupGuard = (*stubGuard)(nil)

func TestSweeper_DeleteExpired_Batches(t *testing.T) {
	t.Parallel()

	guard := &stubGuard{deleteResults: []int{2, 2, 1}}
	sweeper := NewSweeper(guard, WithBatchSize(2), WithMetrics(metrics.NewSweepMetrics(prometheus.NewRegistry())))

	deleted, err := sweeper.DeleteExpired(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 5 {
		t.Fatalf("unexpected deleted total: got=%d want=5", deleted)
	}
	if calls := guard.calls(); calls != 3 {
		t.Fatalf("unexpected delete calls: got=%d want=3", calls)
	}
}

func TestSweeper_DeleteExpired_Error(t *testing.T) {
	t.Parallel()

	guard := &stubGuard{deleteErrors: []error{errors.New("boom")}}
	sweeper := NewSweeper(guard, WithBatchSize(10))

	deleted, err := sweeper.DeleteExpired(context.Background(), time.Now())
	if err == nil {
		t.Fatal("expected DeleteExpired error")
	}
	if deleted != 0 {
		t.Fatalf("unexpected deleted total: got=%d want=0", deleted)
	}
}

func TestSweeper_ForgetsExpiredOrdersOnly(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	guard := memory.NewDedupGuard()
	if err := guard.Remember("PBS-old", now.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := guard.Remember("PBS-fresh", now.Add(5*time.Minute)); err != nil {
		t.Fatal(err)
	}

	sweeper := NewSweeper(guard, WithClock(func() time.Time { return now }))
	sweeper.sweep(context.Background())

	if ok, _ := guard.Contains("PBS-old", now.Add(-2*time.Minute)); ok {
		t.Fatal("expired record must be removed")
	}
	if ok, _ := guard.Contains("PBS-fresh", now); !ok {
		t.Fatal("record inside the window must survive")
	}
}

func TestSweeper_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	guard := &stubGuard{}
	sweeper := NewSweeper(guard, WithInterval(5*time.Millisecond), WithBatchSize(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
	if calls := guard.calls(); calls == 0 {
		t.Fatal("expected sweep to be called at least once")
	}
}

type stubGuard struct {
	mu sync.Mutex

	deleteResults []int
	deleteErrors  []error
	callCount     int
}

func (s *stubGuard) Remember(string, time.Time) error { return nil }

func (s *stubGuard) Contains(string, time.Time) (bool, error) { return false, nil }

func (s *stubGuard) DeleteExpired(_ time.Time, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	if len(s.deleteErrors) > 0 {
		err := s.deleteErrors[0]
		s.deleteErrors = s.deleteErrors[1:]
		if err != nil {
			return 0, err
		}
	}
	if len(s.deleteResults) == 0 {
		return 0, nil
	}
	result := s.deleteResults[0]
	s.deleteResults = s.deleteResults[1:]
	return result, nil
}

func (s *stubGuard) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}
