package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestScheduler_StartRunsImmediateCycle(t *testing.T) {
	var cycles atomic.Int32
	s := New(func(context.Context) error {
		cycles.Add(1)
		return nil
	}, time.Hour, zerolog.Nop())

	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, func() bool { return cycles.Load() == 1 })
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	var cycles atomic.Int32
	s := New(func(context.Context) error {
		cycles.Add(1)
		return nil
	}, time.Hour, zerolog.Nop())

	s.Start(context.Background())
	s.Start(context.Background())
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, func() bool { return cycles.Load() >= 1 })
	time.Sleep(50 * time.Millisecond)
	if got := cycles.Load(); got != 1 {
		t.Errorf("expected exactly 1 cycle after repeated Start, got %d", got)
	}
}

func TestScheduler_TriggerRunsCycle(t *testing.T) {
	var cycles atomic.Int32
	s := New(func(context.Context) error {
		cycles.Add(1)
		return nil
	}, time.Hour, zerolog.Nop())

	s.Start(context.Background())
	defer s.Stop()
	waitFor(t, func() bool { return cycles.Load() == 1 })

	s.Trigger()
	waitFor(t, func() bool { return cycles.Load() == 2 })
}

func TestScheduler_ConcurrentTriggersCollapse(t *testing.T) {
	release := make(chan struct{})
	var cycles atomic.Int32
	s := New(func(context.Context) error {
		cycles.Add(1)
		<-release
		return nil
	}, time.Hour, zerolog.Nop())

	s.Start(context.Background())
	// First cycle is now blocked inside refresh.
	waitFor(t, func() bool { return cycles.Load() == 1 })

	// Triggers arriving while a cycle is in flight are suppressed, not
	// queued.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Trigger()
		}()
	}
	wg.Wait()

	release <- struct{}{}
	time.Sleep(50 * time.Millisecond)
	close(release)
	s.Stop()

	if got := cycles.Load(); got != 1 {
		t.Errorf("expected suppressed triggers, got %d cycles", got)
	}
}

func TestScheduler_PendingTriggersCollapseToOne(t *testing.T) {
	var cycles atomic.Int32
	s := New(func(context.Context) error {
		cycles.Add(1)
		return nil
	}, time.Hour, zerolog.Nop())

	// Fire several triggers before Start: at most one is pending.
	s.Trigger()
	s.Trigger()
	s.Trigger()

	s.Start(context.Background())
	waitFor(t, func() bool { return cycles.Load() >= 1 })
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	// One immediate cycle plus the single pending trigger.
	if got := cycles.Load(); got != 2 {
		t.Errorf("expected 2 cycles, got %d", got)
	}
}

func TestScheduler_FailureDoesNotStopLoop(t *testing.T) {
	var cycles atomic.Int32
	s := New(func(context.Context) error {
		if cycles.Add(1) == 1 {
			return errors.New("predictor down")
		}
		return nil
	}, time.Hour, zerolog.Nop())

	s.Start(context.Background())
	defer s.Stop()
	waitFor(t, func() bool { return cycles.Load() == 1 })

	s.Trigger()
	waitFor(t, func() bool { return cycles.Load() == 2 })
}

func TestScheduler_StopWaitsForLoop(t *testing.T) {
	s := New(func(context.Context) error { return nil }, time.Hour, zerolog.Nop())
	s.Start(context.Background())
	s.Stop()

	// After Stop, Start may run again.
	s.Start(context.Background())
	s.Stop()
}

func TestScheduler_TickerFires(t *testing.T) {
	var cycles atomic.Int32
	s := New(func(context.Context) error {
		cycles.Add(1)
		return nil
	}, 10*time.Millisecond, zerolog.Nop())

	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, func() bool { return cycles.Load() >= 3 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// ---------------------------------------------------------------------------
// ViewSet
// ---------------------------------------------------------------------------

type fakeHandle struct {
	released int
}

func (h *fakeHandle) Release() { h.released++ }

type fakeRenderer struct {
	handles []*fakeHandle
	err     error
}

func (r *fakeRenderer) Render(string, interface{}) (Handle, error) {
	if r.err != nil {
		return nil, r.err
	}
	h := &fakeHandle{}
	r.handles = append(r.handles, h)
	return h, nil
}

func TestViewSet_ReleasesPriorHandleOnRerender(t *testing.T) {
	r := &fakeRenderer{}
	vs := NewViewSet(r)

	if err := vs.Render("roc", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := vs.Render("roc", 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(r.handles) != 2 {
		t.Fatalf("expected 2 handles, got %d", len(r.handles))
	}
	if r.handles[0].released != 1 {
		t.Errorf("expected first handle released once, got %d", r.handles[0].released)
	}
	if r.handles[1].released != 0 {
		t.Errorf("expected second handle still live, got %d releases", r.handles[1].released)
	}
}

func TestViewSet_FailedRenderKeepsPriorHandle(t *testing.T) {
	r := &fakeRenderer{}
	vs := NewViewSet(r)

	if err := vs.Render("confusion", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.err = errors.New("marshal failed")
	if err := vs.Render("confusion", 2); err == nil {
		t.Fatal("expected render error")
	}
	if r.handles[0].released != 0 {
		t.Error("prior handle must survive a failed render")
	}

	r.err = nil
	if err := vs.Render("confusion", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.handles[0].released != 1 {
		t.Error("prior handle must be released after a successful re-render")
	}
}

func TestViewSet_ReleaseFreesEverything(t *testing.T) {
	r := &fakeRenderer{}
	vs := NewViewSet(r)

	vs.Render("roc", 1)
	vs.Render("confusion", 1)
	vs.Release()

	for i, h := range r.handles {
		if h.released != 1 {
			t.Errorf("handle %d: expected 1 release, got %d", i, h.released)
		}
	}
	if len(vs.Views()) != 0 {
		t.Errorf("expected no views after Release, got %v", vs.Views())
	}
}

func TestViewSet_IndependentViews(t *testing.T) {
	r := &fakeRenderer{}
	vs := NewViewSet(r)

	vs.Render("roc", 1)
	vs.Render("confusion", 1)
	vs.Render("roc", 2)

	if r.handles[0].released != 1 {
		t.Error("re-rendering roc must release only the roc handle")
	}
	if r.handles[1].released != 0 {
		t.Error("confusion handle must not be touched by a roc re-render")
	}
}
