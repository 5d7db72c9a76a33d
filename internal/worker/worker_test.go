package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"rundown/internal/amqp"
	"rundown/internal/core"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	done  chan string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{done: make(chan string, 16)}
}

func (f *fakeRunner) Generate(_ context.Context, projectID string) (core.GenerationResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, projectID)
	f.mu.Unlock()
	f.done <- projectID
	return core.GenerationResult{ExecutionID: "exec", ProjectsProcessed: 1}, nil
}

func (f *fakeRunner) count(projectID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == projectID {
			n++
		}
	}
	return n
}

func TestNextRun(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2024, time.June, 15, 1, 30, 0, 0, time.UTC),
			want: time.Date(2024, time.June, 15, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly at schedule moves to tomorrow",
			now:  time.Date(2024, time.June, 15, 2, 0, 0, 0, time.UTC),
			want: time.Date(2024, time.June, 16, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "end of month rolls over",
			now:  time.Date(2024, time.June, 30, 23, 0, 0, 0, time.UTC),
			want: time.Date(2024, time.July, 1, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "end of year rolls over",
			now:  time.Date(2024, time.December, 31, 3, 0, 0, 0, time.UTC),
			want: time.Date(2025, time.January, 1, 2, 0, 0, 0, time.UTC),
		},
	}
	s := NewScheduler(newFakeRunner(), 2, 0, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.NextRun(tt.now); !got.Equal(tt.want) {
				t.Fatalf("NextRun(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestNextRunInLocation(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	s := NewScheduler(newFakeRunner(), 2, 0, loc)
	// 00:30 UTC is 01:30 CET, so the run is 30 minutes away.
	now := time.Date(2024, time.June, 15, 0, 30, 0, 0, time.UTC)
	if got := s.NextRun(now).Sub(now); got != 30*time.Minute {
		t.Fatalf("next run in %v, want 30m", got)
	}
}

func TestSchedulerRunsBatchUntilCancelled(t *testing.T) {
	runner := newFakeRunner()
	s := NewScheduler(runner, 2, 0, nil)

	var waits []time.Duration
	fire := make(chan time.Time)
	s.now = func() time.Time { return time.Date(2024, time.June, 15, 1, 0, 0, 0, time.UTC) }
	s.after = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		return fire
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()

	for i := 0; i < 2; i++ {
		fire <- time.Time{}
		if got := <-runner.done; got != "" {
			t.Fatalf("scheduled run should be a batch, got project %q", got)
		}
	}
	cancel()
	<-stopped

	if len(waits) < 2 || waits[0] != time.Hour {
		t.Fatalf("unexpected waits %v", waits)
	}
}

func TestChangeConsumerCoalescesBursts(t *testing.T) {
	runner := newFakeRunner()
	c := NewChangeConsumer(context.Background(), runner, time.Hour)
	defer c.Close()

	for i := 0; i < 5; i++ {
		msg := amqp.NewProjectChangedMessage("p1", amqp.ChangeInserted, "e1")
		if err := c.HandleProjectChanged(context.Background(), msg); err != nil {
			t.Fatalf("HandleProjectChanged: %v", err)
		}
	}
	c.Notify("p2")

	if c.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", c.Pending())
	}
	c.Drain()

	if runner.count("p1") != 1 || runner.count("p2") != 1 {
		t.Fatalf("expected one run per project, got p1=%d p2=%d", runner.count("p1"), runner.count("p2"))
	}
}

func TestChangeConsumerWindowElapses(t *testing.T) {
	runner := newFakeRunner()
	c := NewChangeConsumer(context.Background(), runner, 10*time.Millisecond)
	defer c.Close()

	c.Notify("p1")
	select {
	case got := <-runner.done:
		if got != "p1" {
			t.Fatalf("regenerated %q, want p1", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("debounced regeneration never ran")
	}
}

func TestChangeConsumerRejectsInvalidAndClosed(t *testing.T) {
	runner := newFakeRunner()
	c := NewChangeConsumer(context.Background(), runner, time.Hour)

	if err := c.HandleProjectChanged(context.Background(), &amqp.ProjectChangedMessage{}); err == nil {
		t.Fatal("expected error for message without project id")
	}

	c.Notify("p1")
	c.Close()
	if c.Notify("p1") {
		t.Fatal("Notify after Close should report false")
	}
	if err := c.HandleProjectChanged(context.Background(), amqp.NewProjectChangedMessage("p1", "", "")); err == nil {
		t.Fatal("expected error after Close")
	}
	if runner.count("p1") != 0 {
		t.Fatal("Close should drop pending regenerations")
	}
}
