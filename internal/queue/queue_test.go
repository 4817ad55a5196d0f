package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agentsocial/agentsocial/internal/agent/executor"
	v1 "github.com/agentsocial/agentsocial/pkg/api/v1"
)

type fakeRunner struct {
	run func(ctx context.Context, req executor.RunRequest) (*executor.ExecutionResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, req executor.RunRequest) (*executor.ExecutionResult, error) {
	return f.run(ctx, req)
}

func task(appID, chatID, command string) Task {
	return Task{Request: executor.RunRequest{
		AppID:   appID,
		ChatID:  chatID,
		Mode:    v1.RunModeAuto,
		Command: command,
	}}
}

func TestSameLaneRunsInOrderWithoutOverlap(t *testing.T) {
	var mu sync.Mutex
	var order []string
	running := 0
	maxRunning := 0

	runner := &fakeRunner{run: func(ctx context.Context, req executor.RunRequest) (*executor.ExecutionResult, error) {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		order = append(order, req.Command)
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return &executor.ExecutionResult{}, nil
	}}

	q := New(runner, nil)
	defer q.Close()

	var results []<-chan Result
	for _, cmd := range []string{"first", "second", "third"} {
		results = append(results, q.Enqueue(context.Background(), task("app", "chat", cmd)))
	}
	for _, ch := range results {
		select {
		case res := <-ch:
			if res.Err != nil {
				t.Fatalf("task error = %v", res.Err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("task result never delivered")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if maxRunning != 1 {
		t.Errorf("max concurrent runs in one lane = %d, want 1", maxRunning)
	}
	want := []string{"first", "second", "third"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("run order = %v, want %v", order, want)
		}
	}
}

func TestDifferentLanesRunConcurrently(t *testing.T) {
	// Both tasks block until the other has started. They can only both
	// finish if the lanes run in parallel.
	started := make(chan string, 2)
	release := make(chan struct{})

	runner := &fakeRunner{run: func(ctx context.Context, req executor.RunRequest) (*executor.ExecutionResult, error) {
		started <- req.ChatID
		select {
		case <-release:
		case <-time.After(5 * time.Second):
			t.Error("peer lane never started; lanes are serialized against each other")
		}
		return &executor.ExecutionResult{}, nil
	}}

	q := New(runner, nil)
	defer q.Close()

	a := q.Enqueue(context.Background(), task("app", "chat-a", "x"))
	b := q.Enqueue(context.Background(), task("app", "chat-b", "x"))

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatal("second lane never started")
		}
	}
	close(release)

	for _, ch := range []<-chan Result{a, b} {
		select {
		case res := <-ch:
			if res.Err != nil {
				t.Fatalf("task error = %v", res.Err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("task result never delivered")
		}
	}
}

func TestSnapshotReportsLaneState(t *testing.T) {
	blocked := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once

	runner := &fakeRunner{run: func(ctx context.Context, req executor.RunRequest) (*executor.ExecutionResult, error) {
		once.Do(func() { close(entered) })
		<-blocked
		return &executor.ExecutionResult{}, nil
	}}

	q := New(runner, nil)
	defer q.Close()

	first := q.Enqueue(context.Background(), task("app", "chat", "one"))
	<-entered
	second := q.Enqueue(context.Background(), task("app", "chat", "two"))

	snap := q.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("len(Snapshot()) = %d, want 1", len(snap))
	}
	if !snap[0].InFlight {
		t.Error("InFlight = false with a running task")
	}
	if snap[0].Pending != 1 {
		t.Errorf("Pending = %d, want 1", snap[0].Pending)
	}

	close(blocked)
	<-first
	<-second
}

func TestCloseFailsPendingTasks(t *testing.T) {
	blocked := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once

	runner := &fakeRunner{run: func(ctx context.Context, req executor.RunRequest) (*executor.ExecutionResult, error) {
		once.Do(func() { close(entered) })
		<-blocked
		return &executor.ExecutionResult{}, nil
	}}

	q := New(runner, nil)

	first := q.Enqueue(context.Background(), task("app", "chat", "one"))
	<-entered
	pending := q.Enqueue(context.Background(), task("app", "chat", "two"))

	// Close while the first task is still blocked, so the pending task is
	// guaranteed to be orphaned rather than picked up.
	done := make(chan struct{})
	go func() {
		q.Close()
		close(done)
	}()

	select {
	case res := <-pending:
		if res.Err == nil {
			t.Error("pending task completed after Close(), want cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pending task result never delivered")
	}

	close(blocked)
	<-first
	<-done

	// Enqueue after Close fails immediately.
	res := <-q.Enqueue(context.Background(), task("app", "chat", "three"))
	if res.Err == nil {
		t.Error("Enqueue() after Close() succeeded")
	}
}

func TestIdleLanesAreEvicted(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, req executor.RunRequest) (*executor.ExecutionResult, error) {
		return &executor.ExecutionResult{}, nil
	}}

	q := New(runner, nil)
	defer q.Close()

	<-q.Enqueue(context.Background(), task("app", "chat", "x"))

	if len(q.Snapshot()) != 1 {
		t.Fatalf("lane missing after run")
	}

	q.evictIdle(time.Now().Add(defaultIdleTTL + time.Minute))

	if got := len(q.Snapshot()); got != 0 {
		t.Errorf("lanes after eviction = %d, want 0", got)
	}
}
