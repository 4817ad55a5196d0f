// Package queue serializes agent runs per conversation.
//
// Each (app, chat) pair owns a lane: a FIFO of pending tasks with at most one
// task in flight. Lanes are independent, so different conversations execute
// in parallel while work inside one conversation never overlaps. This is what
// keeps a conversation's workspace and session history consistent.
package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentsocial/agentsocial/internal/agent/executor"
	"github.com/agentsocial/agentsocial/internal/common/logger"
	v1 "github.com/agentsocial/agentsocial/pkg/api/v1"
)

// defaultIdleTTL is how long an empty lane survives before the janitor
// removes it.
const defaultIdleTTL = 30 * time.Minute

// Runner executes one agent run to completion.
type Runner interface {
	Run(ctx context.Context, req executor.RunRequest) (*executor.ExecutionResult, error)
}

// Task is one unit of conversation work. Tasks are immutable after Enqueue.
type Task struct {
	Request executor.RunRequest
}

// Result is delivered on a task's result channel exactly once.
type Result struct {
	Execution *executor.ExecutionResult
	Err       error
}

type lane struct {
	key        string
	pending    []*queuedTask
	inFlight   bool
	lastActive time.Time
}

type queuedTask struct {
	task   Task
	ctx    context.Context
	result chan Result
}

// Queue dispatches tasks to a Runner, one at a time per conversation.
type Queue struct {
	runner  Runner
	logger  *logger.Logger
	idleTTL time.Duration

	mu    sync.Mutex
	lanes map[string]*lane

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

// New creates a Queue and starts its idle-lane janitor.
func New(runner Runner, log *logger.Logger) *Queue {
	if log == nil {
		log = logger.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		runner:  runner,
		logger:  log.WithFields(zap.String("component", "queue")),
		idleTTL: defaultIdleTTL,
		lanes:   make(map[string]*lane),
		baseCtx: ctx,
		cancel:  cancel,
	}

	q.wg.Add(1)
	go q.janitor()

	return q
}

func laneKey(appID, chatID string) string {
	return appID + ":" + chatID
}

// Enqueue adds a task to its conversation's lane and returns a channel that
// receives the task's result exactly once. Tasks in the same lane run in
// arrival order; tasks in different lanes run concurrently.
//
// The task's context cancels only that task's run, not the lane.
func (q *Queue) Enqueue(ctx context.Context, task Task) <-chan Result {
	result := make(chan Result, 1)
	qt := &queuedTask{task: task, ctx: ctx, result: result}
	key := laneKey(task.Request.AppID, task.Request.ChatID)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		result <- Result{Err: context.Canceled}
		return result
	}

	l, ok := q.lanes[key]
	if !ok {
		l = &lane{key: key}
		q.lanes[key] = l
	}
	l.pending = append(l.pending, qt)
	l.lastActive = time.Now()

	depth := len(l.pending)
	start := !l.inFlight
	if start {
		l.inFlight = true
		q.wg.Add(1)
	}
	q.mu.Unlock()

	q.logger.Debug("task enqueued",
		zap.String("lane", key),
		zap.String("mode", string(task.Request.Mode)),
		zap.Int("depth", depth))

	if start {
		go q.drain(l)
	}
	return result
}

// drain runs one lane until its queue is empty, then marks it idle.
func (q *Queue) drain(l *lane) {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if len(l.pending) == 0 || q.closed {
			l.inFlight = false
			l.lastActive = time.Now()
			q.mu.Unlock()
			return
		}
		qt := l.pending[0]
		l.pending = l.pending[1:]
		q.mu.Unlock()

		q.runTask(l, qt)
	}
}

func (q *Queue) runTask(l *lane, qt *queuedTask) {
	ctx := qt.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		qt.result <- Result{Err: ctx.Err()}
		return
	case <-q.baseCtx.Done():
		qt.result <- Result{Err: context.Canceled}
		return
	default:
	}

	res, err := q.runner.Run(ctx, qt.task.Request)
	if err != nil {
		q.logger.Error("task failed",
			zap.String("lane", l.key), zap.Error(err))
	}
	qt.result <- Result{Execution: res, Err: err}
}

// janitor periodically removes lanes that have been idle past the TTL.
func (q *Queue) janitor() {
	defer q.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-q.baseCtx.Done():
			return
		case <-ticker.C:
			q.evictIdle(time.Now())
		}
	}
}

func (q *Queue) evictIdle(now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for key, l := range q.lanes {
		if !l.inFlight && len(l.pending) == 0 && now.Sub(l.lastActive) > q.idleTTL {
			delete(q.lanes, key)
			q.logger.Debug("idle lane evicted", zap.String("lane", key))
		}
	}
}

// Snapshot returns lane states for the status API.
func (q *Queue) Snapshot() []v1.LaneSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]v1.LaneSnapshot, 0, len(q.lanes))
	for key, l := range q.lanes {
		result = append(result, v1.LaneSnapshot{
			Key:      key,
			Pending:  len(l.pending),
			InFlight: l.inFlight,
		})
	}
	return result
}

// Close rejects new tasks, fails pending ones, and waits for in-flight runs
// to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	var orphaned []*queuedTask
	for _, l := range q.lanes {
		orphaned = append(orphaned, l.pending...)
		l.pending = nil
	}
	q.mu.Unlock()

	for _, qt := range orphaned {
		qt.result <- Result{Err: context.Canceled}
	}

	q.cancel()
	q.wg.Wait()
}
