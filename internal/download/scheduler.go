package download

import (
	"container/heap"
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/zerocas99/zenload/internal/alerts"
	"github.com/zerocas99/zenload/internal/config"
	"github.com/zerocas99/zenload/internal/media"
	"github.com/zerocas99/zenload/internal/platform"
)

// ErrTooManyDownloads is the hard per-user rejection: the request is never
// queued, the user retries later.
var ErrTooManyDownloads = errors.New("too many concurrent downloads for this user")

// ErrShuttingDown rejects submissions once Shutdown has begun.
var ErrShuttingDown = errors.New("scheduler is shutting down")

// Task is one admitted download request and its live state.
type Task struct {
	ID         string
	Request    media.Request
	Strategy   platform.Strategy
	Progress   *Progress
	EnqueuedAt time.Time

	// Lower priority runs sooner; seq breaks ties in submission order.
	priority int
	seq      uint64
	index    int

	mu    sync.Mutex
	state string // queued | running | done | error
	err   error
}

func (t *Task) setState(state string, err error) {
	t.mu.Lock()
	t.state = state
	t.err = err
	t.mu.Unlock()
}

// TaskSnapshot is a point-in-time view for the status API.
type TaskSnapshot struct {
	ID         string      `json:"id"`
	State      string      `json:"state"`
	Stage      media.Stage `json:"stage,omitempty"`
	Percent    int         `json:"percent"`
	Error      string      `json:"error,omitempty"`
	Platform   string      `json:"platform,omitempty"`
	EnqueuedAt time.Time   `json:"enqueuedAt"`
}

func (t *Task) Snapshot() TaskSnapshot {
	t.mu.Lock()
	state, err := t.state, t.err
	t.mu.Unlock()

	snap := TaskSnapshot{
		ID:         t.ID,
		State:      state,
		EnqueuedAt: t.EnqueuedAt,
	}
	if t.Strategy != nil {
		snap.Platform = t.Strategy.Name()
	}
	if ev, ok := t.Progress.Last(); ok {
		snap.Stage = ev.Stage
		snap.Percent = ev.Percent
	}
	if err != nil {
		snap.Error = err.Error()
	}
	return snap
}

// taskHeap is a min-heap over (priority, seq).
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Scheduler admits requests under a per-user cap, orders them by how busy
// their user already is, and runs them under a global concurrency bound.
// Users with nothing in flight jump ahead of users hogging slots.
type Scheduler struct {
	worker *Worker

	mu       sync.Mutex
	queue    taskHeap
	tasks    map[string]*Task
	perUser  map[int64]int
	running  int
	seq      uint64
	draining bool

	sem    *semaphore.Weighted
	wake   chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func NewScheduler(worker *Worker) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		worker:  worker,
		tasks:   make(map[string]*Task),
		perUser: make(map[int64]int),
		sem:     semaphore.NewWeighted(config.MaxConcurrentDownloads),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	go s.loop()
	return s
}

// Submit admits a request or rejects it outright. The per-user check and
// queue insertion happen under one lock so concurrent submissions cannot
// slip past the cap.
func (s *Scheduler) Submit(req media.Request, strategy platform.Strategy) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draining {
		return nil, ErrShuttingDown
	}
	if s.perUser[req.UserID] >= config.MaxDownloadsPerUser {
		alerts.QueueRejected(req.UserID)
		return nil, ErrTooManyDownloads
	}

	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	s.seq++
	task := &Task{
		ID:         req.CorrelationID,
		Request:    req,
		Strategy:   strategy,
		Progress:   NewProgress(),
		EnqueuedAt: time.Now(),
		priority:   s.perUser[req.UserID],
		seq:        s.seq,
		state:      "queued",
	}
	s.perUser[req.UserID]++
	s.tasks[task.ID] = task
	heap.Push(&s.queue, task)

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return task, nil
}

// Lookup returns a previously submitted task by correlation ID.
func (s *Scheduler) Lookup(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// QueueStats describes scheduler occupancy.
type QueueStats struct {
	Queued  int `json:"queued"`
	Running int `json:"running"`
	Users   int `json:"users"`
}

func (s *Scheduler) Stats() QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return QueueStats{
		Queued:  s.queue.Len(),
		Running: s.running,
		Users:   len(s.perUser),
	}
}

func (s *Scheduler) loop() {
	for {
		// Take the slot first so the pick happens at dispatch time: a
		// less-busy user submitting while we wait still goes first.
		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			return
		}

		task := s.pop()
		for task == nil {
			select {
			case <-s.wake:
			case <-s.ctx.Done():
				s.sem.Release(1)
				return
			}
			task = s.pop()
		}

		// The draining check and wg.Add share the lock with Shutdown so a
		// dispatch can never slip in after the drain wait has started.
		s.mu.Lock()
		if s.draining {
			s.mu.Unlock()
			s.sem.Release(1)
			s.release(task, ErrShuttingDown)
			continue
		}
		s.running++
		s.wg.Add(1)
		s.mu.Unlock()
		task.setState("running", nil)

		go func(t *Task) {
			defer s.wg.Done()
			defer s.sem.Release(1)
			err := s.worker.Run(s.ctx, t)
			s.release(t, err)
		}(task)
	}
}

func (s *Scheduler) pop() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return nil
	}
	return heap.Pop(&s.queue).(*Task)
}

// release retires a finished (or never-started) task: per-user slot back,
// terminal state recorded, progress stream closed.
func (s *Scheduler) release(t *Task, err error) {
	t.mu.Lock()
	wasRunning := t.state == "running"
	t.mu.Unlock()

	s.mu.Lock()
	if s.perUser[t.Request.UserID] > 1 {
		s.perUser[t.Request.UserID]--
	} else {
		delete(s.perUser, t.Request.UserID)
	}
	if wasRunning {
		s.running--
	}
	s.mu.Unlock()

	if err != nil {
		t.setState("error", err)
	} else {
		t.setState("done", nil)
	}
	t.Progress.Close()

	// The registry is an admission table, not a log: terminal entries stay
	// only long enough for a status poll to catch the outcome.
	time.AfterFunc(config.TaskRetention, func() {
		s.mu.Lock()
		delete(s.tasks, t.ID)
		s.mu.Unlock()
	})
}

// Shutdown stops admissions, waits up to the drain window for in-flight
// downloads, then cancels whatever is left. Safe to call more than once.
func (s *Scheduler) Shutdown() {
	s.once.Do(func() {
		s.mu.Lock()
		s.draining = true
		s.mu.Unlock()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			log.Println("[Scheduler] Drained cleanly")
		case <-time.After(config.ShutdownDrain):
			log.Println("[Scheduler] Drain timeout, cancelling tasks")
		}
		s.cancel()
		<-done

		// Whatever never got a slot still ends in a terminal state.
		for {
			t := s.pop()
			if t == nil {
				break
			}
			s.release(t, ErrShuttingDown)
		}
	})
}
