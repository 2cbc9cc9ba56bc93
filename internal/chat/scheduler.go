package chat

import (
	"container/heap"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs deferred tasks on a single background goroutine. Tasks are
// fired in due-time order; a panicking task is logged and does not take the
// worker down.
type Scheduler struct {
	mu      sync.Mutex
	tasks   taskHeap
	wake    chan struct{}
	done    chan struct{}
	stopped bool
	logger  *zap.Logger
}

type deferredTask struct {
	at time.Time
	fn func()
}

type taskHeap []*deferredTask

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)         { *h = append(*h, x.(*deferredTask)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// NewScheduler constructs a scheduler and starts its worker goroutine.
func NewScheduler(logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go s.run()
	return s
}

// Schedule queues fn to run after delay. Scheduling on a stopped scheduler is
// a no-op.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	heap.Push(&s.tasks, &deferredTask{at: time.Now().Add(delay), fn: fn})
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop shuts the worker down. Pending tasks are discarded. Stop is
// idempotent and returns once the worker has exited.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.stopped = true
	s.tasks = nil
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		var due *deferredTask
		wait := time.Duration(-1)
		if len(s.tasks) > 0 {
			next := s.tasks[0]
			if d := time.Until(next.at); d <= 0 {
				due = heap.Pop(&s.tasks).(*deferredTask)
			} else {
				wait = d
			}
		}
		s.mu.Unlock()

		if due != nil {
			s.fire(due.fn)
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if wait >= 0 {
			timer.Reset(wait)
			select {
			case <-timer.C:
			case <-s.wake:
			}
		} else {
			select {
			case <-s.wake:
			}
		}
	}
}

func (s *Scheduler) fire(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
