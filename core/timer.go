package core

import (
	"container/heap"
	"sort"
	"time"
)

// timeout is one entry in a task's timer list. A nil err is a bare timer
// (plain wake); a non-nil err is delivered on wake by panicking at the task's
// next resume (Deadline uses this with *DeadlineReached).
type timeout struct {
	when time.Time
	err  error
	seq  uint64 // insertion order, breaks ties among equal deadlines
}

// addTimeout inserts a timer into the task's own sorted list and indexes the
// task in the scheduler's timeout heap. Owner thread only: timers are armed
// and disarmed exclusively at the task's own suspension points.
func (s *Scheduler) addTimeout(t *Task, when time.Time, err error) *timeout {
	s.timeoutSeq++
	to := &timeout{when: when, err: err, seq: s.timeoutSeq}
	i := sort.Search(len(t.timeouts), func(i int) bool {
		return t.timeouts[i].when.After(when)
	})
	t.timeouts = append(t.timeouts, nil)
	copy(t.timeouts[i+1:], t.timeouts[i:])
	t.timeouts[i] = to

	if t.heapIndex < 0 {
		heap.Push(&s.timeoutIndex, t)
	} else {
		heap.Fix(&s.timeoutIndex, t.heapIndex)
	}
	return to
}

// removeTimeout disarms a timer. Tolerant of timers the tick already
// consumed, so unwind paths can disarm unconditionally.
func (s *Scheduler) removeTimeout(t *Task, to *timeout) {
	for i, cur := range t.timeouts {
		if cur == to {
			t.timeouts = append(t.timeouts[:i], t.timeouts[i+1:]...)
			break
		}
	}
	s.reindexTimeouts(t)
}

func (s *Scheduler) reindexTimeouts(t *Task) {
	if t.heapIndex < 0 {
		return
	}
	if len(t.timeouts) == 0 {
		heap.Remove(&s.timeoutIndex, t.heapIndex)
		return
	}
	heap.Fix(&s.timeoutIndex, t.heapIndex)
}

func (t *Task) firstTimeout() *timeout {
	if len(t.timeouts) == 0 {
		return nil
	}
	return t.timeouts[0]
}

// tickTimeouts fires every due timer: the task's due entries are dequeued,
// an entry carrying an error parks it in the task's pending slot, and asleep
// tasks move to ready. Tasks that are already ready (a deadline elapsing
// under a running task) just keep the pending error for their next resume.
func (s *Scheduler) tickTimeouts() {
	for s.timeoutIndex.Len() > 0 {
		t := s.timeoutIndex.tasks[0]
		first := t.firstTimeout()
		if first == nil || first.when.After(s.now) {
			break
		}
		fired := false
		for len(t.timeouts) > 0 && !t.timeouts[0].when.After(s.now) {
			to := t.timeouts[0]
			t.timeouts = t.timeouts[1:]
			if to.err != nil && t.pendingErr == nil {
				t.pendingErr = to.err
			}
			fired = true
		}
		s.reindexTimeouts(t)
		if fired {
			s.cfg.Metrics.RecordTimerFired()
			if t.transition(stateReady) {
				s.unsafeReady(t)
			}
		}
	}
}

// nextTimeout returns the earliest armed timer across all tasks on this
// scheduler, or the zero time when none is armed.
func (s *Scheduler) nextTimeout() (time.Time, bool) {
	if s.timeoutIndex.Len() == 0 {
		return time.Time{}, false
	}
	first := s.timeoutIndex.tasks[0].firstTimeout()
	if first == nil {
		return time.Time{}, false
	}
	return first.when, true
}

// =============================================================================
// timeoutHeap: tasks ordered by their earliest timer
// =============================================================================

type timeoutHeap struct {
	tasks []*Task
}

func (h timeoutHeap) Len() int { return len(h.tasks) }

func (h timeoutHeap) Less(i, j int) bool {
	a, b := h.tasks[i].firstTimeout(), h.tasks[j].firstTimeout()
	if a.when.Equal(b.when) {
		return a.seq < b.seq
	}
	return a.when.Before(b.when)
}

func (h timeoutHeap) Swap(i, j int) {
	h.tasks[i], h.tasks[j] = h.tasks[j], h.tasks[i]
	h.tasks[i].heapIndex = i
	h.tasks[j].heapIndex = j
}

func (h *timeoutHeap) Push(x any) {
	t := x.(*Task)
	t.heapIndex = len(h.tasks)
	h.tasks = append(h.tasks, t)
}

func (h *timeoutHeap) Pop() any {
	old := h.tasks
	n := len(old)
	t := old[n-1]
	old[n-1] = nil // avoid memory leak
	t.heapIndex = -1
	h.tasks = old[:n-1]
	return t
}
