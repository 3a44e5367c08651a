//go:build linux

package core

import (
	"context"
	"time"

	"fortio.org/safecast"
	"golang.org/x/sys/unix"
)

// IODir selects which readiness an FdWait is for.
type IODir int

const (
	IORead IODir = iota
	IOWrite
)

// FdWait suspends the calling task until fd is ready for the given direction,
// the timeout elapses, or the task is canceled. It returns true when the fd
// is ready and ErrTimeout when the timer won. A timeout <= 0 waits
// indefinitely. A cancellation point.
//
// At most one task may wait for read and one for write on a given fd.
func FdWait(ctx context.Context, fd int, dir IODir, d time.Duration) (bool, error) {
	t := mustCurrentTask(ctx, "FdWait")
	s := t.sched
	p, err := s.getPoller()
	if err != nil {
		return false, err
	}
	if err := p.register(fd, dir, t); err != nil {
		return false, err
	}
	defer p.unregister(fd, dir)

	var to *timeout
	if d > 0 {
		to = s.addTimeout(t, s.Now().Add(d), nil)
		defer s.removeTimeout(t, to)
	}

	t.fdReady = false
	t.transition(stateAsleep)
	t.enterCancelPoint()
	defer t.exitCancelPoint()
	s.schedule()

	if !t.fdReady && to != nil {
		return false, ErrTimeout
	}
	return t.fdReady, nil
}

// =============================================================================
// poller: per-scheduler edge-triggered epoll with a self-pipe
// =============================================================================

type fdEntry struct {
	fd     int
	reader *Task
	writer *Task
	events uint32
}

type poller struct {
	s      *Scheduler
	epfd   int
	pipeR  int
	pipeW  int
	fds    map[int]*fdEntry
	events []unix.EpollEvent
}

// getPoller lazily creates the scheduler's poller. Creation happens on the
// owner thread; once published (under mu) wakers may use its self-pipe.
func (s *Scheduler) getPoller() (*poller, error) {
	if s.pol != nil {
		return s.pol, nil
	}
	p, err := newPoller(s)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.pol = p
	s.mu.Unlock()
	return p, nil
}

func newPoller(s *Scheduler) (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, &IoError{Op: "epoll_create1", Err: err}
	}
	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		unix.Close(epfd)
		return nil, &IoError{Op: "pipe2", Err: err}
	}
	p := &poller{
		s:      s,
		epfd:   epfd,
		pipeR:  pipe[0],
		pipeW:  pipe[1],
		fds:    make(map[int]*fdEntry),
		events: make([]unix.EpollEvent, s.cfg.PollBatch),
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(pipe[0])}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, pipe[0], &ev); err != nil {
		p.close()
		return nil, &IoError{Op: "epoll_ctl", Err: err}
	}
	return p, nil
}

func (p *poller) close() {
	unix.Close(p.epfd)
	unix.Close(p.pipeR)
	unix.Close(p.pipeW)
}

// register adds the task to the fd's reader or writer slot and updates the
// kernel mask to the union of both interests.
func (p *poller) register(fd int, dir IODir, t *Task) error {
	e := p.fds[fd]
	op := unix.EPOLL_CTL_MOD
	if e == nil {
		e = &fdEntry{fd: fd}
		p.fds[fd] = e
		op = unix.EPOLL_CTL_ADD
	}
	switch dir {
	case IORead:
		if e.reader != nil && e.reader != t {
			panic(usage("FdWait: fd %d already has a read waiter (task %d)", fd, e.reader.id))
		}
		e.reader = t
	case IOWrite:
		if e.writer != nil && e.writer != t {
			panic(usage("FdWait: fd %d already has a write waiter (task %d)", fd, e.writer.id))
		}
		e.writer = t
	}
	if err := p.update(e, op); err != nil {
		// roll the slot back so a bad fd leaves no registration behind
		p.unregister(fd, dir)
		return err
	}
	return nil
}

// unregister drops the slot and re-registers or removes the fd as
// appropriate. Runs on every exit path of FdWait, including unwinding.
func (p *poller) unregister(fd int, dir IODir) {
	e := p.fds[fd]
	if e == nil {
		return
	}
	switch dir {
	case IORead:
		e.reader = nil
	case IOWrite:
		e.writer = nil
	}
	if e.reader == nil && e.writer == nil {
		delete(p.fds, fd)
		unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		return
	}
	p.update(e, unix.EPOLL_CTL_MOD)
}

func (p *poller) update(e *fdEntry, op int) error {
	var mask uint32 = unix.EPOLLET | unix.EPOLLRDHUP
	if e.reader != nil {
		mask |= unix.EPOLLIN
	}
	if e.writer != nil {
		mask |= unix.EPOLLOUT
	}
	e.events = mask
	ev := unix.EpollEvent{Events: mask, Fd: int32(e.fd)}
	if err := unix.EpollCtl(p.epfd, op, e.fd, &ev); err != nil {
		return &IoError{Op: "epoll_ctl", Err: err}
	}
	return nil
}

// wait blocks in epoll_wait until readiness, a self-pipe poke, or the timer
// bound, then readies the waiting tasks of every reported fd.
func (p *poller) wait(bound time.Time, hasBound bool) {
	ms := -1
	if hasBound {
		d := time.Until(bound)
		if d < 0 {
			d = 0
		}
		// round up so we never wake before the earliest timer
		v, err := safecast.Conv[int]((d + time.Millisecond - 1) / time.Millisecond)
		if err != nil {
			v = 1 << 30
		}
		ms = v
	}

	var n int
	var err error
	for {
		n, err = unix.EpollWait(p.epfd, p.events, ms)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		fatal("epoll_wait: " + err.Error())
	}

	for i := 0; i < n; i++ {
		ev := p.events[i]
		fd := int(ev.Fd)
		if fd == p.pipeR {
			p.drainPipe()
			continue
		}
		e := p.fds[fd]
		if e == nil {
			continue
		}
		if ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLERR|unix.EPOLLHUP) != 0 && e.reader != nil {
			p.wakeWaiter(e.reader)
		}
		if ev.Events&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLHUP) != 0 && e.writer != nil {
			p.wakeWaiter(e.writer)
		}
	}
}

func (p *poller) wakeWaiter(t *Task) {
	t.fdReady = true
	p.s.cfg.Metrics.RecordPollWake()
	if t.transition(stateReady) {
		p.s.unsafeReady(t)
	}
}

// drainPipe empties the self-pipe so coalesced wake bytes don't keep the
// level-triggered pipe registration hot.
func (p *poller) drainPipe() {
	var buf [64]byte
	for {
		n, err := unix.Read(p.pipeR, buf[:])
		if n < len(buf) || err != nil {
			return
		}
	}
}

// interrupt breaks a concurrent epoll_wait from another thread with a
// one-byte write. A full pipe already guarantees a pending wake.
func (p *poller) interrupt() {
	var b [1]byte
	unix.Write(p.pipeW, b[:])
}
