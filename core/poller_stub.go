//go:build !linux

package core

import (
	"context"
	"errors"
	"time"
)

// IODir selects which readiness an FdWait is for.
type IODir int

const (
	IORead IODir = iota
	IOWrite
)

// FdWait requires the linux poller; elsewhere every scheduler runs without
// I/O multiplexing and fd waits are rejected.
func FdWait(ctx context.Context, fd int, dir IODir, timeout time.Duration) (bool, error) {
	mustCurrentTask(ctx, "FdWait")
	return false, &IoError{Op: "fdwait", Err: errors.New("not supported on this platform")}
}

type poller struct{}

func (s *Scheduler) getPoller() (*poller, error) {
	return nil, &IoError{Op: "poller", Err: errors.New("not supported on this platform")}
}

func (p *poller) wait(bound time.Time, hasBound bool) {}
func (p *poller) interrupt()                          {}
func (p *poller) close()                              {}
