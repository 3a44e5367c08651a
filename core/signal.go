package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
)

var sigpipeOnce sync.Once

// ignoreSigpipe makes broken-pipe writes surface as EPIPE errors instead of
// killing the process. The runtime installs nothing else: all other signals
// stay with the host program.
func ignoreSigpipe() {
	sigpipeOnce.Do(func() {
		signal.Ignore(syscall.SIGPIPE)
	})
}

// DumpOnSignal installs a diagnostic dump of all live tasks on the given
// signal (typically SIGUSR1 or SIGQUIT, the caller's choice). The watcher is
// a system task on the calling task's scheduler: it shows up in dumps and
// stats like any other task, and when the scheduler drains it is canceled
// and tears the signal registration back down. Only the given signal is
// touched.
//
// Signal delivery itself is pumped by a minimal forwarder goroutine, since a
// Go signal channel is not a wake source a scheduler can poll; the forwarder
// lives exactly as long as the system task does.
func DumpOnSignal(ctx context.Context, sig os.Signal) *Task {
	t := mustCurrentTask(ctx, "DumpOnSignal")

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sig)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				DumpTasks(os.Stderr)
			case <-stop:
				return
			}
		}
	}()

	return t.sched.SpawnSystem(func(ctx context.Context) {
		SetName(ctx, "signal-dump")
		SetStatus(ctx, "watching %v", sig)
		defer func() {
			signal.Stop(ch)
			close(stop)
		}()
		for {
			SleepFor(ctx, time.Hour)
		}
	})
}

// DumpTasks writes, for each registered scheduler, a header line with its
// task counts followed by one line per task (the scheduler's main context
// included): id, state, name, and status.
func DumpTasks(w *os.File) {
	var b strings.Builder
	for i, s := range processRegistry.snapshot() {
		fmt.Fprintf(&b, "scheduler %d: %d tasks (%d user)\n",
			i, s.Stats().LiveTasks, s.Stats().UserTasks)
		s.EachTask(func(t *Task) {
			fmt.Fprintf(&b, "  task[%d,%s]", t.ID(), t.State())
			if name := t.Name(); name != "" {
				fmt.Fprintf(&b, " name=%q", name)
			}
			if status := t.Status(); status != "" {
				fmt.Fprintf(&b, " status=%q", status)
			}
			b.WriteByte('\n')
		})
	}
	w.WriteString(b.String())
}
