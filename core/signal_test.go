package core_test

import (
	"context"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/WenchaoChen/libten/core"
)

// TestDumpOnSignal_WatcherIsASystemTask verifies the watcher is a real task
// on the installing scheduler and does not keep the scheduler alive once the
// user tasks are done.
// Given: A root task that installs DumpOnSignal
// When: The root task returns
// Then: The scheduler drains (canceling the watcher), so run() terminates
func TestDumpOnSignal_WatcherIsASystemTask(t *testing.T) {
	var watcher *core.Task
	run(t, func(ctx context.Context) {
		watcher = core.DumpOnSignal(ctx, syscall.SIGUSR2)
		if watcher == nil {
			t.Error("DumpOnSignal returned no task")
			return
		}
		core.Yield(ctx) // let the watcher start and park in its sleep
		if got := watcher.Name(); got != "signal-dump" {
			t.Errorf("watcher name = %q, want signal-dump", got)
		}
	})
	// run() returning proves the system task was canceled at drain; its
	// cleanup stopped the signal registration and the forwarder.
	if got := watcher.State(); got != "finished" {
		t.Errorf("watcher state after drain = %q, want finished", got)
	}
}

// TestDumpTasks_ListsLiveTasks smoke-tests the dump format from inside a
// running task. The test scheduler is not in the process registry, so the
// dump covers only whatever schedulers the registry holds.
func TestDumpTasks_ListsLiveTasks(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "dump")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()

	run(t, func(ctx context.Context) {
		core.SetName(ctx, "dumper")
		core.SetStatus(ctx, "dumping")
		core.DumpTasks(f)
	})

	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	// the test scheduler is unregistered; the dump may be empty or list
	// other schedulers, but it must never corrupt the line format
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "scheduler ") && !strings.HasPrefix(line, "  task[") {
			t.Errorf("unexpected dump line %q", line)
		}
	}
}
