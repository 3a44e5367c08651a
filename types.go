package libten

import "github.com/WenchaoChen/libten/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the libten package for most use cases.

// TaskFunc is the unit of work: a task body
type TaskFunc = core.TaskFunc

// Task is the cross-thread-safe handle of a spawned task
type Task = core.Task

// Scheduler is the per-thread cooperative event loop
type Scheduler = core.Scheduler

// Config carries scheduler tuning knobs (logger, metrics, poll batch)
type Config = core.Config

// Qutex is the task-aware mutex
type Qutex = core.Qutex

// Rendez is the task-aware condition primitive
type Rendez = core.Rendez

// Deadline is a scoped timer that interrupts the task when it elapses
type Deadline = core.Deadline

// Logger is the structured logging interface the runtime emits through
type Logger = core.Logger

// Field is a structured logging key-value pair
type Field = core.Field

// Metrics receives runtime lifecycle events
type Metrics = core.Metrics

// RuntimeStats is a process-wide snapshot of scheduler state
type RuntimeStats = core.RuntimeStats

// Error kinds surfaced by the runtime
type (
	TaskInterrupted = core.TaskInterrupted
	DeadlineReached = core.DeadlineReached
	IoError         = core.IoError
	UsageError      = core.UsageError
)

// IODir selects the readiness direction of an FdWait
type IODir = core.IODir

const (
	IORead  = core.IORead
	IOWrite = core.IOWrite
)

// ErrTimeout reports a timed wait that expired without acquiring
var ErrTimeout = core.ErrTimeout
