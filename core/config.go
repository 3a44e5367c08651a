package core

// Config carries a scheduler's tuning knobs. The zero value is usable; nil
// hooks are replaced with defaults.
type Config struct {
	// Logger receives runtime lifecycle events. Defaults to a zerolog-backed
	// logger at warn level.
	Logger Logger

	// Metrics receives lifecycle counters. Defaults to NilMetrics.
	Metrics Metrics

	// PollBatch is the epoll event buffer size per wait. Defaults to 128.
	PollBatch int
}

// DefaultConfig returns the configuration Main and SpawnThread use.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = NewDefaultLogger()
	}
	if c.Metrics == nil {
		c.Metrics = NilMetrics{}
	}
	if c.PollBatch <= 0 {
		c.PollBatch = 128
	}
	return c
}
