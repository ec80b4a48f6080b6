package kernel

import "time"

// Option is a functional option for configuring a Kernel.
type Option func(*internalConfig) error

// WithMaxWorkingMemoryEntries overrides MAX_WORKING_MEMORY_ENTRIES,
// bounding the Action Engine's WorkingMemory eviction threshold.
func WithMaxWorkingMemoryEntries(n int) Option {
	return func(c *internalConfig) error {
		if n <= 0 {
			return NewKernelError("WithMaxWorkingMemoryEntries", ErrConfigError).
				WithContext("n", n).
				WithContext("reason", "must be positive")
		}
		c.maxWorkingMemoryEntries = n
		return nil
	}
}

// WithLogLevel overrides LOG_LEVEL: "debug", "info", "warn", or
// "error".
func WithLogLevel(level string) Option {
	return func(c *internalConfig) error {
		switch level {
		case "debug", "info", "warn", "error":
			c.logLevel = level
			return nil
		default:
			return NewKernelError("WithLogLevel", ErrConfigError).
				WithContext("level", level).
				WithContext("reason", "must be one of debug, info, warn, error")
		}
	}
}

// WithComposeTimeout bounds how long a Kernel.ComposeState call may run.
// The per-step compositions inside ProcessActions are not bounded by it.
func WithComposeTimeout(d time.Duration) Option {
	return func(c *internalConfig) error {
		if d <= 0 {
			return NewKernelError("WithComposeTimeout", ErrConfigError).
				WithContext("timeout", d).
				WithContext("reason", "must be positive")
		}
		c.composeTimeout = d
		return nil
	}
}

// WithActionTimeout bounds how long a single action step may run.
func WithActionTimeout(d time.Duration) Option {
	return func(c *internalConfig) error {
		if d <= 0 {
			return NewKernelError("WithActionTimeout", ErrConfigError).
				WithContext("timeout", d).
				WithContext("reason", "must be positive")
		}
		c.actionTimeout = d
		return nil
	}
}

// WithRunLedgerSize bounds how many per-run model-call samples the Model
// Router keeps in memory.
func WithRunLedgerSize(n int) Option {
	return func(c *internalConfig) error {
		if n <= 0 {
			return NewKernelError("WithRunLedgerSize", ErrConfigError).
				WithContext("n", n).
				WithContext("reason", "must be positive")
		}
		c.runLedgerSize = n
		return nil
	}
}

// WithStaleServiceHorizon stores a heartbeat-age horizon in the kernel
// configuration. No kernel method reads it: service.Registry.StaleServices
// takes its horizon as an argument.
func WithStaleServiceHorizon(d time.Duration) Option {
	return func(c *internalConfig) error {
		if d <= 0 {
			return NewKernelError("WithStaleServiceHorizon", ErrConfigError).
				WithContext("horizon", d).
				WithContext("reason", "must be positive")
		}
		c.staleServiceHorizon = d
		return nil
	}
}
