package kernel

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/coreagent/kernel/internal/klog"
	"github.com/coreagent/kernel/store"
)

// Config holds the required configuration for a Kernel.
//
// Example:
//
//	k, err := kernel.New(kernel.Config{
//	    Store:     store.NewMemStore(),
//	    AgentName: "assistant",
//	})
type Config struct {
	// Store is the Store Adapter (C1) backing this kernel (required).
	Store store.Store

	// AgentName identifies the agent instance (required).
	AgentName string

	// Bio, System seed the Agent record on first boot; on later boots
	// they overwrite the existing Agent's Bio and System.
	Bio    []string
	System string

	// Settings and Secrets seed getSetting/setSetting lookups.
	// Secrets are stored as opaque bytes; no encryption codec is
	// implemented here.
	Settings map[string]any
	Secrets  map[string]string

	// Plugins is the ordered list of plugins to register during
	// initialize(). Registration runs concurrently, so the list order
	// does not decide which of two same-named plugins is kept.
	Plugins []Plugin
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("%w: Store is required", ErrConfigError)
	}
	if c.AgentName == "" {
		return fmt.Errorf("%w: AgentName is required", ErrConfigError)
	}
	return nil
}

// internalConfig holds the full kernel configuration, including built-in
// defaults and anything set by functional Options.
type internalConfig struct {
	store     store.Store
	agentName string
	bio       []string
	system    string
	settings  map[string]any
	secrets   map[string]string
	plugins   []Plugin

	maxWorkingMemoryEntries int
	logLevel                string
	composeTimeout          time.Duration
	actionTimeout           time.Duration
	runLedgerSize           int
	staleServiceHorizon     time.Duration
}

// newInternalConfig builds an internalConfig from the public Config,
// applying the kernel's built-in defaults.
func newInternalConfig(cfg Config) *internalConfig {
	settings := cfg.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	secrets := cfg.Secrets
	if secrets == nil {
		secrets = map[string]string{}
	}
	ic := &internalConfig{
		store:     cfg.Store,
		agentName: cfg.AgentName,
		bio:       cfg.Bio,
		system:    cfg.System,
		settings:  settings,
		secrets:   secrets,
		plugins:   cfg.Plugins,

		maxWorkingMemoryEntries: 50,
		logLevel:                "info",
		composeTimeout:          30 * time.Second,
		actionTimeout:           2 * time.Minute,
		runLedgerSize:           200,
		staleServiceHorizon:     90 * time.Second,
	}

	// These environment variables act as overrides, applied before any
	// functional Option so an explicit Option still wins.
	if v := os.Getenv("MAX_WORKING_MEMORY_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ic.maxWorkingMemoryEntries = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		switch v {
		case "debug", "info", "warn", "error":
			ic.logLevel = v
		}
	}
	return ic
}

func (c *internalConfig) applyLogLevel() {
	switch c.logLevel {
	case "debug":
		klog.SetLevel(klog.LevelDebug)
	case "warn":
		klog.SetLevel(klog.LevelWarn)
	case "error":
		klog.SetLevel(klog.LevelError)
	default:
		klog.SetLevel(klog.LevelInfo)
	}
}
