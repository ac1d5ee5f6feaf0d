package config

import "sync/atomic"

// Holder is the live configuration of a long-running process. Readers get
// an immutable snapshot; Reload swaps in a new one only when it validates.
type Holder struct {
	path       string
	current    atomic.Pointer[Config]
	generation atomic.Uint64
}

func NewHolder(cfg *Config, path string) *Holder {
	h := &Holder{path: path}
	h.current.Store(cfg)

	return h
}

// Config returns the current snapshot. Callers must not modify it.
func (h *Holder) Config() *Config {
	return h.current.Load()
}

// Path is the config file the holder was created for.
func (h *Holder) Path() string {
	return h.path
}

// Generation counts successful swaps since creation.
func (h *Holder) Generation() uint64 {
	return h.generation.Load()
}

func (h *Holder) Update(cfg *Config) {
	h.current.Store(cfg)
	h.generation.Add(1)
}

// Reload resolves the configuration again with the same overrides. On error
// the current snapshot stays in place.
func (h *Holder) Reload(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	if cli.ConfigPath == "" {
		cli.ConfigPath = h.path
	}

	cfg, err := Resolve(env, cli)
	if err != nil {
		return nil, err
	}

	h.Update(cfg)

	return cfg, nil
}
