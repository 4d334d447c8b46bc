package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	sharederrors "alex/internal/shared/errors"
	"alex/internal/shared/logging"
)

// maxHistory bounds each plugin's execution history to the last 100 entries
// (spec §4.9).
const maxHistory = 100

// Execution is one recorded invocation of a plugin.
type Execution struct {
	Plugin  string
	Success bool
	Elapsed time.Duration
	Params  map[string]any
	Result  map[string]any
	Error   string
	At      time.Time
}

// entry is the registry's bookkeeping for one registered plugin: its
// current lifecycle state, the plugin implementation itself, and its
// bounded execution history. Each entry has its own mutex, so one plugin's
// slow or failing Execute never blocks another's (spec §4.9 "failure of
// one plugin never affects others").
type entry struct {
	mu      sync.Mutex
	plugin  Plugin
	state   State
	history []Execution
}

// Host is the plugin registry and execution surface.
type Host struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *logging.Logger
	now     func() time.Time
}

// NewHost builds an empty Host.
func NewHost() *Host {
	return &Host{
		entries: make(map[string]*entry),
		logger:  logging.PluginLogger,
		now:     time.Now,
	}
}

// Register adds p to the host, uninitialized, under p.Name(). Registering
// a name that's already registered replaces the prior entry.
func (h *Host) Register(p Plugin) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[p.Name()] = &entry{plugin: p, state: StateUninitialized}
}

// Init transitions name from uninitialized to ready (or error, on failure),
// running the plugin's own Init. Calling Init on an already-ready or
// already-disabled plugin is a no-op.
func (h *Host) Init(ctx context.Context, name string) error {
	e, ok := h.entry(name)
	if !ok {
		return fmt.Errorf("plugin %q not registered", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateReady || e.state == StateDisabled {
		return nil
	}

	e.state = StateInitializing
	if err := e.plugin.Init(ctx); err != nil {
		e.state = StateError
		h.logger.Warn("plugin %s failed to initialize: %s", name, err)
		return err
	}
	e.state = StateReady
	return nil
}

// Disable marks name disabled, refusing further Execute calls until it is
// re-registered. Disabling an unknown plugin is a no-op.
func (h *Host) Disable(name string) {
	e, ok := h.entry(name)
	if !ok {
		return
	}
	e.mu.Lock()
	e.state = StateDisabled
	e.mu.Unlock()
}

// State reports name's current lifecycle state, or "" if name isn't
// registered.
func (h *Host) State(name string) State {
	e, ok := h.entry(name)
	if !ok {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Names lists every registered plugin name.
func (h *Host) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.entries))
	for name := range h.entries {
		names = append(names, name)
	}
	return names
}

// Execute enforces that name is initialized, validates params against the
// plugin's own rules, runs it, and records an Execution entry for every call
// that reaches validation, whatever its outcome. A call to an unregistered
// or not-ready plugin is refused without a record. A validation failure or
// a plugin panic is recorded the same as any other execution failure and
// never propagates past Execute.
func (h *Host) Execute(ctx context.Context, name string, params map[string]any) (result map[string]any, err error) {
	e, ok := h.entry(name)
	if !ok {
		return nil, fmt.Errorf("plugin %q not registered", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateReady {
		return nil, sharederrors.NewPermanentError(
			fmt.Errorf("plugin %q is %s, not ready", name, e.state), "plugin not ready")
	}

	if err := e.plugin.Validate(params); err != nil {
		validationErr := sharederrors.NewPermanentError(err, "invalid plugin parameters")
		e.record(h.now(), params, nil, 0, validationErr)
		return nil, validationErr
	}

	start := h.now()
	result, err = h.runGuarded(ctx, e.plugin, params)
	elapsed := h.now().Sub(start)
	e.record(start, params, result, elapsed, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// runGuarded calls p.Execute, converting a panic into an error so one
// misbehaving plugin can't take down the host or a caller's goroutine.
func (h *Host) runGuarded(ctx context.Context, p Plugin, params map[string]any) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin %s panicked: %v", p.Name(), r)
		}
	}()
	return p.Execute(ctx, params)
}

// record appends exec to e's history, trimming to maxHistory. Callers must
// already hold e.mu.
func (e *entry) record(at time.Time, params, result map[string]any, elapsed time.Duration, err error) {
	exec := Execution{
		Plugin: e.plugin.Name(), Success: err == nil, Elapsed: elapsed,
		Params: params, Result: result, At: at,
	}
	if err != nil {
		exec.Error = err.Error()
	}
	e.history = append(e.history, exec)
	if len(e.history) > maxHistory {
		e.history = e.history[len(e.history)-maxHistory:]
	}
}

// History returns name's execution history, oldest first, or nil if name
// isn't registered.
func (h *Host) History(name string) []Execution {
	e, ok := h.entry(name)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Execution, len(e.history))
	copy(out, e.history)
	return out
}

func (h *Host) entry(name string) (*entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entries[name]
	return e, ok
}
