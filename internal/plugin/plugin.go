// Package plugin manages side capabilities outside the core chat/memory
// subsystems: a plugin's lifecycle and its bounded execution history
// (spec §4.9).
package plugin

import "context"

// State is a position in the plugin lifecycle
// (uninitialized → initializing → ready → error | disabled).
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateError         State = "error"
	StateDisabled      State = "disabled"
)

// Plugin is a side capability the dispatch core (or an operator) can
// invoke by name. Init is called by Host.Init, not at registration, and is
// called again if Host.Init retries a plugin in StateError; Validate and
// Execute may be called many times once the plugin reaches StateReady.
type Plugin interface {
	Name() string
	Init(ctx context.Context) error
	Validate(params map[string]any) error
	Execute(ctx context.Context, params map[string]any) (map[string]any, error)
}
