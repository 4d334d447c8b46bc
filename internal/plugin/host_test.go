package plugin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"alex/internal/plugin"
)

type stubPlugin struct {
	name      string
	initErr   error
	validate  func(params map[string]any) error
	execute   func(ctx context.Context, params map[string]any) (map[string]any, error)
	initCalls int
}

func (p *stubPlugin) Name() string { return p.name }

func (p *stubPlugin) Init(context.Context) error {
	p.initCalls++
	return p.initErr
}

func (p *stubPlugin) Validate(params map[string]any) error {
	if p.validate == nil {
		return nil
	}
	return p.validate(params)
}

func (p *stubPlugin) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	if p.execute == nil {
		return map[string]any{"ok": true}, nil
	}
	return p.execute(ctx, params)
}

func TestHost_LifecycleReady(t *testing.T) {
	host := plugin.NewHost()
	p := &stubPlugin{name: "echo"}
	host.Register(p)

	if got := host.State("echo"); got != plugin.StateUninitialized {
		t.Fatalf("state before init = %q, want uninitialized", got)
	}
	if err := host.Init(context.Background(), "echo"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := host.State("echo"); got != plugin.StateReady {
		t.Fatalf("state after init = %q, want ready", got)
	}
}

func TestHost_InitFailureYieldsErrorState(t *testing.T) {
	host := plugin.NewHost()
	p := &stubPlugin{name: "broken", initErr: errors.New("boom")}
	host.Register(p)

	if err := host.Init(context.Background(), "broken"); err == nil {
		t.Fatal("expected Init error")
	}
	if got := host.State("broken"); got != plugin.StateError {
		t.Fatalf("state = %q, want error", got)
	}
	if _, err := host.Execute(context.Background(), "broken", nil); err == nil {
		t.Fatal("expected Execute to refuse a non-ready plugin")
	}
}

func TestHost_ExecuteRequiresReady(t *testing.T) {
	host := plugin.NewHost()
	host.Register(&stubPlugin{name: "cold"})

	if _, err := host.Execute(context.Background(), "cold", nil); err == nil {
		t.Fatal("expected Execute to refuse an uninitialized plugin")
	}
}

func TestHost_ExecuteValidatesParams(t *testing.T) {
	host := plugin.NewHost()
	p := &stubPlugin{
		name: "validated",
		validate: func(params map[string]any) error {
			if params["query"] == nil {
				return errors.New("query is required")
			}
			return nil
		},
	}
	host.Register(p)
	_ = host.Init(context.Background(), "validated")

	if _, err := host.Execute(context.Background(), "validated", nil); err == nil {
		t.Fatal("expected a validation error for a missing param")
	}
	if _, err := host.Execute(context.Background(), "validated", map[string]any{"query": "x"}); err != nil {
		t.Fatalf("Execute with valid params: %v", err)
	}

	history := host.History("validated")
	if len(history) != 2 {
		t.Fatalf("history len = %d, want 2", len(history))
	}
	if history[0].Success {
		t.Fatal("first execution should be recorded as a failure")
	}
	if !history[1].Success {
		t.Fatal("second execution should be recorded as a success")
	}
}

func TestHost_ExecuteRecordsFailureWithoutAffectingOtherPlugins(t *testing.T) {
	host := plugin.NewHost()
	failing := &stubPlugin{name: "failing", execute: func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("downstream unavailable")
	}}
	healthy := &stubPlugin{name: "healthy"}
	host.Register(failing)
	host.Register(healthy)
	_ = host.Init(context.Background(), "failing")
	_ = host.Init(context.Background(), "healthy")

	if _, err := host.Execute(context.Background(), "failing", nil); err == nil {
		t.Fatal("expected failing plugin's Execute to return an error")
	}
	if _, err := host.Execute(context.Background(), "healthy", nil); err != nil {
		t.Fatalf("healthy plugin should be unaffected by failing's failure: %v", err)
	}

	history := host.History("failing")
	if len(history) != 1 || history[0].Success {
		t.Fatalf("failing history = %+v, want one failed entry", history)
	}
}

func TestHost_ExecuteRecoversFromPanic(t *testing.T) {
	host := plugin.NewHost()
	p := &stubPlugin{name: "panics", execute: func(context.Context, map[string]any) (map[string]any, error) {
		panic("kaboom")
	}}
	host.Register(p)
	_ = host.Init(context.Background(), "panics")

	if _, err := host.Execute(context.Background(), "panics", nil); err == nil {
		t.Fatal("expected a recovered-panic error")
	}
}

func TestHost_HistoryBoundedTo100(t *testing.T) {
	host := plugin.NewHost()
	p := &stubPlugin{name: "chatty"}
	host.Register(p)
	_ = host.Init(context.Background(), "chatty")

	for i := 0; i < 150; i++ {
		if _, err := host.Execute(context.Background(), "chatty", nil); err != nil {
			t.Fatalf("Execute #%d: %v", i, err)
		}
	}

	history := host.History("chatty")
	if len(history) != 100 {
		t.Fatalf("history len = %d, want 100", len(history))
	}
}

func TestHost_DisableRefusesFurtherExecution(t *testing.T) {
	host := plugin.NewHost()
	p := &stubPlugin{name: "toggle"}
	host.Register(p)
	_ = host.Init(context.Background(), "toggle")
	host.Disable("toggle")

	if got := host.State("toggle"); got != plugin.StateDisabled {
		t.Fatalf("state = %q, want disabled", got)
	}
	if _, err := host.Execute(context.Background(), "toggle", nil); err == nil {
		t.Fatal("expected Execute to refuse a disabled plugin")
	}
}

func TestHost_ExecuteUnknownPlugin(t *testing.T) {
	host := plugin.NewHost()
	if _, err := host.Execute(context.Background(), "ghost", nil); err == nil {
		t.Fatal("expected an error for an unregistered plugin")
	}
}

func TestHost_ExecuteRecordsElapsed(t *testing.T) {
	host := plugin.NewHost()
	p := &stubPlugin{name: "slow", execute: func(context.Context, map[string]any) (map[string]any, error) {
		time.Sleep(5 * time.Millisecond)
		return map[string]any{}, nil
	}}
	host.Register(p)
	_ = host.Init(context.Background(), "slow")

	if _, err := host.Execute(context.Background(), "slow", nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	history := host.History("slow")
	if len(history) != 1 || history[0].Elapsed <= 0 {
		t.Fatalf("expected a positive elapsed duration, got %+v", history)
	}
}
