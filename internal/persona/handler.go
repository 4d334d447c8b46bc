package persona

import (
	"context"
	"fmt"
	"strings"
)

// Backend is the narrow adapter interface over whatever language-model
// provider a handler calls; concrete adapter code is out of this system's
// scope (spec §1) and is supplied by the caller.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// StreamingBackend is the optional extension a Backend may implement to
// produce its completion as a sequence of fragments instead of one string.
// The returned channel is closed when the completion finishes; the caller
// must drain it or abandon it via ctx cancellation.
type StreamingBackend interface {
	Backend
	CompleteStream(ctx context.Context, prompt string) (<-chan string, error)
}

// TemplateHandler is a generic persona handler composed from the three
// capabilities the spec names: build-prompt, invoke-backend, post-process.
// Concrete personas are instances of this type configured with a system
// prompt and a backend, rather than separate Go types, so swapping a
// persona's voice is a configuration change.
type TemplateHandler struct {
	name         string
	systemPrompt string
	backend      Backend
}

// NewTemplateHandler builds a persona handler named name, prefacing every
// prompt with systemPrompt before calling backend.
func NewTemplateHandler(name, systemPrompt string, backend Backend) *TemplateHandler {
	return &TemplateHandler{name: name, systemPrompt: systemPrompt, backend: backend}
}

// Name returns the persona's configured name.
func (h *TemplateHandler) Name() string { return h.name }

// Respond builds a prompt from history, the utterance and any supplementary
// context, invokes the backend, and post-processes the raw completion into
// a Reply.
func (h *TemplateHandler) Respond(ctx context.Context, reqCtx RequestContext) (Reply, error) {
	prompt := h.buildPrompt(reqCtx)
	text, err := h.backend.Complete(ctx, prompt)
	if err != nil {
		return Reply{}, err
	}
	return h.postProcess(text), nil
}

// RespondStream satisfies StreamingHandler. When the configured backend
// supports native streaming it is used directly; otherwise the handler
// falls back to running Respond to completion and replaying its text as
// whitespace-delimited fragments, so every handler can be driven through
// the streaming code path regardless of its backend.
func (h *TemplateHandler) RespondStream(ctx context.Context, reqCtx RequestContext) (<-chan string, error) {
	if sb, ok := h.backend.(StreamingBackend); ok {
		prompt := h.buildPrompt(reqCtx)
		return sb.CompleteStream(ctx, prompt)
	}

	reply, err := h.Respond(ctx, reqCtx)
	if err != nil {
		return nil, err
	}
	out := make(chan string)
	go func() {
		defer close(out)
		for _, word := range strings.Fields(reply.Text) {
			select {
			case out <- word + " ":
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (h *TemplateHandler) buildPrompt(reqCtx RequestContext) string {
	var b strings.Builder
	if h.systemPrompt != "" {
		b.WriteString(h.systemPrompt)
		b.WriteString("\n\n")
	}
	for _, turn := range reqCtx.History {
		fmt.Fprintf(&b, "%s: %s\n", turn.Speaker, turn.Content)
	}
	if reqCtx.Supplement != "" {
		b.WriteString("\nContext:\n")
		b.WriteString(reqCtx.Supplement)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "user: %s\n%s:", reqCtx.Utterance, h.name)
	return b.String()
}

func (h *TemplateHandler) postProcess(raw string) Reply {
	return Reply{Text: strings.TrimSpace(raw), Metadata: map[string]string{"persona": h.name}}
}

// EchoBackend is a dependency-free Backend used by tests and local
// development; it never fails and reflects the prompt's final line.
type EchoBackend struct{}

// Complete implements Backend.
func (EchoBackend) Complete(_ context.Context, prompt string) (string, error) {
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	return "(echo) " + lines[len(lines)-1], nil
}
