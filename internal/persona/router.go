// Package persona implements the deterministic persona router and the
// handler contract every persona satisfies (spec §4.7).
package persona

import (
	"context"
	"strings"
)

// Router resolves an utterance to a persona name by a pure, total rule:
// explicit persona token > search-intent token > explanation-intent token >
// default. The rule performs no I/O.
type Router struct {
	defaultPersona string
	names          map[string]bool
	searchTokens   []string
	searchPersona  string
	explainTokens  []string
	explainPersona string
}

// NewRouter builds a Router. names lists every configured persona (for
// explicit-token matching); searchTokens/explainTokens are the configured
// intent vocabularies.
func NewRouter(defaultPersona string, names []string, searchPersona string, searchTokens []string, explainPersona string, explainTokens []string) *Router {
	nameSet := make(map[string]bool, len(names))
	for _, n := range names {
		nameSet[strings.ToLower(n)] = true
	}
	return &Router{
		defaultPersona: defaultPersona,
		names:          nameSet,
		searchTokens:   lower(searchTokens),
		searchPersona:  searchPersona,
		explainTokens:  lower(explainTokens),
		explainPersona: explainPersona,
	}
}

func lower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// Route selects a persona for utterance. lastSpeaker is accepted for
// interface symmetry with the spec's (utterance, last_speaker) signature but
// does not currently affect the decision — the rule is explicit-token >
// search-intent > explanation-intent > default regardless of who spoke last.
func (r *Router) Route(utterance, lastSpeaker string) string {
	lowered := strings.ToLower(utterance)

	if persona, ok := r.explicitPersonaToken(lowered); ok {
		return persona
	}
	for _, token := range r.searchTokens {
		if strings.Contains(lowered, token) {
			return r.searchPersona
		}
	}
	for _, token := range r.explainTokens {
		if strings.Contains(lowered, token) {
			return r.explainPersona
		}
	}
	return r.defaultPersona
}

func (r *Router) explicitPersonaToken(lowered string) (string, bool) {
	for name := range r.names {
		if strings.Contains(lowered, "@"+name) || strings.Contains(lowered, "persona:"+name) {
			return name, true
		}
	}
	return "", false
}

// Reply is what every persona handler produces.
type Reply struct {
	Text     string
	Metadata map[string]string
}

// Handler is the contract every persona satisfies: given history, the
// current utterance, and optional supplementary context (e.g. knowledge
// search hits), produce a reply. Handlers may be swapped without affecting
// the dispatch core.
type Handler interface {
	Name() string
	Respond(ctx context.Context, req RequestContext) (Reply, error)
}

// StreamingHandler is satisfied by handlers that can produce a reply as a
// sequence of text fragments rather than one completed Reply (spec
// §4.6.6). Not every Handler implements it; the dispatch core falls back to
// chunking a non-streaming Respond when it doesn't.
type StreamingHandler interface {
	Handler
	RespondStream(ctx context.Context, req RequestContext) (<-chan string, error)
}

// RequestContext carries everything a Handler needs to build a prompt,
// invoke a backend, and post-process its output.
type RequestContext struct {
	History     []HistoryTurn
	Utterance   string
	Supplement  string
	FallbackMsg string
}

// HistoryTurn is the minimal shape a Handler needs from prior turns.
type HistoryTurn struct {
	Speaker string
	Content string
}
