package persona_test

import (
	"testing"

	"alex/internal/persona"
)

func newTestRouter() *persona.Router {
	return persona.NewRouter(
		"host",
		[]string{"host", "searcher", "explainer"},
		"searcher", []string{"search", "look up", "find"},
		"explainer", []string{"explain", "why", "how does"},
	)
}

func TestRouteDefaultsWhenNoTokenMatches(t *testing.T) {
	r := newTestRouter()
	if got := r.Route("hi", "user"); got != "host" {
		t.Fatalf("expected default persona host, got %s", got)
	}
}

func TestRouteSelectsSearchPersona(t *testing.T) {
	r := newTestRouter()
	if got := r.Route("please search latest news", "user"); got != "searcher" {
		t.Fatalf("expected searcher, got %s", got)
	}
}

func TestRouteSelectsExplainPersona(t *testing.T) {
	r := newTestRouter()
	if got := r.Route("explain the reasoning", "user"); got != "explainer" {
		t.Fatalf("expected explainer, got %s", got)
	}
}

func TestRouteExplicitTokenWinsOverIntent(t *testing.T) {
	r := newTestRouter()
	if got := r.Route("@host please search this", "user"); got != "host" {
		t.Fatalf("expected explicit persona token to win, got %s", got)
	}
}

func TestRouteIsPureAndTotal(t *testing.T) {
	r := newTestRouter()
	for _, utterance := range []string{"", "   ", "search", "explain", "random text"} {
		got := r.Route(utterance, "")
		if got == "" {
			t.Fatalf("expected a non-empty persona for %q", utterance)
		}
	}
}
