package persona_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"alex/internal/persona"
)

func TestTemplateHandlerRespondUsesBackendAndStampsMetadata(t *testing.T) {
	h := persona.NewTemplateHandler("host", "You are the host.", persona.EchoBackend{})

	reply, err := h.Respond(context.Background(), persona.RequestContext{Utterance: "hello"})
	if err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}
	if !strings.Contains(reply.Text, "host:") {
		t.Fatalf("expected echoed prompt tail, got %q", reply.Text)
	}
	if reply.Metadata["persona"] != "host" {
		t.Fatalf("expected persona metadata, got %v", reply.Metadata)
	}
}

func TestTemplateHandlerRespondPropagatesBackendError(t *testing.T) {
	h := persona.NewTemplateHandler("host", "", failingBackend{})
	_, err := h.Respond(context.Background(), persona.RequestContext{Utterance: "hello"})
	if err == nil {
		t.Fatal("expected backend error to propagate")
	}
}

func TestTemplateHandlerRespondStreamFallsBackToChunking(t *testing.T) {
	h := persona.NewTemplateHandler("host", "", persona.EchoBackend{})
	frags, err := h.RespondStream(context.Background(), persona.RequestContext{Utterance: "hello world"})
	if err != nil {
		t.Fatalf("RespondStream returned error: %v", err)
	}

	var out string
	count := 0
	for chunk := range frags {
		out += chunk
		count++
	}
	if count < 2 {
		t.Fatalf("expected multiple fragments from fallback chunking, got %d", count)
	}
	if !strings.Contains(out, "(echo) host:") {
		t.Fatalf("expected full text to be reassembled, got %q", out)
	}
}

func TestTemplateHandlerRespondStreamUsesNativeStreamingBackend(t *testing.T) {
	backend := streamingBackend{fragments: []string{"a", "b", "c"}}
	h := persona.NewTemplateHandler("host", "", backend)

	frags, err := h.RespondStream(context.Background(), persona.RequestContext{Utterance: "hi"})
	if err != nil {
		t.Fatalf("RespondStream returned error: %v", err)
	}
	var got []string
	for f := range frags {
		got = append(got, f)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 native fragments, got %d", len(got))
	}
}

type failingBackend struct{}

func (failingBackend) Complete(context.Context, string) (string, error) {
	return "", errors.New("backend down")
}

type streamingBackend struct {
	fragments []string
}

func (s streamingBackend) Complete(ctx context.Context, prompt string) (string, error) {
	return strings.Join(s.fragments, ""), nil
}

func (s streamingBackend) CompleteStream(ctx context.Context, prompt string) (<-chan string, error) {
	out := make(chan string, len(s.fragments))
	for _, f := range s.fragments {
		out <- f
	}
	close(out)
	return out, nil
}
