// Package dispatch implements the single entry point for every
// authenticated operation: identifier translation, per-session
// serialization, quota enforcement, rate limiting, and the provider retry
// envelope (spec §4.6).
package dispatch

import (
	"context"
	"fmt"
	"time"

	"alex/internal/memory/domain"
	"alex/internal/memory/facade"
	"alex/internal/persona"
	sharederrors "alex/internal/shared/errors"
	"alex/internal/shared/logging"
)

// Metrics is the narrow surface the dispatch core reports to the
// observability collector (spec §4.10). A nil Metrics is a valid no-op.
type Metrics interface {
	RecordProviderCall(persona string, latency time.Duration, err error)
	RecordRetry(persona string)
	RecordFallback(persona string)
	RecordMemoryOp(kind string, err error)
	RecordTurn(persona string)
	RecordSessionStart(sessionID string)
	RecordSessionEnd(sessionID string, duration time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RecordProviderCall(string, time.Duration, error) {}
func (nopMetrics) RecordRetry(string)                              {}
func (nopMetrics) RecordFallback(string)                           {}
func (nopMetrics) RecordMemoryOp(string, error)                    {}
func (nopMetrics) RecordTurn(string)                               {}
func (nopMetrics) RecordSessionStart(string)                       {}
func (nopMetrics) RecordSessionEnd(string, time.Duration)          {}

// Config controls retry behavior and fallback utterances. Route rate limits
// are configured directly on the RateLimiter passed to NewCore, not here.
type Config struct {
	Retry              sharederrors.RetryConfig
	FallbackUtterances map[string]string // persona -> fallback text
}

// Core is the dispatch core. It holds no ambient state: every collaborator
// is constructed and injected at startup (spec §9 design note on replacing
// global singletons with explicit context objects).
type Core struct {
	sessions   *SessionMap
	locks      *LockRegistry
	quota      *QuotaManager
	limiter    *RateLimiter
	memory     *facade.Facade
	router     *persona.Router
	handlers   map[string]persona.Handler
	config     Config
	metrics    Metrics
	logger     *logging.Logger
}

// NewCore wires every dispatch collaborator.
func NewCore(
	sessions *SessionMap,
	locks *LockRegistry,
	quota *QuotaManager,
	limiter *RateLimiter,
	memory *facade.Facade,
	router *persona.Router,
	handlers map[string]persona.Handler,
	config Config,
	metrics Metrics,
) *Core {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = sharederrors.DefaultRetryConfig()
	}
	return &Core{
		sessions: sessions,
		locks:    locks,
		quota:    quota,
		limiter:  limiter,
		memory:   memory,
		router:   router,
		handlers: handlers,
		config:   config,
		metrics:  metrics,
		logger:   logging.DispatchLogger,
	}
}

// ValidationError marks a request as malformed (spec §7 ValidationError).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

const maxUtteranceLength = 5000

// ChatRequest is a single non-streaming chat turn.
type ChatRequest struct {
	UserID         string
	ExternalSessionID string
	UserInput      string
	Character      string // optional explicit persona override
}

// ChatResponse is what the dispatch core returns for a completed chat turn.
type ChatResponse struct {
	SessionID string
	Character string
	Response  string
	Metadata  map[string]string
	Timestamp time.Time
	Fallback  bool
}

func validateUtterance(input string) error {
	if input == "" {
		return &ValidationError{Reason: "utterance must not be empty"}
	}
	if len(input) > maxUtteranceLength {
		return &ValidationError{Reason: fmt.Sprintf("utterance exceeds %d characters", maxUtteranceLength)}
	}
	return nil
}

// Chat runs the full dispatch state machine for a non-streaming reply:
// Received -> Authorized (by caller, before Chat is invoked) -> Quota-checked
// -> Locked(session) -> Context-built -> Invoked -> Committed -> Released.
func (c *Core) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := validateUtterance(req.UserInput); err != nil {
		return ChatResponse{}, err
	}

	// Rate limiting is orthogonal to quota: it caps arrival rate, not daily
	// volume (spec §4.6.4).
	if err := c.limiter.Allow(RouteChat, req.UserID); err != nil {
		return ChatResponse{}, err
	}

	// Quota-checked.
	if _, err := c.quota.Check(ctx, req.UserID); err != nil {
		return ChatResponse{}, err
	}

	internalID := c.sessions.InternalID(req.UserID, req.ExternalSessionID)

	// Locked(session).
	release := c.locks.Acquire(internalID)
	defer release()

	personaName := req.Character
	if personaName == "" {
		lastSpeaker := ""
		if buf := c.memory.ConversationBuffer(internalID); len(buf) > 0 {
			lastSpeaker = string(buf[len(buf)-1].Speaker)
		}
		personaName = c.router.Route(req.UserInput, lastSpeaker)
	}
	handler, ok := c.handlers[personaName]
	if !ok {
		return ChatResponse{}, &ValidationError{Reason: fmt.Sprintf("unknown persona %q", personaName)}
	}
	c.memory.AllowSpeaker(personaName)

	// Context-built.
	if _, err := c.memory.IngestTurn(ctx, internalID, domain.SpeakerUser, req.UserInput, nil); err != nil {
		c.metrics.RecordMemoryOp("ingest", err)
		return ChatResponse{}, err
	}
	c.metrics.RecordMemoryOp("ingest", nil)

	history := historyFromBuffer(c.memory.ConversationBuffer(internalID))
	supplement := c.bestEffortKnowledge(ctx, req.UserInput)

	// Invoked, with the retry envelope and fallback-utterance guarantee.
	reply, fellBack := c.invokeWithFallback(ctx, personaName, handler, persona.RequestContext{
		History:    history,
		Utterance:  req.UserInput,
		Supplement: supplement,
	})

	// Committed: record the reply turn and bump quota/KPI.
	if _, err := c.memory.IngestTurn(ctx, internalID, domain.Speaker(personaName), reply.Text, reply.Metadata); err != nil {
		c.metrics.RecordMemoryOp("ingest", err)
		return ChatResponse{}, err
	}
	c.metrics.RecordMemoryOp("ingest", nil)
	c.metrics.RecordTurn(personaName)

	kpiKind := domain.KPITotalResponse
	if _, err := c.memory.UpdatePersonaKPI(ctx, personaName, kpiKind, 1); err != nil {
		c.logger.Warn("failed to update persona KPI for %s: %s", personaName, err)
	}

	if _, err := c.quota.Increment(ctx, req.UserID); err != nil {
		c.logger.Warn("failed to increment quota for user=%s: %s", req.UserID, err)
	}

	return ChatResponse{
		SessionID: req.ExternalSessionID,
		Character: personaName,
		Response:  reply.Text,
		Metadata:  reply.Metadata,
		Timestamp: time.Now(),
		Fallback:  fellBack,
	}, nil
}

func historyFromBuffer(turns []domain.TurnRecord) []persona.HistoryTurn {
	out := make([]persona.HistoryTurn, len(turns))
	for i, t := range turns {
		out[i] = persona.HistoryTurn{Speaker: string(t.Speaker), Content: t.Content}
	}
	return out
}

// bestEffortKnowledge performs the knowledge search a handler may use as
// supplementary context, swallowing any failure per §4.5's best-effort
// contract for search paths.
func (c *Core) bestEffortKnowledge(ctx context.Context, query string) string {
	docs := c.memory.SearchKnowledge(ctx, query, "", 3)
	if len(docs) == 0 {
		return ""
	}
	out := ""
	for _, doc := range docs {
		out += doc.Content + "\n"
	}
	return out
}

// invokeWithFallback wraps the handler call in bounded retries with
// exponential backoff and jitter. After the final failure it returns the
// persona's fallback utterance instead of propagating the provider error,
// so the conversation always continues (spec §4.6.5).
func (c *Core) invokeWithFallback(ctx context.Context, personaName string, handler persona.Handler, reqCtx persona.RequestContext) (persona.Reply, bool) {
	attempts := 0
	start := time.Now()
	reply, err := sharederrors.RetryWithResult(ctx, c.config.Retry, func(ctx context.Context) (persona.Reply, error) {
		if attempts > 0 {
			c.metrics.RecordRetry(personaName)
		}
		attempts++
		r, err := handler.Respond(ctx, reqCtx)
		c.metrics.RecordProviderCall(personaName, time.Since(start), err)
		if err != nil {
			return persona.Reply{}, sharederrors.NewTransientError(err, "provider")
		}
		return r, nil
	})
	if err == nil {
		return reply, false
	}

	c.metrics.RecordFallback(personaName)
	fallbackText := c.config.FallbackUtterances[personaName]
	if fallbackText == "" {
		fallbackText = "I'm having trouble responding right now. Please try again shortly."
	}
	return persona.Reply{Text: fallbackText, Metadata: map[string]string{"persona": personaName, "fallback": "true"}}, true
}

// Fragment is one element of a streamed chat reply.
type Fragment struct {
	Text string
	Done bool
	Err  error
}

// ChatStream runs the same dispatch state machine as Chat, but produces the
// reply as a lazily-consumed sequence of fragments instead of waiting for
// completion. The channel is closed after a final Fragment{Done: true} or an
// error fragment. Cancelling ctx aborts production within one fragment
// (spec §4.6.6). The per-session lock is held until fragment production
// ends; fragments are handed over an unbuffered channel, so that time
// includes the consumer's receipt of each fragment.
func (c *Core) ChatStream(ctx context.Context, req ChatRequest) (<-chan Fragment, error) {
	if err := validateUtterance(req.UserInput); err != nil {
		return nil, err
	}
	if err := c.limiter.Allow(RouteChatStream, req.UserID); err != nil {
		return nil, err
	}
	if _, err := c.quota.Check(ctx, req.UserID); err != nil {
		return nil, err
	}

	internalID := c.sessions.InternalID(req.UserID, req.ExternalSessionID)
	release := c.locks.Acquire(internalID)

	personaName := req.Character
	if personaName == "" {
		lastSpeaker := ""
		if buf := c.memory.ConversationBuffer(internalID); len(buf) > 0 {
			lastSpeaker = string(buf[len(buf)-1].Speaker)
		}
		personaName = c.router.Route(req.UserInput, lastSpeaker)
	}
	handler, ok := c.handlers[personaName]
	if !ok {
		release()
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown persona %q", personaName)}
	}
	c.memory.AllowSpeaker(personaName)

	if _, err := c.memory.IngestTurn(ctx, internalID, domain.SpeakerUser, req.UserInput, nil); err != nil {
		release()
		c.metrics.RecordMemoryOp("ingest", err)
		return nil, err
	}
	c.metrics.RecordMemoryOp("ingest", nil)

	history := historyFromBuffer(c.memory.ConversationBuffer(internalID))
	supplement := c.bestEffortKnowledge(ctx, req.UserInput)
	reqCtx := persona.RequestContext{History: history, Utterance: req.UserInput, Supplement: supplement}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer release()

		var upstream <-chan string
		var err error
		if sh, ok := handler.(persona.StreamingHandler); ok {
			upstream, err = sh.RespondStream(ctx, reqCtx)
		} else {
			var reply persona.Reply
			reply, err = handler.Respond(ctx, reqCtx)
			if err == nil {
				ch := make(chan string, 1)
				ch <- reply.Text
				close(ch)
				upstream = ch
			}
		}

		var full string
		if err != nil {
			c.metrics.RecordFallback(personaName)
			full = c.config.FallbackUtterances[personaName]
			if full == "" {
				full = "I'm having trouble responding right now. Please try again shortly."
			}
			select {
			case out <- Fragment{Text: full}:
			case <-ctx.Done():
				return
			}
		} else {
			for chunk := range upstream {
				full += chunk
				select {
				case out <- Fragment{Text: chunk}:
				case <-ctx.Done():
					return
				}
			}
		}

		if _, ingestErr := c.memory.IngestTurn(ctx, internalID, domain.Speaker(personaName), full, nil); ingestErr != nil {
			c.metrics.RecordMemoryOp("ingest", ingestErr)
			out <- Fragment{Err: ingestErr, Done: true}
			return
		}
		c.metrics.RecordMemoryOp("ingest", nil)
		c.metrics.RecordTurn(personaName)

		if _, kpiErr := c.memory.UpdatePersonaKPI(ctx, personaName, domain.KPITotalResponse, 1); kpiErr != nil {
			c.logger.Warn("failed to update persona KPI for %s: %s", personaName, kpiErr)
		}
		if _, incErr := c.quota.Increment(ctx, req.UserID); incErr != nil {
			c.logger.Warn("failed to increment quota for user=%s: %s", req.UserID, incErr)
		}

		out <- Fragment{Done: true}
	}()

	return out, nil
}

// ClearSession clears an internal session's turns idempotently: clearing an
// already-clear session is a no-op, not an error.
func (c *Core) ClearSession(ctx context.Context, userID, externalSessionID string) error {
	internalID := c.sessions.InternalID(userID, externalSessionID)
	release := c.locks.Acquire(internalID)
	defer release()

	if err := c.memory.DeleteSessionRecords(ctx, internalID); err != nil {
		return err
	}
	c.sessions.Forget(userID, externalSessionID)
	return nil
}

// ListSessions returns every external session id the user has established.
func (c *Core) ListSessions(userID string) []string {
	return c.sessions.ListExternalSessions(userID)
}

// SessionInfo is one entry in SessionsWithCounts' per-session summary (spec
// §6 GET /chat/sessions).
type SessionInfo struct {
	ExternalSessionID string
	TurnCount         int
}

// SessionsWithCounts lists every external session id the user has
// established, together with its currently buffered turn count.
func (c *Core) SessionsWithCounts(userID string) []SessionInfo {
	external := c.sessions.ListExternalSessions(userID)
	out := make([]SessionInfo, len(external))
	for i, ext := range external {
		internalID := c.sessions.InternalID(userID, ext)
		out[i] = SessionInfo{ExternalSessionID: ext, TurnCount: len(c.memory.ConversationBuffer(internalID))}
	}
	return out
}

// History returns the ordered turns recorded for (userID, externalSessionID),
// honoring limit and offset (spec §6 GET /chat/history/{session}).
func (c *Core) History(userID, externalSessionID string, limit, offset int) []domain.TurnRecord {
	internalID := c.sessions.InternalID(userID, externalSessionID)
	return c.memory.SessionHistory(internalID, limit, offset)
}

// Limiter exposes the dispatch core's RateLimiter so the HTTP delivery
// layer can route-limit /chat and /chat/stream with the same instance Chat
// and ChatStream already enforce against.
func (c *Core) Limiter() *RateLimiter {
	return c.limiter
}

// InternalSessionID exposes the dispatch core's identifier translation to
// callers (e.g. the HTTP memory routes) that must address the same session
// the chat routes address, without duplicating SessionMap's logic.
func (c *Core) InternalSessionID(userID, externalSessionID string) string {
	return c.sessions.InternalID(userID, externalSessionID)
}
