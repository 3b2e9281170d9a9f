// Package bridge implements the request/response protocol between control
// surfaces and page sessions. Every message is a JSON object carrying an
// "action" discriminator plus action-specific fields; every request gets an
// answer, so a caller is never left hanging.
//
// The router dispatches in-memory: handlers are plain functions registered
// per action, bytes in, value out. A liveness probe ("ping") is answered by
// the router itself, before any handler lookup, so callers can distinguish
// "nobody here" from "handler failed".
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Handler processes one request. It receives the full raw message (the
// action-specific fields sit alongside the discriminator) and returns the
// response data, which the router wraps in a Response envelope.
type Handler func(ctx context.Context, raw json.RawMessage) (any, error)

// ErrNoHandler is returned inside the Response when no handler is registered
// for the requested action.
var ErrNoHandler = errors.New("bridge: no handler for action")

// Response is the envelope every dispatch produces.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Pong is the distinct payload of a ping answer.
type Pong struct {
	Pong bool `json:"pong"`
}

// Router dispatches action-discriminated messages to registered handlers.
// Thread-safe: registration and dispatch may run concurrently.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets a custom logger for the router.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates a Router with no handlers registered.
func New(opts ...Option) *Router {
	r := &Router{
		handlers: make(map[string]Handler),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register installs the handler for an action, replacing any previous one.
func (r *Router) Register(action string, h Handler) {
	r.mu.Lock()
	r.handlers[action] = h
	r.mu.Unlock()
}

// Dispatch routes one raw message and always produces an answer:
// malformed JSON, a missing action, and an unregistered action all yield a
// described failure rather than silence.
func (r *Router) Dispatch(ctx context.Context, raw []byte) Response {
	var envelope struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Response{Error: fmt.Sprintf("bridge: malformed request: %v", err)}
	}
	if envelope.Action == "" {
		return Response{Error: "bridge: missing action"}
	}

	// Liveness probe: answered by the router itself, immediately.
	if envelope.Action == ActionPing {
		return Response{Success: true, Data: Pong{Pong: true}}
	}

	r.mu.RLock()
	h := r.handlers[envelope.Action]
	r.mu.RUnlock()

	if h == nil {
		r.logger.DebugContext(ctx, "bridge: unhandled action", "action", envelope.Action)
		return Response{Error: fmt.Sprintf("%v: %s", ErrNoHandler, envelope.Action)}
	}

	data, err := h(ctx, raw)
	if err != nil {
		r.logger.WarnContext(ctx, "bridge: handler failed",
			"action", envelope.Action, "error", err)
		return Response{Error: err.Error()}
	}
	return Response{Success: true, Data: data}
}

// Reply is Dispatch plus envelope marshalling, for transports that carry
// bytes. The returned slice is always valid JSON.
func (r *Router) Reply(ctx context.Context, raw []byte) []byte {
	resp := r.Dispatch(ctx, raw)
	out, err := json.Marshal(resp)
	if err != nil {
		// Data was not marshallable; degrade to the error envelope.
		r.logger.Error("bridge: marshal response", "error", err)
		out, _ = json.Marshal(Response{Error: "bridge: unencodable response"})
	}
	return out
}
