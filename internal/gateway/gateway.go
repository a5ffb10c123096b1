// Package gateway implements the ticket-based streaming admission and
// response protocol: the lifecycle of a request from admission into a
// model-specific queue through incremental delta-streaming back to the
// client.
package gateway

import (
	"time"

	"github.com/rs/zerolog"

	"codegw/internal/registry"
	"codegw/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultStreamTimeout = 30 * time.Second
	defaultChatDoneDelay = 500 * time.Millisecond
)

// Config encapsulates the gateway tunables.
type Config struct {
	// StreamTimeout bounds every single wait on a ticket's queue. It is
	// a per-iteration timeout, not a total request deadline.
	StreamTimeout time.Duration
	// ChatDoneDelay is slept before the chat [DONE] sentinel.
	ChatDoneDelay time.Duration
}

// Gateway owns the ticket registry and admission into the inference
// queue. The queue and the models db are external collaborators.
type Gateway struct {
	Queue   InferenceQueue
	Models  *registry.DB
	Tickets *TicketRegistry

	Timeout       time.Duration
	ChatDoneDelay time.Duration
	Log           zerolog.Logger
}

// New constructs a Gateway around the given collaborators.
func New(q InferenceQueue, models *registry.DB, log zerolog.Logger, cfg Config) *Gateway {
	g := &Gateway{
		Queue:         q,
		Models:        models,
		Tickets:       NewTicketRegistry(),
		Timeout:       cfg.StreamTimeout,
		ChatDoneDelay: cfg.ChatDoneDelay,
		Log:           log,
	}
	if g.Timeout <= 0 {
		g.Timeout = defaultStreamTimeout
	}
	switch {
	case g.ChatDoneDelay == 0:
		g.ChatDoneDelay = defaultChatDoneDelay
	case g.ChatDoneDelay < 0:
		// Negative disables the delay entirely.
		g.ChatDoneDelay = 0
	}
	return g
}

// Resolver returns the model resolver bound to this gateway's
// collaborators.
func (g *Gateway) Resolver() *Resolver {
	return &Resolver{Queue: g.Queue, Models: g.Models}
}

// Admit registers the ticket so a concurrent cancellation can find it,
// then pushes it onto the resolved model's queue. Registration happens
// first; admission itself has no failure mode.
func (g *Gateway) Admit(t *Ticket, model string, kind StreamKind) {
	g.Tickets.Register(t)
	g.Queue.Put(model, t)
	ticketsAdmittedTotal.WithLabelValues(kind.String()).Inc()
	g.Log.Info().Str("ticket", t.id).Str("model", model).Msg("admitted")
}

// BuildCompletionCall populates the ticket's backend call for a
// completion request.
func BuildCompletionCall(t *Ticket, req types.CompletionRequest, model, account string, params NormalizedParams) {
	for k, v := range params.CallFields() {
		t.Call[k] = v
	}
	t.Call["object"] = "text_completion_req"
	t.Call["account"] = account
	t.Call["prompt"] = req.Prompt
	t.Call["model"] = model
	t.Call["stream"] = req.Stream
	t.Call["echo"] = req.Echo
}

// BuildChatCall populates the ticket's backend call for a chat request.
// The backend chat protocol always streams.
func BuildChatCall(t *Ticket, messages []types.ChatMessage, model, account, function string, params NormalizedParams) {
	for k, v := range params.CallFields() {
		t.Call[k] = v
	}
	if function == "" {
		function = "chat"
	}
	t.Call["id"] = t.id
	t.Call["object"] = "chat_completion_req"
	t.Call["account"] = account
	t.Call["model"] = model
	t.Call["function"] = function
	t.Call["messages"] = messages
	t.Call["stream"] = true
}
