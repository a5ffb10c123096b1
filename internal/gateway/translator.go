package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"codegw/pkg/types"
)

// StreamKind selects the backend message shape a translator consumes.
// Dispatch happens once at construction, not per message.
type StreamKind int

const (
	// KindCompletion: n positional choices carrying cumulative Text.
	KindCompletion StreamKind = iota
	// KindChat: indexed choices carrying cumulative Content; outgoing
	// frames carry only the delta.
	KindChat
)

func (k StreamKind) String() string {
	if k == KindChat {
		return "chat"
	}
	return "completion"
}

// completionFrame is the client-facing shape of one completions result.
type completionFrame struct {
	Status               string             `json:"status,omitempty"`
	Choices              []completionChoice `json:"choices,omitempty"`
	HumanReadableMessage string             `json:"human_readable_message,omitempty"`
	GeneratedTokens      int                `json:"generated_tokens_n,omitempty"`
	CapsVersion          int64              `json:"caps_version"`
}

type completionChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// chatFrame is the client-facing shape of one chat chunk. The
// cumulative content is stripped; only the delta is sent.
type chatFrame struct {
	Status               string       `json:"status,omitempty"`
	Choices              []chatChoice `json:"choices,omitempty"`
	HumanReadableMessage string       `json:"human_readable_message,omitempty"`
	GeneratedTokens      int          `json:"generated_tokens_n,omitempty"`
}

type chatChoice struct {
	Index        int    `json:"index"`
	Delta        string `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Translator is the per-ticket consumer loop: it drains the ticket's
// streaming queue, converts cumulative backend messages into
// incremental client frames, and owns the ticket's terminal transition.
// One translator per ticket; Run is called exactly once.
type Translator struct {
	ticket   *Ticket
	registry *TicketRegistry
	kind     StreamKind
	stream   bool
	n        int
	timeout  time.Duration
	// doneDelay postpones the chat stream-end sentinel to accommodate a
	// client-side race in one downstream plugin. Compatibility knob,
	// not a correctness requirement.
	doneDelay   time.Duration
	capsVersion int64
	seen        map[int]string
	log         zerolog.Logger
}

func (g *Gateway) newTranslator(t *Ticket, kind StreamKind, stream bool, n int) *Translator {
	if n < 1 {
		n = 1
	}
	return &Translator{
		ticket:   t,
		registry: g.Tickets,
		kind:     kind,
		stream:   stream,
		n:        n,
		timeout:  g.Timeout,
		seen:     make(map[int]string),
		log:      g.Log.With().Str("ticket", t.id).Logger(),
	}
}

// CompletionStreamer builds the translator for a /v1/completions
// ticket. capsVersion is echoed into every outgoing frame.
func (g *Gateway) CompletionStreamer(t *Ticket, n int, stream bool, capsVersion int64) *Translator {
	tr := g.newTranslator(t, KindCompletion, stream, n)
	tr.capsVersion = capsVersion
	return tr
}

// ChatStreamer builds the translator for a /v1/chat ticket. The chat
// wire protocol always streams.
func (g *Gateway) ChatStreamer(t *Ticket) *Translator {
	tr := g.newTranslator(t, KindChat, true, 1)
	tr.doneDelay = g.ChatDoneDelay
	return tr
}

// Run consumes the ticket's queue until a terminal status, timeout, or
// consumer detach, writing frames to w. On every exit path the ticket
// is cancelled (advisory, for the producer) and unregistered.
func (tr *Translator) Run(ctx context.Context, w io.Writer, flush func()) error {
	id := tr.ticket.id
	start := time.Now()
	packets := 0
	defer func() {
		if tr.ticket.ID() != "" {
			tr.log.Info().Dur("elapsed", time.Since(start)).Msg("cancelling ticket")
			cancellationsTotal.Inc()
		}
		tr.ticket.Cancel()
		tr.ticket.Done()
		tr.registry.Remove(id)
	}()

	for {
		msg, err := tr.ticket.Next(ctx, tr.timeout)
		if err != nil {
			if !errors.Is(err, ErrQueueTimeout) {
				// Consumer detached; the deferred cancel propagates.
				return err
			}
			tr.log.Warn().Dur("elapsed", time.Since(start)).Msg("streaming timeout")
			streamTimeoutsTotal.Inc()
			msg = types.Message{Status: types.StatusError, HumanReadableMessage: "timeout"}
		}

		frame := tr.translate(msg)
		if !tr.stream {
			if !msg.Terminal() {
				continue
			}
			if err := json.NewEncoder(w).Encode(frame); err != nil {
				return err
			}
			break
		}

		b, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return err
		}
		if flush != nil {
			flush()
		}
		packets++
		framesStreamedTotal.WithLabelValues(tr.kind.String()).Inc()
		tr.log.Debug().Int("bytes", len(b)).Msg("stream frame")
		if msg.Terminal() {
			break
		}
	}

	if tr.stream {
		if tr.doneDelay > 0 {
			select {
			case <-time.After(tr.doneDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if _, err := io.WriteString(w, "data: [DONE]\n\n"); err != nil {
			return err
		}
		if flush != nil {
			flush()
		}
	}
	tr.ticket.Done()
	tr.log.Info().Dur("elapsed", time.Since(start)).Int("packets", packets).Msg("finished")
	return nil
}

// translate converts one backend message into the outgoing frame shape,
// updating the per-choice seen state.
func (tr *Translator) translate(msg types.Message) any {
	if tr.kind == KindChat {
		return tr.translateChat(msg)
	}
	return tr.translateCompletion(msg)
}

func (tr *Translator) translateCompletion(msg types.Message) completionFrame {
	out := completionFrame{
		Status:               msg.Status,
		HumanReadableMessage: msg.HumanReadableMessage,
		GeneratedTokens:      msg.GeneratedTokens,
		CapsVersion:          tr.capsVersion,
	}
	for i := 0; i < tr.n && i < len(msg.Choices); i++ {
		ch := msg.Choices[i]
		emit := ch.Text
		if prev := tr.seen[i]; strings.HasPrefix(ch.Text, prev) {
			emit = ch.Text[len(prev):]
			if tr.stream {
				// Non-streaming responses keep seen empty so the one
				// final document carries the full text.
				tr.seen[i] = ch.Text
			}
		} else {
			tr.log.Warn().Int("choice", i).Msg("cumulative text does not extend seen prefix, might be the producer's fault")
			prefixAnomaliesTotal.Inc()
		}
		out.Choices = append(out.Choices, completionChoice{
			Index:        ch.Index,
			Text:         emit,
			FinishReason: ch.FinishReason,
		})
	}
	return out
}

func (tr *Translator) translateChat(msg types.Message) chatFrame {
	out := chatFrame{
		Status:               msg.Status,
		HumanReadableMessage: msg.HumanReadableMessage,
		GeneratedTokens:      msg.GeneratedTokens,
	}
	for _, ch := range msg.Choices {
		prev := tr.seen[ch.Index]
		delta := ""
		if strings.HasPrefix(ch.Content, prev) {
			delta = ch.Content[len(prev):]
		} else {
			tr.log.Warn().Int("choice", ch.Index).Msg("cumulative content does not extend seen prefix, might be the producer's fault")
			prefixAnomaliesTotal.Inc()
		}
		tr.seen[ch.Index] = ch.Content
		out.Choices = append(out.Choices, chatChoice{
			Index:        ch.Index,
			Delta:        delta,
			FinishReason: ch.FinishReason,
		})
	}
	return out
}

// WriteStaticChatError satisfies a chat request with a single
// error-shaped chunk instead of a queue admission, used when the
// history limiter trims the conversation to nothing.
func WriteStaticChatError(w io.Writer, flush func(), message string) {
	frame := map[string]any{
		"object":        "smc.chat.chunk",
		"role":          "assistant",
		"delta":         message,
		"finish_reason": "END",
	}
	b, _ := json.Marshal(frame)
	fmt.Fprintf(w, "data: %s\n\n", b)
	io.WriteString(w, "data: [ERROR]\n\n")
	if flush != nil {
		flush()
	}
}
