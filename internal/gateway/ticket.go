package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aidarkhanov/nanoid"

	"codegw/pkg/types"
)

// ErrQueueTimeout is returned by Next when no message arrived within
// the iteration timeout.
var ErrQueueTimeout = errors.New("streaming queue timeout")

const ticketIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Ticket is one in-flight request: its identity, the call handed to the
// backend, and the streaming queue the backend producer delivers result
// messages on. The queue is unbounded so a producer never blocks on a
// slow consumer; the consumer waits with a per-iteration timeout.
type Ticket struct {
	id   string
	Call map[string]any

	mu     sync.Mutex
	fifo   []types.Message
	notify chan struct{}

	cancelled atomic.Bool
	done      atomic.Bool
}

// NewTicket creates a ticket with a fresh id under the given prefix
// ("comp-" for completions, "chat-" for chat).
func NewTicket(prefix string) *Ticket {
	suffix, _ := nanoid.Generate(ticketIDAlphabet, 12)
	return &Ticket{
		id:     prefix + suffix,
		Call:   make(map[string]any),
		notify: make(chan struct{}, 1),
	}
}

// ID returns the ticket id, or "" once the ticket is done.
func (t *Ticket) ID() string {
	if t.done.Load() {
		return ""
	}
	return t.id
}

// Push appends a backend result message to the streaming queue.
// Producer side; never blocks.
func (t *Ticket) Push(m types.Message) {
	t.mu.Lock()
	t.fifo = append(t.fifo, m)
	t.mu.Unlock()
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// Next pops the oldest queued message, waiting up to timeout for one
// to arrive. Returns ErrQueueTimeout when the timeout elapses, or the
// context error when the consumer detaches.
func (t *Ticket) Next(ctx context.Context, timeout time.Duration) (types.Message, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		t.mu.Lock()
		if len(t.fifo) > 0 {
			m := t.fifo[0]
			t.fifo = t.fifo[1:]
			t.mu.Unlock()
			return m, nil
		}
		t.mu.Unlock()
		select {
		case <-t.notify:
		case <-deadline.C:
			return types.Message{}, ErrQueueTimeout
		case <-ctx.Done():
			return types.Message{}, ctx.Err()
		}
	}
}

// Cancel signals the backend producer to stop generating. Advisory
// only; producers poll the flag at their own checkpoints.
func (t *Ticket) Cancel() { t.cancelled.Store(true) }

// Cancelled reports whether the consumer has detached.
func (t *Ticket) Cancelled() bool { return t.cancelled.Load() }

// Done marks the ticket terminal. Returns true the first time, false on
// repeat calls, so completion is observed exactly once.
func (t *Ticket) Done() bool { return t.done.CompareAndSwap(false, true) }

// TicketRegistry is the process-wide id-to-ticket mapping. The admission
// gate inserts before enqueueing so a concurrent cancellation can find
// the ticket; the streaming loop removes it once done.
type TicketRegistry struct {
	mu sync.Mutex
	m  map[string]*Ticket
}

func NewTicketRegistry() *TicketRegistry {
	return &TicketRegistry{m: make(map[string]*Ticket)}
}

func (r *TicketRegistry) Register(t *Ticket) {
	r.mu.Lock()
	r.m[t.id] = t
	r.mu.Unlock()
}

func (r *TicketRegistry) Lookup(id string) (*Ticket, bool) {
	r.mu.Lock()
	t, ok := r.m[id]
	r.mu.Unlock()
	return t, ok
}

func (r *TicketRegistry) Remove(id string) {
	r.mu.Lock()
	delete(r.m, id)
	r.mu.Unlock()
}

// Len reports how many tickets are currently live.
func (r *TicketRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}
