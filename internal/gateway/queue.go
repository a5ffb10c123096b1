package gateway

import (
	"context"
	"sort"
	"sync"
)

// InferenceQueue is the work-queue collaborator that hands tickets to
// the worker pool executing inference. The gateway only admits: queue
// capacity and backpressure are the queue owner's concern, so Put never
// fails and never blocks.
type InferenceQueue interface {
	// Put enqueues a ticket for the given backend model, lazily
	// creating the model's queue.
	Put(model string, t *Ticket)
	// ModelsAvailable lists the models that currently have a producer.
	// force asks the implementation to re-read its source of truth.
	ModelsAvailable(force bool) []string
}

// MemQueue is the in-process InferenceQueue used by the daemon and by
// tests. Per-model FIFOs are unbounded; producers drain them with Take.
type MemQueue struct {
	mu     sync.Mutex
	queues map[string]*ticketFIFO
	models []string
}

type ticketFIFO struct {
	mu     sync.Mutex
	fifo   []*Ticket
	notify chan struct{}
}

func newTicketFIFO() *ticketFIFO {
	return &ticketFIFO{notify: make(chan struct{}, 1)}
}

func (q *ticketFIFO) put(t *Ticket) {
	q.mu.Lock()
	q.fifo = append(q.fifo, t)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *ticketFIFO) take(ctx context.Context) (*Ticket, error) {
	for {
		q.mu.Lock()
		if len(q.fifo) > 0 {
			t := q.fifo[0]
			q.fifo = q.fifo[1:]
			q.mu.Unlock()
			return t, nil
		}
		q.mu.Unlock()
		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// NewMemQueue builds a queue whose available-model set is fixed to the
// given names (the models the local service is configured to run).
func NewMemQueue(models []string) *MemQueue {
	return &MemQueue{
		queues: make(map[string]*ticketFIFO),
		models: append([]string(nil), models...),
	}
}

func (m *MemQueue) queueFor(model string) *ticketFIFO {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[model]
	if !ok {
		q = newTicketFIFO()
		m.queues[model] = q
	}
	return q
}

// Put implements InferenceQueue.
func (m *MemQueue) Put(model string, t *Ticket) {
	m.queueFor(model).put(t)
}

// Take blocks until a ticket is queued for model, for worker-pool use.
func (m *MemQueue) Take(ctx context.Context, model string) (*Ticket, error) {
	return m.queueFor(model).take(ctx)
}

// ModelsAvailable implements InferenceQueue. The in-memory queue has no
// external source to re-read, so force is a no-op.
func (m *MemQueue) ModelsAvailable(force bool) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.models...)
}

// QueueLen reports the number of tickets waiting for model.
func (m *MemQueue) QueueLen(model string) int {
	q := m.queueFor(model)
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fifo)
}

// QueuedModels lists models that have had at least one admission.
func (m *MemQueue) QueuedModels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.queues))
	for name := range m.queues {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
