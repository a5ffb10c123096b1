package gateway

import (
	"fmt"
	"strings"

	"codegw/internal/registry"
)

// Purpose selects the default model substituted for an empty request.
type Purpose int

const (
	PurposeCompletion Purpose = iota
	PurposeChat
)

func (p Purpose) capability() string {
	if p == PurposeChat {
		return registry.CapChat
	}
	return registry.CapCompletion
}

// Resolver maps a requested model name to a queue-addressable backend
// model name. It never returns a Go error for unknown input: the second
// return is a human-readable message, non-empty when resolution failed,
// in which case the request must be rejected without enqueueing.
type Resolver struct {
	Queue  InferenceQueue
	Models *registry.DB
}

// Resolve looks requested up against the currently available models.
// An empty name substitutes the first available model carrying the
// purpose's capability flag.
func (r *Resolver) Resolve(requested string, purpose Purpose) (string, string) {
	available := r.Queue.ModelsAvailable(true)
	if requested == "" {
		return r.defaultFor(purpose, available)
	}
	for _, name := range available {
		if name == requested {
			return name, ""
		}
	}
	return "", fmt.Sprintf("model %q is not loaded (available: %s)",
		requested, strings.Join(available, ", "))
}

// DefaultFor returns the default model for purpose, with a non-empty
// message when no available model carries the capability.
func (r *Resolver) DefaultFor(purpose Purpose) (string, string) {
	return r.defaultFor(purpose, r.Queue.ModelsAvailable(true))
}

func (r *Resolver) defaultFor(purpose Purpose, available []string) (string, string) {
	cap := purpose.capability()
	for _, name := range available {
		rec, ok := r.Models.Record(name)
		if ok && rec.HasCap(cap) {
			return name, ""
		}
	}
	return "", fmt.Sprintf("no model with %q capability is loaded", cap)
}
