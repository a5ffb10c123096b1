package gateway

import (
	"time"

	"codegw/pkg/types"
)

// Sampling-parameter bounds. Values outside are clamped, not rejected:
// IDE plugins send whatever their sliders produce and a 400 here would
// break completion silently.
const (
	maxTemperature = 4.0
	maxTopN        = 1000
	maxMaxTokens   = 8192
)

// Chat history limits applied before admission.
const (
	maxChatMessages = 10
	maxChatChars    = 8000
)

func clampFloat(lo, hi, x float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func clampInt(lo, hi, x int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// NormalizedParams is the clamped parameter set handed to the backend,
// stamped with the request creation time for latency logging.
type NormalizedParams struct {
	Temperature float64
	TopP        float64
	TopN        int
	MaxTokens   int
	StopTokens  []string
	Created     float64 // unix seconds
}

// Normalize clamps p into documented ranges and stamps the creation
// time.
func Normalize(p types.SamplingParams) NormalizedParams {
	return NormalizedParams{
		Temperature: clampFloat(0, maxTemperature, p.Temperature),
		TopP:        clampFloat(0.0, 1.0, p.TopP),
		TopN:        clampInt(0, maxTopN, p.TopN),
		MaxTokens:   clampInt(0, maxMaxTokens, p.MaxTokens),
		StopTokens:  []string(p.Stop),
		Created:     float64(time.Now().UnixNano()) / 1e9,
	}
}

// CallFields returns the normalized parameters in the shape the backend
// call map expects.
func (p NormalizedParams) CallFields() map[string]any {
	return map[string]any{
		"temperature": p.Temperature,
		"top_p":       p.TopP,
		"top_n":       p.TopN,
		"max_tokens":  p.MaxTokens,
		"created":     p.Created,
		"stop_tokens": p.StopTokens,
	}
}

// LimitChatHistory enforces the chat history budget: at most
// maxChatMessages messages and maxChatChars characters of content+role,
// dropping the oldest user/assistant pair (two messages at a time, so
// pairing is preserved) until under both limits. An empty input is a
// validation error; an input trimmed to nothing is returned as an empty
// slice so the caller can answer with the in-band too-large response
// instead of enqueueing.
func LimitChatHistory(messages []types.ChatMessage) ([]types.ChatMessage, error) {
	if len(messages) == 0 {
		return nil, ErrNoMessages()
	}
	msgs := append([]types.ChatMessage(nil), messages...)
	for len(msgs) > maxChatMessages {
		msgs = dropOldestPair(msgs)
	}
	for chatChars(msgs) > maxChatChars {
		msgs = dropOldestPair(msgs)
	}
	return msgs, nil
}

func dropOldestPair(msgs []types.ChatMessage) []types.ChatMessage {
	if len(msgs) <= 2 {
		return msgs[:0]
	}
	return msgs[2:]
}

func chatChars(msgs []types.ChatMessage) int {
	total := 0
	for _, m := range msgs {
		total += len(m.Content) + len(m.Role)
	}
	return total
}
