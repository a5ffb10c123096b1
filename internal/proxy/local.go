package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"codegw/internal/gateway"
	"codegw/pkg/types"
)

// localRequest is the local backend's chat protocol.
type localRequest struct {
	Messages   []types.ChatMessage `json:"messages"`
	Stream     bool                `json:"stream"`
	Model      string              `json:"model"`
	Parameters localParameters     `json:"parameters"`
}

type localParameters struct {
	Temperature  float64 `json:"temperature"`
	MaxNewTokens int     `json:"max_new_tokens"`
}

// streamLocal issues a streaming request to the local inference backend
// and re-emits its frames. The backend reports finish_reason on every
// chunk; we withhold it (null) until the chunk that actually declares
// one, then surface the tracked value on the synthesized final frame.
func (p *Proxy) streamLocal(ctx context.Context, req types.ChatRequest, params gateway.NormalizedParams, w io.Writer, flush func()) {
	body, err := json.Marshal(localRequest{
		Messages: req.Messages,
		Stream:   true,
		Model:    req.Model,
		Parameters: localParameters{
			Temperature:  params.Temperature,
			MaxNewTokens: params.MaxTokens,
		},
	})
	if err != nil {
		p.failLocal(w, flush, err)
		return
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.LocalBaseURL, "/")+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		p.failLocal(w, flush, err)
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.failLocal(w, flush, err)
		return
	}
	defer resp.Body.Close()

	var finishReason *string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		data, _ := strings.CutPrefix(line, "data: ")
		var chunk map[string]any
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// The backend's stream-end sentinel (or a garbled chunk):
			// emit the frame that finally declares the finish_reason.
			writeFrame(w, flush, map[string]any{
				"choices": []map[string]any{{"finish_reason": finishReason}},
			})
			continue
		}
		if fr, ok := chunkFinishReason(chunk); ok && fr != nil {
			finishReason = fr
			setChunkFinishReason(chunk, nil)
		}
		if err := writeFrame(w, flush, chunk); err != nil {
			proxyRequestsTotal.WithLabelValues("local", "client_gone").Inc()
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		p.failLocal(w, flush, err)
		return
	}
	writeDone(w, flush)
	proxyRequestsTotal.WithLabelValues("local", "ok").Inc()
}

func (p *Proxy) failLocal(w io.Writer, flush func(), err error) {
	msg := fmt.Sprintf("local inference backend is not ready yet: %v", err)
	p.log.Error().Msg(msg)
	writeErrorFrame(w, flush, msg)
	proxyRequestsTotal.WithLabelValues("local", "error").Inc()
}

func setChunkFinishReason(chunk map[string]any, v any) {
	choices, ok := chunk["choices"].([]any)
	if !ok || len(choices) == 0 {
		return
	}
	if first, ok := choices[0].(map[string]any); ok {
		first["finish_reason"] = v
	}
}

// localCaps is the subset of the local backend's /v1/caps document the
// models listing needs.
type localCaps struct {
	RunningModels        []string                  `json:"running_models"`
	CodeCompletionModels map[string]localCapsModel `json:"code_completion_models"`
	CodeChatModels       map[string]localCapsModel `json:"code_chat_models"`
}

type localCapsModel struct {
	SimilarModels []string `json:"similar_models"`
}

// backendGoneError signals the local backend is unreachable, for 401
// mapping on the models listing.
type backendGoneError struct{ err error }

func (e backendGoneError) Error() string {
	return fmt.Sprintf("local inference backend is not ready yet: %v", e.err)
}

func (e backendGoneError) Unwrap() error { return e.err }

// IsBackendGone reports whether err indicates an unreachable local
// backend.
func IsBackendGone(err error) bool {
	_, ok := err.(backendGoneError)
	return ok
}

// Models lists the models known to the local backend, each tagged with
// completion/chat capability derived from its caps document.
func (p *Proxy) Models(ctx context.Context) ([]types.ModelItem, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(p.cfg.LocalBaseURL, "/")+"/v1/caps", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, backendGoneError{err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, backendGoneError{err: fmt.Errorf("caps returned %d", resp.StatusCode)}
	}
	var caps localCaps
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&caps); err != nil {
		return nil, backendGoneError{err: err}
	}

	completion := make(map[string]bool)
	for model, c := range caps.CodeCompletionModels {
		completion[model] = true
		for _, s := range c.SimilarModels {
			completion[s] = true
		}
	}
	chat := make(map[string]bool)
	for model, c := range caps.CodeChatModels {
		chat[model] = true
		for _, s := range c.SimilarModels {
			chat[s] = true
		}
	}
	items := make([]types.ModelItem, 0, len(caps.RunningModels))
	for _, model := range caps.RunningModels {
		items = append(items, types.ModelItem{
			ID:         model,
			Root:       model,
			Object:     "model",
			Permission: []any{},
			Completion: completion[model],
			Chat:       chat[model],
		})
	}
	return items, nil
}
