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

// cloudRequest is the OpenAI-compatible chat request body.
type cloudRequest struct {
	Model       string              `json:"model"`
	Messages    []types.ChatMessage `json:"messages"`
	Stream      bool                `json:"stream"`
	Temperature float64             `json:"temperature,omitempty"`
	TopP        float64             `json:"top_p,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Stop        []string            `json:"stop,omitempty"`
}

// streamCloud issues a streaming request to the cloud provider and
// re-wraps each provider chunk into the gateway frame format.
// finish_reason is carried across chunks that omit or garble it, so the
// last emitted frame always declares how generation ended.
func (p *Proxy) streamCloud(ctx context.Context, req types.ChatRequest, params gateway.NormalizedParams, w io.Writer, flush func()) {
	body, err := json.Marshal(cloudRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Stream:      true,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		MaxTokens:   params.MaxTokens,
		Stop:        params.StopTokens,
	})
	if err != nil {
		p.failCloud(w, flush, err)
		return
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.CloudBaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		p.failCloud(w, flush, err)
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.CloudAPIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.failCloud(w, flush, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		p.failCloud(w, flush, fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
		return
	}

	var finishReason *string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		data, found := strings.CutPrefix(line, "data: ")
		if !found {
			continue
		}
		if data == "[DONE]" {
			break
		}
		var chunk map[string]any
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Malformed chunk: substitute the last known finish_reason
			// so the client still sees a well-formed frame.
			writeFrame(w, flush, map[string]any{
				"choices": []map[string]any{{"finish_reason": finishReason}},
			})
			continue
		}
		if fr, ok := chunkFinishReason(chunk); ok {
			finishReason = fr
		}
		if err := writeRawFrame(w, flush, []byte(data)); err != nil {
			proxyRequestsTotal.WithLabelValues("cloud", "client_gone").Inc()
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		p.failCloud(w, flush, err)
		return
	}
	writeDone(w, flush)
	proxyRequestsTotal.WithLabelValues("cloud", "ok").Inc()
}

func (p *Proxy) failCloud(w io.Writer, flush func(), err error) {
	msg := fmt.Sprintf("cloud provider error: %v", err)
	p.log.Error().Msg(msg)
	writeErrorFrame(w, flush, msg)
	proxyRequestsTotal.WithLabelValues("cloud", "error").Inc()
}

// chunkFinishReason extracts choices[0].finish_reason when present.
func chunkFinishReason(chunk map[string]any) (*string, bool) {
	choices, ok := chunk["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil, false
	}
	first, ok := choices[0].(map[string]any)
	if !ok {
		return nil, false
	}
	raw, ok := first["finish_reason"]
	if !ok {
		return nil, false
	}
	if raw == nil {
		return nil, true
	}
	s, ok := raw.(string)
	if !ok {
		return nil, false
	}
	return &s, true
}
