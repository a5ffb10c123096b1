package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"codegw/internal/gateway"
	"codegw/pkg/types"
)

func sseFrames(t *testing.T, body string) []string {
	t.Helper()
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			out = append(out, strings.TrimPrefix(line, "data: "))
		}
	}
	return out
}

func streamRequest(t *testing.T, model string) (*http.Request, types.ChatRequest) {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	req := types.ChatRequest{
		Model:    model,
		Messages: []types.ChatMessage{{Role: "user", Content: "hi"}},
	}
	return r, req
}

func TestIsCloudModel(t *testing.T) {
	p := New(Config{CloudEnabled: true, CloudModels: []string{"gpt-4"}}, zerolog.Nop())
	if !p.IsCloudModel("gpt-4") {
		t.Fatal("gpt-4 should be cloud")
	}
	if p.IsCloudModel("local-model") {
		t.Fatal("local-model should not be cloud")
	}
	disabled := New(Config{CloudEnabled: false, CloudModels: []string{"gpt-4"}}, zerolog.Nop())
	if disabled.IsCloudModel("gpt-4") {
		t.Fatal("disabled cloud should never match")
	}
	if got := disabled.CloudModels(); got != nil {
		t.Fatalf("models=%v, want nil when disabled", got)
	}
}

func TestStreamCloudReframesChunks(t *testing.T) {
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["stream"] != true {
			t.Errorf("upstream body stream=%v", body["stream"])
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"he\"},\"finish_reason\":null}]}\n\n")
		fmt.Fprint(w, ": keepalive comment\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"llo\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	p := New(Config{
		CloudEnabled: true,
		CloudBaseURL: upstream.URL,
		CloudAPIKey:  "sk-test",
		CloudModels:  []string{"gpt-4"},
	}, zerolog.Nop())

	var buf strings.Builder
	r, req := streamRequest(t, "gpt-4")
	p.Stream(r, req, gateway.Normalize(types.SamplingParams{}), &buf, nil)

	if gotAuth != "Bearer sk-test" {
		t.Fatalf("auth=%q", gotAuth)
	}
	frames := sseFrames(t, buf.String())
	if len(frames) != 3 || frames[2] != "[DONE]" {
		t.Fatalf("frames=%q", frames)
	}
	// Chunks pass through unmodified.
	if !strings.Contains(frames[0], "\"he\"") || !strings.Contains(frames[1], "\"llo\"") {
		t.Fatalf("frames=%q", frames)
	}
}

func TestStreamCloudMalformedChunkCarriesFinishReason(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"length\"}]}\n\n")
		fmt.Fprint(w, "data: this is not json\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	p := New(Config{CloudEnabled: true, CloudBaseURL: upstream.URL, CloudModels: []string{"gpt-4"}}, zerolog.Nop())
	var buf strings.Builder
	r, req := streamRequest(t, "gpt-4")
	p.Stream(r, req, gateway.Normalize(types.SamplingParams{}), &buf, nil)

	frames := sseFrames(t, buf.String())
	if len(frames) != 3 {
		t.Fatalf("frames=%q", frames)
	}
	var synth struct {
		Choices []struct {
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(frames[1]), &synth); err != nil {
		t.Fatalf("json: %v", err)
	}
	if synth.Choices[0].FinishReason == nil || *synth.Choices[0].FinishReason != "length" {
		t.Fatalf("synthesized frame=%q", frames[1])
	}
}

func TestStreamCloudUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	p := New(Config{CloudEnabled: true, CloudBaseURL: upstream.URL, CloudModels: []string{"gpt-4"}}, zerolog.Nop())
	var buf strings.Builder
	r, req := streamRequest(t, "gpt-4")
	p.Stream(r, req, gateway.Normalize(types.SamplingParams{}), &buf, nil)

	frames := sseFrames(t, buf.String())
	if len(frames) != 1 {
		t.Fatalf("frames=%q", frames)
	}
	var f map[string]string
	if err := json.Unmarshal([]byte(frames[0]), &f); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(f["error"], "cloud provider error") || !strings.Contains(f["error"], "429") {
		t.Fatalf("error=%q", f["error"])
	}
}

func TestStreamCloudUnreachable(t *testing.T) {
	p := New(Config{CloudEnabled: true, CloudBaseURL: "http://127.0.0.1:1", CloudModels: []string{"gpt-4"}}, zerolog.Nop())
	var buf strings.Builder
	r, req := streamRequest(t, "gpt-4")
	p.Stream(r, req, gateway.Normalize(types.SamplingParams{}), &buf, nil)

	frames := sseFrames(t, buf.String())
	if len(frames) != 1 || !strings.Contains(frames[0], "cloud provider error") {
		t.Fatalf("frames=%q", frames)
	}
}

func TestStreamLocalNullsFinishReasonUntilEnd(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat" {
			t.Errorf("path=%s", r.URL.Path)
		}
		var body localRequest
		json.NewDecoder(r.Body).Decode(&body)
		if !body.Stream || len(body.Messages) != 1 {
			t.Errorf("body=%+v", body)
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":\"he\",\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	p := New(Config{LocalBaseURL: upstream.URL}, zerolog.Nop())
	var buf strings.Builder
	r, req := streamRequest(t, "local-model")
	p.Stream(r, req, gateway.Normalize(types.SamplingParams{}), &buf, nil)

	frames := sseFrames(t, buf.String())
	// chunk + synthesized final frame + [DONE]
	if len(frames) != 3 || frames[2] != "[DONE]" {
		t.Fatalf("frames=%q", frames)
	}
	var first struct {
		Choices []struct {
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(frames[0]), &first); err != nil {
		t.Fatalf("json: %v", err)
	}
	if first.Choices[0].FinishReason != nil {
		t.Fatalf("finish_reason should be withheld on streamed chunks: %q", frames[0])
	}
	var final struct {
		Choices []struct {
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(frames[1]), &final); err != nil {
		t.Fatalf("json: %v", err)
	}
	if final.Choices[0].FinishReason == nil || *final.Choices[0].FinishReason != "stop" {
		t.Fatalf("final frame=%q", frames[1])
	}
}

func TestStreamLocalUnreachable(t *testing.T) {
	p := New(Config{LocalBaseURL: "http://127.0.0.1:1"}, zerolog.Nop())
	var buf strings.Builder
	r, req := streamRequest(t, "local-model")
	p.Stream(r, req, gateway.Normalize(types.SamplingParams{}), &buf, nil)

	frames := sseFrames(t, buf.String())
	if len(frames) != 1 || !strings.Contains(frames[0], "local inference backend is not ready yet") {
		t.Fatalf("frames=%q", frames)
	}
}

func TestModelsFromLocalCaps(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/caps" {
			t.Errorf("path=%s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"running_models": []string{"fim-model", "chat-model"},
			"code_completion_models": map[string]any{
				"fim-model": map[string]any{"similar_models": []string{"fim-alias"}},
			},
			"code_chat_models": map[string]any{
				"chat-model": map[string]any{},
			},
		})
	}))
	defer upstream.Close()

	p := New(Config{LocalBaseURL: upstream.URL}, zerolog.Nop())
	items, err := p.Models(context.Background())
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items=%d", len(items))
	}
	if !items[0].Completion || items[0].Chat {
		t.Fatalf("fim item=%+v", items[0])
	}
	if items[1].Completion || !items[1].Chat {
		t.Fatalf("chat item=%+v", items[1])
	}
	if items[0].Object != "model" || items[0].Permission == nil {
		t.Fatalf("item=%+v", items[0])
	}
}

func TestModelsBackendGone(t *testing.T) {
	p := New(Config{LocalBaseURL: "http://127.0.0.1:1"}, zerolog.Nop())
	_, err := p.Models(context.Background())
	if err == nil || !IsBackendGone(err) {
		t.Fatalf("err=%v, want backend-gone", err)
	}
	if !strings.Contains(err.Error(), "local inference backend is not ready yet") {
		t.Fatalf("err=%v", err)
	}
}

func TestModelsBackendBadStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()
	p := New(Config{LocalBaseURL: upstream.URL}, zerolog.Nop())
	if _, err := p.Models(context.Background()); err == nil || !IsBackendGone(err) {
		t.Fatalf("err=%v, want backend-gone", err)
	}
}
