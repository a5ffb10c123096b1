package blackbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) (int, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	cleanup := func() { _ = ln.Close() }
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return port, cleanup
}

func projectRootFromThisFile(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/tests/blackbox/blackbox_test.go
	bbDir := filepath.Dir(thisFile)
	return filepath.Dir(filepath.Dir(bbDir))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	root := projectRootFromThisFile(t)
	outDir := t.TempDir()
	binPath := filepath.Join(outDir, "codegwd")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/codegwd")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

// writeConfig lays down a models db and a gateway config pointing the
// local backend at a port nothing listens on.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	modelsPath := filepath.Join(dir, "models.yaml")
	models := `models:
  - name: test/fim-model
    model_path: org/fim-model
    filter_caps: [completion]
  - name: test/chat-model
    model_path: org/chat-model
    filter_caps: [completion, chat]
`
	if err := os.WriteFile(modelsPath, []byte(models), 0o644); err != nil {
		t.Fatalf("write models: %v", err)
	}
	cfgPath := filepath.Join(dir, "codegw.yaml")
	cfg := fmt.Sprintf(`models_db: %s
log_level: warn
stream_timeout_seconds: 1
local_backend_url: http://127.0.0.1:1
`, modelsPath)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

type serverProc struct {
	cmd  *exec.Cmd
	base string // http base URL, e.g. http://127.0.0.1:18080
}

func startServer(t *testing.T, bin, cfgPath string, port int) *serverProc {
	t.Helper()
	addr := fmt.Sprintf(":%d", port)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	cmd := exec.Command(bin, "--addr", addr, "--config", cfgPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	// Wait for healthz
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			_ = cmd.Process.Kill()
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
	sp := &serverProc{cmd: cmd, base: base}
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	return sp
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func postJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func TestBlackbox_Flow(t *testing.T) {
	bin := buildBinary(t)
	cfgPath := writeConfig(t)
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, cfgPath, port)

	// /healthz
	resp, body := get(t, sp.base+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz %d %s", resp.StatusCode, string(body))
	}

	// /coding_assistant_caps.json
	resp, body = get(t, sp.base+"/coding_assistant_caps.json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/coding_assistant_caps.json %d %s", resp.StatusCode, string(body))
	}
	var caps struct {
		RunningModels              []string `json:"running_models"`
		CodeCompletionDefaultModel string   `json:"code_completion_default_model"`
		CodeChatDefaultModel       string   `json:"code_chat_default_model"`
	}
	if err := json.Unmarshal(body, &caps); err != nil {
		t.Fatalf("caps json: %v body=%s", err, string(body))
	}
	if len(caps.RunningModels) != 2 {
		t.Fatalf("running models=%v", caps.RunningModels)
	}
	if caps.CodeCompletionDefaultModel != "test/fim-model" || caps.CodeChatDefaultModel != "test/chat-model" {
		t.Fatalf("defaults=%+v", caps)
	}

	// /v1/login
	resp, body = get(t, sp.base+"/v1/login")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/v1/login %d %s", resp.StatusCode, string(body))
	}
	var login struct {
		Account string `json:"account"`
		Retcode string `json:"retcode"`
	}
	if err := json.Unmarshal(body, &login); err != nil {
		t.Fatalf("login json: %v", err)
	}
	if login.Account != "self-hosted" || login.Retcode != "OK" {
		t.Fatalf("login=%+v", login)
	}

	// /v1/secret-key-activate
	resp, body = get(t, sp.base+"/v1/secret-key-activate")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/v1/secret-key-activate %d %s", resp.StatusCode, string(body))
	}

	// /v1/models maps an unreachable backend to 401
	resp, body = get(t, sp.base+"/v1/models")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("/v1/models %d %s", resp.StatusCode, string(body))
	}

	// /metrics
	resp, body = get(t, sp.base+"/metrics")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "codegw_") {
		t.Fatalf("/metrics %d", resp.StatusCode)
	}
}

func TestBlackbox_Completions_Validation(t *testing.T) {
	bin := buildBinary(t)
	cfgPath := writeConfig(t)
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, cfgPath, port)

	// Missing prompt
	resp, body := postJSON(t, sp.base+"/v1/completions", []byte(`{"model":"test/fim-model"}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing prompt: %d %s", resp.StatusCode, string(body))
	}

	// Unknown model carries a detail plus caps version
	resp, body = postJSON(t, sp.base+"/v1/completions", []byte(`{"prompt":"x","model":"nope"}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown model: %d %s", resp.StatusCode, string(body))
	}
	var detail struct {
		Detail      string `json:"detail"`
		CapsVersion int64  `json:"caps_version"`
	}
	if err := json.Unmarshal(body, &detail); err != nil {
		t.Fatalf("detail json: %v", err)
	}
	if !strings.Contains(detail.Detail, "nope") || detail.CapsVersion == 0 {
		t.Fatalf("detail=%+v", detail)
	}
}

func TestBlackbox_Completions_Timeout(t *testing.T) {
	bin := buildBinary(t)
	cfgPath := writeConfig(t)
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, cfgPath, port)

	// Nothing consumes the queue, so the 1s stream timeout fires and
	// the stream ends with a well-formed error frame plus [DONE].
	resp, body := postJSON(t, sp.base+"/v1/completions", []byte(`{"prompt":"x","stream":true}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"timeout"`) || !strings.Contains(string(body), "data: [DONE]") {
		t.Fatalf("body=%q", string(body))
	}
}
