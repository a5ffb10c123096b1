// Package proxy forwards chat-completion requests directly to either
// the cloud provider or the local inference backend, re-framing each
// source stream into the gateway's event-stream format. It is a plain
// proxy: no ticket, no queue admission.
package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"codegw/internal/gateway"
	"codegw/pkg/types"
)

// Config holds the two backend endpoints and the cloud model set.
type Config struct {
	// CloudEnabled gates the cloud path entirely.
	CloudEnabled bool
	// CloudBaseURL is the OpenAI-compatible provider root, e.g.
	// "https://api.openai.com/v1".
	CloudBaseURL string
	CloudAPIKey  string
	// CloudModels is the provider's known model set; a request for a
	// model in this list takes the cloud path.
	CloudModels []string
	// LocalBaseURL is the local inference backend root, e.g.
	// "http://127.0.0.1:8001".
	LocalBaseURL string
}

// Proxy implements the dual-backend chat forwarding.
type Proxy struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
}

var proxyRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "codegw",
		Subsystem: "proxy",
		Name:      "requests_total",
		Help:      "Chat passthrough requests by backend and outcome",
	},
	[]string{"backend", "outcome"},
)

func init() {
	prometheus.MustRegister(proxyRequestsTotal)
}

// New builds a Proxy. The shared client has no overall timeout: chat
// streams are long-lived and cancellation comes from the request
// context; only the dial is bounded.
func New(cfg Config, log zerolog.Logger) *Proxy {
	tr := &http.Transport{
		Dial: (&net.Dialer{
			Timeout: 2 * time.Second,
		}).Dial,
		TLSHandshakeTimeout: 2 * time.Second,
	}
	return &Proxy{
		cfg:    cfg,
		client: &http.Client{Transport: tr},
		log:    log,
	}
}

// IsCloudModel reports whether model belongs to the provider's set.
func (p *Proxy) IsCloudModel(model string) bool {
	if !p.cfg.CloudEnabled {
		return false
	}
	for _, m := range p.cfg.CloudModels {
		if m == model {
			return true
		}
	}
	return false
}

// CloudModels lists the configured provider models.
func (p *Proxy) CloudModels() []string {
	if !p.cfg.CloudEnabled {
		return nil
	}
	return append([]string(nil), p.cfg.CloudModels...)
}

// Stream forwards a chat-completion request to whichever backend owns
// the model and copies re-framed chunks to w. Failures become a single
// in-band error frame; the HTTP response always completes normally.
func (p *Proxy) Stream(r *http.Request, req types.ChatRequest, params gateway.NormalizedParams, w io.Writer, flush func()) {
	if p.IsCloudModel(req.Model) {
		p.streamCloud(r.Context(), req, params, w, flush)
		return
	}
	p.streamLocal(r.Context(), req, params, w, flush)
}

func writeFrame(w io.Writer, flush func(), v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
		return err
	}
	if flush != nil {
		flush()
	}
	return nil
}

func writeRawFrame(w io.Writer, flush func(), b []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
		return err
	}
	if flush != nil {
		flush()
	}
	return nil
}

func writeDone(w io.Writer, flush func()) {
	io.WriteString(w, "data: [DONE]\n\n")
	if flush != nil {
		flush()
	}
}

// writeErrorFrame emits the single in-band error object that terminates
// a failed passthrough stream.
func writeErrorFrame(w io.Writer, flush func(), msg string) {
	writeFrame(w, flush, map[string]string{"error": msg})
}
