package httpapi

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"codegw/internal/gateway"
	"codegw/pkg/types"
)

// modelNameRe bounds what a client may put in the model field before
// it reaches the resolver.
var modelNameRe = regexp.MustCompile(`^[a-zA-Z0-9/_\.\-]+$`)

// decodeBody decodes a size-capped JSON request body into dst.
func (s *server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// handleCaps serves the discovery document IDE plugins poll to learn
// models, defaults and endpoints.
//
// @Summary      Capability document
// @Produce      json
// @Success      200 {object} types.CapsResponse
// @Router       /coding_assistant_caps.json [get]
func (s *server) handleCaps(w http.ResponseWriter, r *http.Request) {
	running := s.gw.Queue.ModelsAvailable(true)
	res := s.gw.Resolver()
	completionDefault, _ := res.DefaultFor(gateway.PurposeCompletion)

	chatDefault := ""
	for _, m := range running {
		if rec, ok := s.models.Record(m); ok && rec.HasCap("chat") {
			chatDefault = m
			break
		}
	}
	if chatDefault == "" {
		if cloud := s.proxy.CloudModels(); len(cloud) > 0 {
			chatDefault = cloud[0]
		}
	}

	rewrite := map[string]string{}
	for _, rec := range s.models.Records() {
		if rec.ModelPath != "" {
			rewrite[rec.Name] = rec.ModelPath
		}
	}

	caps := types.CapsResponse{
		CloudName:                      "Refact Self-Hosted",
		EndpointTemplate:               "/v1/completions",
		EndpointChatPassthrough:        "/v1/chat/completions",
		EndpointStyle:                  "openai",
		TelemetryBasicDest:             "/stats/telemetry-basic",
		TelemetryCorrectedSnippetsDest: "/stats/telemetry-snippets",
		RunningModels:                  append(running, s.proxy.CloudModels()...),
		CodeCompletionDefaultModel:     completionDefault,
		CodeChatDefaultModel:           chatDefault,
		TokenizerPathTemplate:          "/tokenizer/$MODEL",
		TokenizerRewritePath:           rewrite,
		CapsVersion:                    s.models.CapsVersion(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(caps)
}

// handleCompletions admits a code-completion request and streams (or
// collects) the generated deltas back.
//
// @Summary      Code completion
// @Accept       json
// @Produce      json
// @Param        request body types.CompletionRequest true "Completion request"
// @Success      200 {object} map[string]any
// @Failure      400 {object} types.ErrorDetail
// @Router       /v1/completions [post]
func (s *server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	req := types.CompletionRequest{SamplingParams: types.DefaultSamplingParams(), N: 1}
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if req.Model != "" && !modelNameRe.MatchString(req.Model) {
		writeJSONError(w, http.StatusBadRequest, "model name contains invalid characters")
		return
	}

	capsVersion := s.models.CapsVersion()
	model, errMsg := s.gw.Resolver().Resolve(req.Model, gateway.PurposeCompletion)
	if errMsg != "" {
		writeResolveError(w, errMsg, capsVersion)
		return
	}

	params := gateway.Normalize(req.SamplingParams)
	t := gateway.NewTicket("comp-")
	gateway.BuildCompletionCall(t, req, model, "user", params)
	s.gw.Admit(t, model, gateway.KindCompletion)

	if req.Stream {
		setSSEHeaders(w)
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	st := s.gw.CompletionStreamer(t, req.N, req.Stream, capsVersion)
	st.Run(r.Context(), w, flusherFor(w))
}

// handleChat admits a chat request against a locally loaded model and
// streams role/delta chunks back.
//
// @Summary      Chat with a loaded model
// @Accept       json
// @Produce      text/event-stream
// @Param        request body types.ChatRequest true "Chat request"
// @Failure      400 {object} types.ErrorDetail
// @Router       /v1/chat [post]
func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	req := types.ChatRequest{SamplingParams: types.DefaultSamplingParams(), N: 1}
	if !s.decodeBody(w, r, &req) {
		return
	}

	capsVersion := s.models.CapsVersion()
	model, errMsg := s.gw.Resolver().Resolve(req.Model, gateway.PurposeChat)
	if errMsg != "" {
		writeResolveError(w, errMsg, capsVersion)
		return
	}

	messages, err := gateway.LimitChatHistory(req.Messages)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "messages are required")
		return
	}
	if len(messages) == 0 {
		// The newest message alone blows the character bound; answer
		// in-band so the plugin shows it like any other reply.
		setSSEHeaders(w)
		gateway.WriteStaticChatError(w, flusherFor(w),
			"Your message is too large, the model cannot process it. Try to make it shorter.")
		return
	}

	params := gateway.Normalize(req.SamplingParams)
	t := gateway.NewTicket("chat-")
	gateway.BuildChatCall(t, messages, model, "user", req.Function, params)
	s.gw.Admit(t, model, gateway.KindChat)

	setSSEHeaders(w)
	st := s.gw.ChatStreamer(t)
	st.Run(r.Context(), w, flusherFor(w))
}

// handleModels lists the models the local inference backend reports.
//
// @Summary      List models
// @Produce      json
// @Success      200 {object} types.ModelsResponse
// @Failure      401 {object} types.ErrorResponse
// @Router       /v1/models [get]
func (s *server) handleModels(w http.ResponseWriter, r *http.Request) {
	items, err := s.proxy.Models(r.Context())
	if err != nil {
		s.log.Warn().Err(err).Msg("model listing failed")
		writeJSONError(w, http.StatusUnauthorized, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(types.ModelsResponse{Object: "list", Data: items})
}

// handleChatCompletions proxies an OpenAI-style chat request to the
// cloud provider or the local inference backend, depending on the
// model. After the stream starts all failures are reported in-band.
//
// @Summary      OpenAI-compatible chat passthrough
// @Accept       json
// @Produce      text/event-stream
// @Param        request body types.ChatRequest true "Chat request"
// @Failure      400 {object} types.ErrorResponse
// @Router       /v1/chat/completions [post]
func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	req := types.ChatRequest{SamplingParams: types.DefaultSamplingParams()}
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeJSONError(w, http.StatusBadRequest, "messages are required")
		return
	}

	params := gateway.Normalize(req.SamplingParams)
	setSSEHeaders(w)
	s.proxy.Stream(r, req, params, w, flusherFor(w))
}

// handleLogin serves the account/feature document. Self-hosted has no
// accounts, so the interesting part is the per-model feature list.
//
// @Summary      Login document
// @Produce      json
// @Success      200 {object} types.LoginResponse
// @Router       /v1/login [get]
func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	functions := map[string]types.LongthinkFunction{}
	var filters []string
	for _, rec := range s.models.Records() {
		if !rec.HasCap("chat") {
			continue
		}
		key := "chat-" + strings.ReplaceAll(rec.Name, "/", "-")
		functions[key] = types.LongthinkFunction{
			FunctionName: "chat",
			Model:        rec.Name,
			ThirdParty:   rec.ThirdParty,
		}
		if !strings.Contains(rec.Name, "/") {
			filters = append(filters, rec.Name)
		}
	}
	doc := types.LoginResponse{
		Account:            "self-hosted",
		Retcode:            "OK",
		LongthinkFunctions: functions,
		LongthinkFilters:   filters,
		ChatV1Style:        1,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

// handleSecretKeyActivate always succeeds: a self-hosted install has
// no keys to verify, but plugins call it during setup.
//
// @Summary      Activate secret key
// @Produce      json
// @Success      200 {object} types.RetcodeResponse
// @Router       /v1/secret-key-activate [get]
func (s *server) handleSecretKeyActivate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(types.RetcodeResponse{
		Retcode:              "OK",
		HumanReadableMessage: "API key verified",
	})
}
