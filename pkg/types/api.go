package types

// SamplingParams are the generation tunables shared by the completion
// and chat request bodies. Out-of-range values are clamped by the
// gateway, never rejected.
type SamplingParams struct {
	// Maximum number of new tokens to generate.
	// example: 500
	MaxTokens int `json:"max_tokens,omitempty" example:"500"`
	// Sampling temperature (higher = more random).
	// example: 0.2
	Temperature float64 `json:"temperature,omitempty" example:"0.2"`
	// Nucleus sampling probability.
	// example: 1.0
	TopP float64 `json:"top_p,omitempty" example:"1.0"`
	// Top-N sampling: limit candidates to the N most likely tokens.
	// example: 0
	TopN int `json:"top_n,omitempty" example:"0"`
	// Optional stop sequences; accepts a string or an array of strings.
	Stop StopList `json:"stop,omitempty"`
}

// DefaultSamplingParams returns the request-body defaults applied
// before JSON decoding.
func DefaultSamplingParams() SamplingParams {
	return SamplingParams{MaxTokens: 500, Temperature: 0.2, TopP: 1.0}
}

// CompletionRequest is the body of POST /v1/completions.
type CompletionRequest struct {
	SamplingParams
	// Model name, or empty for the configured completion default.
	// example: smallcloudai/Refact-1_6B-fim
	Model string `json:"model"`
	// Prompt text to complete.
	Prompt string `json:"prompt"`
	// Number of choices to generate.
	// example: 1
	N int `json:"n,omitempty" example:"1"`
	// Echo the prompt back in the first choice.
	Echo bool `json:"echo,omitempty"`
	// Stream deltas as server-sent events instead of one JSON document.
	Stream bool `json:"stream,omitempty"`
}

// ChatMessage is one turn of a chat history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /v1/chat and POST /v1/chat/completions.
type ChatRequest struct {
	SamplingParams
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	N        int           `json:"n,omitempty"`
	// Function selects the chat flavor; "chat" unless a client asks
	// for a specialized one.
	Function string `json:"function,omitempty"`
	Stream   bool   `json:"stream,omitempty"`
}

// CapsResponse is the capability/discovery document served at
// GET /coding_assistant_caps.json. Field names are fixed by the IDE
// plugins that consume it.
type CapsResponse struct {
	CloudName                      string            `json:"cloud_name"`
	EndpointTemplate               string            `json:"endpoint_template"`
	EndpointChatPassthrough        string            `json:"endpoint_chat_passthrough"`
	EndpointStyle                  string            `json:"endpoint_style"`
	TelemetryBasicDest             string            `json:"telemetry_basic_dest"`
	TelemetryCorrectedSnippetsDest string            `json:"telemetry_corrected_snippets_dest"`
	RunningModels                  []string          `json:"running_models"`
	CodeCompletionDefaultModel     string            `json:"code_completion_default_model"`
	CodeChatDefaultModel           string            `json:"code_chat_default_model"`
	TokenizerPathTemplate          string            `json:"tokenizer_path_template"`
	TokenizerRewritePath           map[string]string `json:"tokenizer_rewrite_path"`
	// Monotonically-changing token; clients refresh caps when it moves.
	CapsVersion int64 `json:"caps_version"`
}

// ModelItem is one entry of the GET /v1/models listing.
type ModelItem struct {
	ID         string  `json:"id"`
	Root       string  `json:"root"`
	Object     string  `json:"object"`
	Created    int64   `json:"created"`
	OwnedBy    string  `json:"owned_by"`
	Permission []any   `json:"permission"`
	Parent     *string `json:"parent"`
	Completion bool    `json:"completion"`
	Chat       bool    `json:"chat"`
}

// ModelsResponse wraps the model listing.
type ModelsResponse struct {
	Object string      `json:"object"`
	Data   []ModelItem `json:"data"`
}

// LongthinkFunction describes one feature entry of the login document.
type LongthinkFunction struct {
	FunctionName string `json:"function_name"`
	Model        string `json:"model"`
	IsLiked      bool   `json:"is_liked"`
	Likes        int    `json:"likes"`
	ThirdParty   bool   `json:"third_party"`
}

// LoginResponse is the account/feature document of GET /v1/login.
type LoginResponse struct {
	Account                 string                       `json:"account"`
	Retcode                 string                       `json:"retcode"`
	LongthinkFunctionsToday int                          `json:"longthink-functions-today"`
	LongthinkFunctions      map[string]LongthinkFunction `json:"longthink-functions-today-v2"`
	LongthinkFilters        []string                     `json:"longthink-filters"`
	ChatV1Style             int                          `json:"chat-v1-style"`
}

// RetcodeResponse is a minimal OK/message document.
type RetcodeResponse struct {
	Retcode              string `json:"retcode"`
	HumanReadableMessage string `json:"human_readable_message,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// ErrorDetail is the 400 payload of the completion endpoints.
type ErrorDetail struct {
	// Human-readable reason.
	// example: model "x" is not loaded
	Detail string `json:"detail"`
	// Caps version at the time of failure so clients know to refresh.
	CapsVersion int64 `json:"caps_version,omitempty"`
}
