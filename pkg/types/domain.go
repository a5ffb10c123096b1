package types

import "encoding/json"

// Message statuses reported by backend producers. Anything other than
// StatusInProgress is terminal and ends the ticket's streaming loop.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Choice is one generation alternative inside a backend Message.
// Completion backends fill Text, chat backends fill Content; both are
// cumulative from the start of generation, not increments.
type Choice struct {
	Index        int    `json:"index"`
	Text         string `json:"text,omitempty"`
	Content      string `json:"content,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Message is one backend result record delivered on a ticket's
// streaming queue.
type Message struct {
	Status               string   `json:"status"`
	Choices              []Choice `json:"choices,omitempty"`
	HumanReadableMessage string   `json:"human_readable_message,omitempty"`
	GeneratedTokens      int      `json:"generated_tokens_n,omitempty"`
}

// Terminal reports whether the message ends the stream.
func (m Message) Terminal() bool { return m.Status != StatusInProgress }

// StopList accepts either a JSON string or a JSON array of strings, the
// way clients actually send the "stop" parameter.
type StopList []string

func (s *StopList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one == "" {
			*s = nil
		} else {
			*s = StopList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = StopList(many)
	return nil
}
