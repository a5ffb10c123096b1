package gwctl

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"codegw/pkg/types"
)

// Execute parses args and runs the matching command.
func Execute(args []string) error {
	root := buildRootCmd()
	root.SetArgs(args)
	return root.Execute()
}

func buildRootCmd() *cobra.Command {
	server := "http://127.0.0.1:8008"
	if v := os.Getenv("CODEGW_SERVER"); v != "" {
		server = v
	}

	root := &cobra.Command{
		Use:           "gwctl",
		Short:         "Command-line client for the codegw gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&server, "server", server, "Gateway base URL (defaults CODEGW_SERVER)")

	capsCmd := &cobra.Command{
		Use:   "caps",
		Short: "Print the capability document",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()
			var caps types.CapsResponse
			if err := NewClient(server).getJSON(ctx, "/coding_assistant_caps.json", &caps); err != nil {
				return err
			}
			return printJSON(cmd, caps)
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List models known to the inference backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()
			var list types.ModelsResponse
			if err := NewClient(server).getJSON(ctx, "/v1/models", &list); err != nil {
				return err
			}
			for _, m := range list.Data {
				caps := ""
				if m.Completion {
					caps += " completion"
				}
				if m.Chat {
					caps += " chat"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", m.ID, caps)
			}
			return nil
		},
	}

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Print the account/feature document",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()
			var doc types.LoginResponse
			if err := NewClient(server).getJSON(ctx, "/v1/login", &doc); err != nil {
				return err
			}
			return printJSON(cmd, doc)
		},
	}

	var completeModel string
	var completeMaxTokens int
	var completeStream bool
	completeCmd := &cobra.Command{
		Use:   "complete <prompt>",
		Short: "Request a code completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()
			body := types.CompletionRequest{
				SamplingParams: types.SamplingParams{MaxTokens: completeMaxTokens},
				Model:          completeModel,
				Prompt:         args[0],
				Stream:         completeStream,
			}
			c := NewClient(server)
			if !completeStream {
				var doc map[string]any
				if err := c.postJSON(ctx, "/v1/completions", body, &doc); err != nil {
					return err
				}
				return printJSON(cmd, doc)
			}
			return c.postStream(ctx, "/v1/completions", body, func(payload []byte) error {
				var frame struct {
					Choices []struct {
						Text string `json:"text"`
					} `json:"choices"`
				}
				if err := json.Unmarshal(payload, &frame); err != nil {
					return err
				}
				if len(frame.Choices) > 0 {
					fmt.Fprint(cmd.OutOrStdout(), frame.Choices[0].Text)
				}
				return nil
			})
		},
	}
	completeCmd.Flags().StringVar(&completeModel, "model", "", "Model name (empty for the server default)")
	completeCmd.Flags().IntVar(&completeMaxTokens, "max-tokens", 50, "Maximum tokens to generate")
	completeCmd.Flags().BoolVar(&completeStream, "stream", true, "Stream deltas as they arrive")

	var chatModel string
	chatCmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Chat with a loaded model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()
			body := types.ChatRequest{
				Model:    chatModel,
				Messages: []types.ChatMessage{{Role: "user", Content: args[0]}},
			}
			err := NewClient(server).postStream(ctx, "/v1/chat", body, func(payload []byte) error {
				var frame struct {
					Delta   string `json:"delta"`
					Choices []struct {
						Delta string `json:"delta"`
					} `json:"choices"`
				}
				if err := json.Unmarshal(payload, &frame); err != nil {
					return err
				}
				// Regular chunks carry the delta per choice; the static
				// error chunk carries it at the top level.
				if len(frame.Choices) > 0 {
					fmt.Fprint(cmd.OutOrStdout(), frame.Choices[0].Delta)
				} else {
					fmt.Fprint(cmd.OutOrStdout(), frame.Delta)
				}
				return nil
			})
			fmt.Fprintln(cmd.OutOrStdout())
			return err
		},
	}
	chatCmd.Flags().StringVar(&chatModel, "model", "", "Model name (empty for the server default)")

	root.AddCommand(capsCmd, modelsCmd, loginCmd, completeCmd, chatCmd)
	return root
}

func printJSON(cmd *cobra.Command, v any) error {
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), buf.String())
	return nil
}
