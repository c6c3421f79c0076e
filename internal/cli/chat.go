package cli

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/shreyachakravarty07/AgentTrace/internal/log"
	"github.com/shreyachakravarty07/AgentTrace/pkg/analysis"
	"github.com/shreyachakravarty07/AgentTrace/pkg/conversation"
	"github.com/shreyachakravarty07/AgentTrace/pkg/export"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
	"github.com/spf13/cobra"
)

const chatHelp = `Commands:
  /history            list the turns so far
  /replay N [text]    regenerate turn N, appending text to its prompt
  /suggest N          analyse turn N and suggest a prompt improvement
  /export PATH        write the session to a JSON file
  /reset              clear the history
  /quit               leave the chat
Anything else is sent to the model as a new turn.
`

// modelFlags registers --model and --max-length, defaulting to the
// conversation settings once the config is loaded.
func modelFlags(cmd *cobra.Command, model *string, maxLength *int) {
	cmd.Flags().StringVarP(model, "model", "m", "", "Model name (default conversation.model)")
	cmd.Flags().IntVar(maxLength, "max-length", 0, "Maximum output length (default conversation.max_length)")
}

func (a *App) modelOrDefault(model string, maxLength int) (string, int) {
	if model == "" {
		model = a.cfg.Conversation.Model
	}
	if maxLength <= 0 {
		maxLength = a.cfg.Conversation.MaxLength
	}
	return model, maxLength
}

func (a *App) chatCmd() *cobra.Command {
	var (
		model     string
		maxLength int
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation with a model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, release, err := a.openGenerator()
			if err != nil {
				return err
			}
			defer release()
			model, maxLength = a.modelOrDefault(model, maxLength)
			conv := conversation.New(gen, log.GetLogger(), model, maxLength)
			return a.chatLoop(cmd.Context(), conv)
		},
	}
	modelFlags(cmd, &model, &maxLength)
	return cmd
}

func (a *App) chatLoop(ctx context.Context, conv *conversation.Conversation) error {
	a.printf("Chatting with %s (max length %d). Type /help for commands.\n", conv.Model(), conv.MaxLength())
	scanner := bufio.NewScanner(a.in)
	for {
		a.printf("> ")
		if !scanner.Scan() {
			a.printf("\n")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			response, err := conv.AddTurn(ctx, line)
			if err != nil {
				a.printf("Error: %v\n", err)
				continue
			}
			a.printf("%s\n", response)
			continue
		}

		command, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)
		switch command {
		case "/quit", "/exit":
			return nil
		case "/help":
			a.printf("%s", chatHelp)
		case "/history":
			a.printHistory(conv.History())
		case "/reset":
			conv.Reset()
			a.printf("History cleared.\n")
		case "/replay":
			numStr, modification, _ := strings.Cut(rest, " ")
			index, err := turnIndex(numStr)
			if err != nil {
				a.printf("Error: %v\n", err)
				continue
			}
			response, err := conv.ReplayTurn(ctx, index, strings.TrimSpace(modification))
			if err != nil {
				a.printf("Error: %v\n", err)
				continue
			}
			a.printf("Replayed turn %d:\n%s\n", index+1, response)
		case "/suggest":
			index, err := turnIndex(rest)
			if err != nil {
				a.printf("Error: %v\n", err)
				continue
			}
			turn, err := conv.Turn(index)
			if err != nil {
				a.printf("Error: %v\n", err)
				continue
			}
			a.printAnalysis(turn.Prompt, turn.Response)
		case "/export":
			if rest == "" {
				a.printf("Error: /export needs a file path\n")
				continue
			}
			if err := export.WriteJSON(rest, export.NewSession(conv, time.Now())); err != nil {
				a.printf("Error: %v\n", err)
				continue
			}
			a.printf("Session exported to %s\n", rest)
		default:
			a.printf("Unknown command %s. Type /help for commands.\n", command)
		}
	}
}

// turnIndex converts a 1-based turn number to an index.
func turnIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.Errorf("turn number must be a positive integer, got %q", s)
	}
	return n - 1, nil
}

func (a *App) printHistory(turns []models.Turn) {
	if len(turns) == 0 {
		a.printf("No turns yet.\n")
		return
	}
	for i, turn := range turns {
		a.printf("Turn %d\n  Prompt: %s\n  Response: %s\n", i+1, turn.Prompt, turn.Response)
	}
}

func (a *App) printAnalysis(prompt, response string) {
	m := analysis.Analyze(prompt, response)
	a.printf("Prompt similarity: %.2f\n", m.PromptSimilarity)
	a.printf("Echo flag: %.1f\n", m.EchoFlag)
	a.printf("Repetition score: %.2f\n", m.RepetitionScore)
	a.printf("Suggestion: %s\n", analysis.Suggest(prompt, response))
}

func (a *App) printTrace(trace []models.TokenTrace) {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tTOKEN\tCONFIDENCE")
	for i, t := range trace {
		fmt.Fprintf(w, "%d\t%q\t%.4f\n", i+1, t.Token, t.Confidence)
	}
	_ = w.Flush()
}

func (a *App) traceCmd() *cobra.Command {
	var (
		model     string
		maxLength int
	)
	cmd := &cobra.Command{
		Use:   "trace PROMPT",
		Short: "Generate a response and show the token-level trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, release, err := a.openGenerator()
			if err != nil {
				return err
			}
			defer release()
			model, maxLength = a.modelOrDefault(model, maxLength)
			text, trace, err := conversation.New(gen, log.GetLogger(), model, maxLength).Trace(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printf("%s\n\n", text)
			a.printTrace(trace)
			return nil
		},
	}
	modelFlags(cmd, &model, &maxLength)
	return cmd
}

func (a *App) compareCmd() *cobra.Command {
	var (
		modelA, modelB string
		maxLength      int
	)
	cmd := &cobra.Command{
		Use:   "compare PROMPT",
		Short: "Compare the outputs of two models for the same prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, release, err := a.openGenerator()
			if err != nil {
				return err
			}
			defer release()
			_, maxLength = a.modelOrDefault("", maxLength)

			var outputs [2]string
			for i, model := range []string{modelA, modelB} {
				text, trace, err := gen.GenerateWithTrace(cmd.Context(), model, args[0], maxLength)
				if err != nil {
					return err
				}
				outputs[i] = text
				a.printf("=== %s ===\n%s\n\n", model, text)
				a.printTrace(trace)
				a.printf("\n")
			}
			a.printf("Similarity ratio: %.2f\n", analysis.Similarity(outputs[0], outputs[1]))
			return nil
		},
	}
	cmd.Flags().StringVar(&modelA, "model-a", "", "First model")
	cmd.Flags().StringVar(&modelB, "model-b", "", "Second model")
	cmd.Flags().IntVar(&maxLength, "max-length", 0, "Maximum output length (default conversation.max_length)")
	_ = cmd.MarkFlagRequired("model-a")
	_ = cmd.MarkFlagRequired("model-b")
	return cmd
}

func (a *App) analyzeCmd() *cobra.Command {
	var prompt, response string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Score a response against its prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.printAnalysis(prompt, response)
			return nil
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "Prompt sent to the model")
	cmd.Flags().StringVar(&response, "response", "", "Response produced by the model")
	_ = cmd.MarkFlagRequired("response")
	return cmd
}
