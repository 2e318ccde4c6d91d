package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"lazkit/internal/inference"
	"lazkit/internal/twin"
	"lazkit/internal/usage"
)

var (
	inferNode   string
	inferFileID string
	inferModel  string
	inferSystem string
	inferStream bool
	inferRender bool

	twinCharacter string
	twinBaseURL   string
	twinModel     string
	twinNode      string
)

var inferCmd = &cobra.Command{
	Use:   "infer [prompt]",
	Short: "Prompt an iDAO inference node with settlement-signed headers",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInfer,
}

var twinCmd = &cobra.Command{
	Use:   "twin",
	Short: "Chat with a digital twin built from a character file",
	Long: `Loads an eliza-style character.json, renders it into a system preamble and
starts a terminal conversation. With --base-url (or inference.base_url) the
twin talks to any OpenAI-compatible provider directly; otherwise it goes
through the configured iDAO inference node.`,
	RunE: runTwin,
}

func init() {
	inferCmd.Flags().StringVar(&inferNode, "node", "", "Inference node address (default: inference.node)")
	inferCmd.Flags().StringVar(&inferFileID, "file-id", "", "Data file the inference is about")
	inferCmd.Flags().StringVar(&inferModel, "model", "", "Model override")
	inferCmd.Flags().StringVar(&inferSystem, "system", "", "System preamble")
	inferCmd.Flags().BoolVar(&inferStream, "stream", false, "Stream the answer as it is generated")
	inferCmd.Flags().BoolVar(&inferRender, "render", false, "Render the answer as terminal markdown")

	twinCmd.Flags().StringVar(&twinCharacter, "character", "character.json", "Path to the character file")
	twinCmd.Flags().StringVar(&twinBaseURL, "base-url", "", "OpenAI-compatible base URL (skips the iDAO node)")
	twinCmd.Flags().StringVar(&twinModel, "model", "", "Model override")
	twinCmd.Flags().StringVar(&twinNode, "node", "", "Inference node address (default: inference.node)")
}

func runInfer(cmd *cobra.Command, args []string) error {
	node, err := nodeAddress(inferNode, cfg.Inference.Node, "inference")
	if err != nil {
		return err
	}
	fileID, err := parseFileID(inferFileID)
	if err != nil {
		return err
	}
	if inferModel != "" {
		cfg.Inference.Model = inferModel
	}

	ctx, cancel := commandContext()
	defer cancel()
	ctx = usage.WithOperation(ctx, "infer")

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	agent, err := e.inferer().RecordedAgent(ctx, node, fileID, inferSystem)
	if err != nil {
		return err
	}

	prompt := strings.Join(args, " ")
	out := cmd.OutOrStdout()
	if inferStream {
		_, err := agent.PromptStream(ctx, prompt, func(delta string) {
			fmt.Fprint(out, delta)
		})
		fmt.Fprintln(out)
		return err
	}
	answer, err := agent.Prompt(ctx, prompt)
	if err != nil {
		return err
	}
	if inferRender {
		answer = renderMarkdown(answer)
	}
	fmt.Fprintln(out, answer)
	return nil
}

// renderMarkdown formats text for the terminal, returning it unchanged when
// rendering fails.
func renderMarkdown(text string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func runTwin(cmd *cobra.Command, args []string) error {
	character, err := twin.LoadCharacter(twinCharacter)
	if err != nil {
		return err
	}
	if twinModel != "" {
		cfg.Inference.Model = twinModel
	}

	ctx, cancel := interactiveContext()
	defer cancel()
	ctx = usage.WithOperation(ctx, "twin")

	agent, closeAgent, err := twinAgent(ctx, twin.Preamble(character))
	if err != nil {
		return err
	}
	defer closeAgent()

	s := &twin.Session{
		Name:  character.Name,
		Agent: agent,
		In:    cmd.InOrStdin(),
		Out:   cmd.OutOrStdout(),
	}
	turns, err := s.Run(ctx)
	logger.Debug(fmt.Sprintf("Twin session ended after %d turns", turns))
	return err
}

// twinAgent talks to a provider directly when --base-url is given (or
// inference.base_url is set with no node), and otherwise goes through the
// iDAO inference node. --node always selects the node.
func twinAgent(ctx context.Context, preamble string) (twin.Prompter, func(), error) {
	direct := twinNode == "" &&
		(twinBaseURL != "" || (cfg.Inference.BaseURL != "" && cfg.Inference.Node == ""))
	if direct {
		if twinBaseURL != "" {
			cfg.Inference.BaseURL = twinBaseURL
		}
		return inference.NewAgent(inference.NewClient(inferenceConfig()), preamble), func() {}, nil
	}

	node, err := nodeAddress(twinNode, cfg.Inference.Node, "inference")
	if err != nil {
		return nil, nil, err
	}
	e, err := openEnv(ctx)
	if err != nil {
		return nil, nil, err
	}
	agent, err := e.inferer().RecordedAgent(ctx, node, nil, preamble)
	if err != nil {
		e.Close()
		return nil, nil, err
	}
	return agent, e.Close, nil
}
