package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/ruiji/internal/cli"
	"github.com/hyperjump/ruiji/internal/models"
)

func newRecommendCmd(opts *rootOptions) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "recommend [flags] <prompt>",
		Short: "Recommend items for a prompt",
		Long: `Recommend items whose embeddings are most similar to the prompt.

The prompt is all remaining arguments joined by spaces, so quoting is optional.`,
		Example: `  ruiji recommend warm lighting for a reading nook
  ruiji recommend -k 3 --format json "running shoes"
  ruiji recommend --server http://localhost:8080 "gift for a tea lover"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecommend(cmd, opts, buildPrompt(args), k)
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of recommendations (default from config)")
	return cmd
}

// buildPrompt joins all positional args with spaces so multi-word prompts work the same
// with or without shell quoting.
func buildPrompt(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runRecommend(cmd *cobra.Command, opts *rootOptions, prompt string, k int) error {
	format, err := opts.outputFormat()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var response *models.RecommendResponse
	if opts.serverURL != "" {
		response, err = cli.NewClient(opts.serverURL).Recommend(ctx, prompt, k)
		if err != nil {
			return remoteError("recommend", opts.serverURL, err)
		}
	} else {
		cfg, _, logger, err := opts.setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		c, err := initializeComponents(cfg, logger)
		if err != nil {
			return err
		}
		defer c.Close()
		response, err = c.Engine.Recommend(ctx, prompt, k)
		if err != nil {
			return err
		}
	}
	return cli.WriteRecommendations(cmd.OutOrStdout(), response, format)
}
