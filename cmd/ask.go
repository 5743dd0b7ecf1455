package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"research-assistant/internal/models"
	"research-assistant/internal/session"
)

func askCMD(a *app) *cobra.Command {
	var (
		filePath string
		query    string
		apiKey   string
	)
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Answer one question about a document and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", filePath, err)
			}

			sess, err := session.New(a.cfg, session.OpenAIProviders(a.cfg.Provider))
			if err != nil {
				return err
			}

			ctx := context.Background()
			if err := sess.Upload(ctx, keyOrConfig(apiKey, a), filepath.Base(filePath), data); err != nil {
				return fmt.Errorf("%s: %w", models.UserMessage(err), err)
			}
			if err := sess.SelectMode(ctx, session.ModeAsk); err != nil {
				return err
			}
			answer, err := sess.Ask(ctx, query)
			if err != nil {
				return fmt.Errorf("%s: %w", models.UserMessage(err), err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, answer.Content)
			if top, ok := answer.Citation(); ok {
				fmt.Fprintf(out, "\nSource: page %s\n%s\n", top.Segment.PageLabel(), top.Segment.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "path to the document (PDF or TXT)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "question to answer")
	cmd.Flags().StringVar(&apiKey, "key", "", "OpenAI API key (default OPENAI_API_KEY)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}
