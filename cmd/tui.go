package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"research-assistant/internal/session"
	"research-assistant/internal/tui"
)

func tuiCMD(a *app) *cobra.Command {
	var (
		filePath string
		apiKey   string
		logFile  string
	)
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Run the terminal UI on a PDF or TXT file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", filePath, err)
			}

			// the screen belongs to the UI, logs go to a file
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			defer f.Close()
			setupLogger(f, a.cfg.LogLevel)

			sess, err := session.New(a.cfg, session.OpenAIProviders(a.cfg.Provider))
			if err != nil {
				return err
			}

			m := tui.New(context.Background(), sess, keyOrConfig(apiKey, a), filepath.Base(filePath), data)
			_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "path to the document (PDF or TXT)")
	cmd.Flags().StringVar(&apiKey, "key", "", "OpenAI API key (default OPENAI_API_KEY)")
	cmd.Flags().StringVar(&logFile, "log-file", "research-assistant.log", "where logs are written while the UI runs")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func keyOrConfig(key string, a *app) string {
	if key != "" {
		return key
	}
	return a.cfg.Provider.APIKey
}
