package main

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"research-assistant/internal/config"
)

const configFilePath = "./configs/config.yaml"

// app carries what every sub command needs once the root has run
type app struct {
	configPath string
	cfg        *config.Config
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:           "research-assistant",
		Short:         "Summarize a document, answer questions about it and quiz the reader",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			setupLogger(os.Stdout, cfg.LogLevel)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", configFilePath, "path to the yaml config file")

	root.AddCommand(serveCMD(a), tuiCMD(a), askCMD(a))
	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func setupLogger(out io.Writer, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Caller().Logger()
}
