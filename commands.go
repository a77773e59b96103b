package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// app holds everything a command needs, built once from flags
type app struct {
	config  *Config
	logger  *slog.Logger
	closer  io.Closer
	store   *Store
	history *History
	handler *CommandHandler
}

func newApp() (*app, error) {
	overrides := &ConfigOverrides{}
	if settingsPath != "" {
		overrides.SettingsPath = &settingsPath
	}
	if modelName != "" {
		overrides.Model = &modelName
	}
	if checkModel != "" {
		overrides.CheckModel = &checkModel
	}
	if dataDir != "" {
		overrides.DataDir = &dataDir
	}

	config, err := NewConfig(overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, closer := newLogger(config.Settings.Log, debugMode)
	store := NewStore(config.Settings.DataDir, config.Settings.Content)
	deps := &Deps{
		Config:    config,
		LLM:       NewRouter(config.Settings.LLM, logger),
		Store:     store,
		Extractor: NewResponseExtractor(),
		Logger:    logger,
	}
	history := NewHistory(store.HistoryPath())
	retry := NewRetryController(config.Settings.Retry, logger)

	return &app{
		config:  config,
		logger:  logger,
		closer:  closer,
		store:   store,
		history: history,
		handler: NewCommandHandler(deps, NewPipelines(deps), retry, history),
	}, nil
}

func (a *app) Close() error {
	return a.closer.Close()
}

func newKindCommand(kind Kind) *cobra.Command {
	var result string

	cmd := &cobra.Command{
		Use:   string(kind),
		Short: fmt.Sprintf("Generate or check %s items", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			opts := RunOptions{Mode: ModeGenerate, Limit: itemLimit, ResultFilter: result}
			if checkOnly {
				opts.Mode = ModeCheckOnly
			}
			if debugMode {
				opts.Limit = 1
			}

			summary, err := a.handler.Run(cmd.Context(), kind, opts)
			if summary != nil {
				printSummary(cmd.OutOrStdout(), summary)
			}
			return err
		},
	}

	if kind.Base() == KindAdventure {
		cmd.Flags().StringVar(&result, "result", "", "Only process adventures with this outcome")
	}
	return cmd
}

func printSummary(w io.Writer, s *RunSummary) {
	glyph := "✓"
	if s.Failed > 0 {
		glyph = "✗"
	}
	fmt.Fprintf(w, "%s %s (%s): %d processed, %d validated, %d rejected, %d failed\n",
		glyph, s.Kind, s.Mode, s.Processed, s.Validated, s.Rejected, s.Failed)
	for _, r := range s.Results {
		if r.Status == StatusFailed {
			fmt.Fprintf(w, "  ✗ %s: %v\n", r.ID, r.Error)
		}
	}
}
