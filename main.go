package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	settingsPath string
	modelName    string
	checkModel   string
	dataDir      string
	checkOnly    bool
	debugMode    bool
	itemLimit    int
)

var rootCmd = &cobra.Command{
	Use:   "logqwest",
	Short: "Generate and validate adventure content with language models",
	Long: `logqwest generates areas, adventures, adventure logs and location labels
with language models, checks every item and keeps the results as flat files.
Each run resumes where the previous one stopped.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&settingsPath, "settings", "", "Path to settings file (default .logqwest/settings.yaml)")
	flags.StringVar(&modelName, "model", "", "Model used for generation")
	flags.StringVar(&checkModel, "check-model", "", "Model used for review (defaults to --model)")
	flags.StringVar(&dataDir, "data-dir", "", "Directory holding generated content")
	flags.BoolVar(&checkOnly, "check-only", false, "Check generated items without generating new ones")
	flags.BoolVar(&debugMode, "debug", false, "Enable debug logging and process a single item")
	flags.IntVar(&itemLimit, "limit", 0, "Maximum number of items to process (0 = no limit)")

	for _, kind := range allKinds {
		rootCmd.AddCommand(newKindCommand(kind))
	}
	rootCmd.AddCommand(newStatusCommand(), newPruneCommand())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
