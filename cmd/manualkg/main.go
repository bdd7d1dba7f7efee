// Command manualkg extracts knowledge-graph triplets from parsed appliance
// manuals and answers questions about them.
//
//	manualkg ingest  [--dry-run|--publish] FILE|DIR...
//	manualkg consume
//	manualkg serve
//	manualkg ask --model M --product P --section S QUESTION
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		envFile string
		a       *app
	)
	root := &cobra.Command{
		Use:          "manualkg",
		Short:        "Appliance manual knowledge graph",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.level()}))
			slog.SetDefault(logger)
			*a = *newApp(cfg, logger)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}
	a = &app{}
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(
		newIngestCmd(a),
		newConsumeCmd(a),
		newServeCmd(a),
		newAskCmd(a),
	)
	return root
}
