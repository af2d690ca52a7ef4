// Package cli wires the benchmark commands. The commands are thin: all the
// engineering lives in the internal packages they assemble.
package cli

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fanbench/fanbench/internal/config"
)

var version = "0.1.0"

var (
	cfgFile string
	verbose bool

	// cfg is loaded once in the persistent pre-run and shared by all
	// subcommands.
	cfg *config.Config
)

// RootCmd is the base command.
var RootCmd = &cobra.Command{
	Use:     "fanbench",
	Short:   "Benchmark bounded worker pools against cheap per-task goroutines",
	Version: version,
	Long: `Fanbench exercises two strategies for running many concurrent, I/O-bound
fan-out sub-tasks per unit of work - a bounded worker pool and cheap
per-task goroutines - and reports throughput, error rates and latency
percentiles for each.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		if verbose {
			log.SetLevel(log.DebugLevel)
		} else {
			log.SetLevel(log.WarnLevel)
		}

		if cfgFile == "" {
			cfg = config.Default()
			return nil
		}
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	RootCmd.AddCommand(checkCmd)
	RootCmd.AddCommand(benchCmd)
	RootCmd.AddCommand(loadtestCmd)
}
