// Package cli implements the safetyctl operator commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tourist-safety-engine/internal/config"
	"tourist-safety-engine/internal/logging"
)

var (
	configPath string
	formatFlag string
	verbose    bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:          "safetyctl",
	Short:        "Operate the tourist safety engine",
	Long:         "Replay recorded movement samples, train anomaly models offline and manage zone definitions.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("SAFETY_CONFIG"), "YAML config file (default: $SAFETY_CONFIG)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log engine activity to stderr")
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// newLogger logs to stderr so command output on stdout stays parseable.
func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := logging.New("debug", "console", "safetyctl")
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
