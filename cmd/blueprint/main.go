// Package main is the blueprint CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/blueprint/internal/config"
	"github.com/hyperjump/blueprint/pkg/utils"
)

var version = "dev"

const systemConfigPath = "/usr/local/etc/blueprint/config.yaml"

// app carries the state shared by every subcommand once the root pre-run has loaded it.
type app struct {
	configPath string
	debug      bool

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "blueprint",
		Short: "Ask questions about architectural drawing sets",
		Long: `blueprint indexes construction drawing sets (PDF sheets and text exports)
into isolated namespaces and answers questions about them with cited sources.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default ./config.yaml, then "+systemConfigPath+")")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServerCmd(a),
		newIngestCmd(a),
		newAskCmd(a),
		newStatusCmd(a),
		newDeleteNamespaceCmd(a),
		newWatchCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	cfg, path, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg
	a.logger, err = utils.NewLogger(a.debug || cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	if path != "" {
		a.logger.Debug("config loaded", zap.String("path", path))
	} else {
		a.logger.Debug("no config file found, using defaults")
	}
	return nil
}

// loadConfig loads config from path. With no explicit path it looks for config.yaml in the
// current directory, then the system config, and otherwise falls back to built-in defaults.
// Returns the config and the path that was actually loaded, empty for defaults.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}
	candidates := []string{systemConfigPath}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append([]string{filepath.Join(cwd, "config.yaml")}, candidates...)
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		cfg, err := config.Load(candidate)
		if err != nil {
			return nil, "", err
		}
		return cfg, candidate, nil
	}
	return config.Default(), "", nil
}

// buildQuery joins positional arguments into one question.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
