package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CihadCengiz/prompt-generator/internal/app"
	"github.com/CihadCengiz/prompt-generator/internal/config"
)

// cli carries the flags shared by every subcommand.
type cli struct {
	configPath string
	logLevel   string
}

func main() {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           "promptgen",
		Short:         "Embed a repository into a vector index and retrieve context for prompts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "", "Config file path (YAML, optional)")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(
		c.ingestCmd(),
		c.deleteCommitCmd(),
		c.deleteFilesCmd(),
		c.queryCmd(),
		c.serveCmd(),
		c.watchCmd(),
		c.mcpCmd(),
		c.syncCmd(),
		c.auditCmd(),
		c.lineageCmd(),
		providersCmd(),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and installs the default logger. Logs always
// go to stderr so stdout stays free for command output and the MCP stream.
func (c *cli) loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// build loads configuration and wires the pipeline. Callers must Close the app.
func (c *cli) build(ctx context.Context) (*app.App, error) {
	cfg, logger, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, logger)
}

func closeApp(a *app.App) {
	if err := a.Close(context.Background()); err != nil {
		a.Logger.Warn("close failed", "error", err)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "promptgen", app.Version)
		},
	}
}
