// Command shodobot runs the ShodoBot conversational backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xcro3dile/shodobot-go/internal/config"
	"github.com/0xcro3dile/shodobot-go/internal/logging"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "shodobot",
	Short: "ShodoBot - French-speaking assistant over Notion and local documents",
	Long: `ShodoBot answers chat messages with an LLM, optionally enriched with
results from a Notion workspace and a LEANN document index.

Run "shodobot serve" for the HTTP API, "shodobot mcp" for an MCP stdio
server, or "shodobot chat" for a terminal conversation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, err = logging.New(cfg.Logging, verbose)
		if err != nil {
			return err
		}
		logger.Debug("configuration loaded",
			zap.String("env", cfg.Env),
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", cfg.LLM.Model),
			zap.Bool("notion", cfg.Notion.Enabled),
			zap.Bool("leann", cfg.Leann.Enabled))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "shodobot.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd, mcpCmd, askCmd, chatCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
