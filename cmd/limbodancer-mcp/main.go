package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/config"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/logs"
)

var (
	version = "dev"

	configFile string
	logLevel   string
	logToFile  bool
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:     "limbodancer-mcp",
		Short:   "Ontology-grounded MCP server",
		Long:    "LimboDancer.MCP exposes history, memory, and knowledge-graph tools\nto AI assistants over stdio or HTTP, scoped by hierarchical tenant identity.",
		Version: version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&logToFile, "log-to-file", false, "also write logs to a rotating file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "shorthand for --log-level debug")

	root.AddCommand(newServeCmd())
	root.AddCommand(newDBCmd())
	root.AddCommand(newVectorCmd())
	root.AddCommand(newKGCmd())
	root.AddCommand(newOntologyCmd())

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// loadConfig merges the config file with the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.LogLevel = logs.LevelDebug
	} else if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logToFile {
		cfg.LogToFile = true
	}
	return cfg, nil
}

// buildLogger builds the zap logger for a command. stdio selects the
// stderr-only mode required when stdout carries JSON-RPC frames.
func buildLogger(cfg *config.Config, stdio bool) (*zap.Logger, error) {
	lc := logs.Default()
	lc.Level = cfg.LogLevel
	lc.EnableFile = cfg.LogToFile
	lc.Stdio = stdio
	logger, err := logs.New(lc)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
