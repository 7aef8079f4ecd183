package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	grounding "github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
)

// CLI holds state shared by every subcommand.
type CLI struct {
	configPath string
	envFile    string
	logLevel   string

	config *config.Config
}

// NewRootCommand creates the root cobra command
func NewRootCommand() *cobra.Command {
	cli := &CLI{}

	cmd := &cobra.Command{
		Use:           "groundctl",
		Short:         "Statutory grounding engine",
		Long:          `Retrieve statutory evidence for contract clauses and serve it over MCP or HTTP`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cli.initialize()
		},
	}

	cmd.PersistentFlags().StringVarP(&cli.configPath, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().StringVar(&cli.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	cmd.PersistentFlags().StringVar(&cli.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	cmd.AddCommand(newServeMCPCommand(cli))
	cmd.AddCommand(newServeHTTPCommand(cli))
	cmd.AddCommand(newRetrieveCommand(cli))
	cmd.AddCommand(newNormalizeCommand(cli))

	return cmd
}

// initialize loads the dotenv file, the configuration and the logger.
// A missing dotenv file is not an error.
func (cli *CLI) initialize() error {
	if cli.envFile != "" {
		if err := godotenv.Load(cli.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return err
	}
	if cli.logLevel != "" {
		cfg.Log.Level = cli.logLevel
	}
	if err := configureLogging(cfg.Log); err != nil {
		return err
	}
	cli.config = cfg
	return nil
}

func configureLogging(cfg config.LogConfig) error {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	if !cfg.JSON {
		return nil
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zapLevel(cfg.Level))
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.DisableStacktrace = true
	l, err := zc.Build()
	if err != nil {
		return err
	}
	logger.Use(l)
	return nil
}

func zapLevel(level string) zapcore.Level {
	switch logger.ParseLevel(level) {
	case logger.LevelDebug:
		return zapcore.DebugLevel
	case logger.LevelWarn:
		return zapcore.WarnLevel
	case logger.LevelError:
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

func (cli *CLI) newClient(ctx context.Context) (*grounding.Client, error) {
	return grounding.NewClient(ctx, cli.config)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
