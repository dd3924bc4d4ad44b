package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/recipeimport/internal/config"
	"github.com/jo-hoe/recipeimport/internal/logging"
)

type commandContext struct {
	configFlag *string

	once   sync.Once
	config *config.Config
	logger *slog.Logger
	err    error
}

// ensure loads configuration and the root logger once. With allowDefault,
// a missing default config file is not an error and built-in defaults apply.
func (c *commandContext) ensure(allowDefault bool) (*config.Config, *slog.Logger, error) {
	c.once.Do(func() {
		path := strings.TrimSpace(*c.configFlag)
		cfg, err := config.Load(path)
		if err != nil && allowDefault && path == "" && errors.Is(err, fs.ErrNotExist) {
			cfg, err = config.Default(), nil
		}
		if err != nil {
			c.err = err
			return
		}
		logger, err := logging.New(cfg.Server.LogLevel, cfg.Server.LogFormat, os.Stderr)
		if err != nil {
			c.err = err
			return
		}
		slog.SetDefault(logger)
		c.config, c.logger = cfg, logger
	})
	return c.config, c.logger, c.err
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "recipeimport",
		Short:         "Recipe import and extraction service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newExtractCommand(ctx))
	rootCmd.AddCommand(newClassifyCommand())
	return rootCmd
}
