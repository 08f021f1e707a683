package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mcpsek/guardian/internal/config"
	"github.com/mcpsek/guardian/internal/logging"
)

// cli carries state resolved once in the root pre-run
type cli struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}

	root := &cobra.Command{
		Use:           "guardian",
		Short:         "Discover and security-rank MCP servers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "console", "log format: console or json")
	flags.String("cache-backend", config.BackendMemory, "cache backend: memory, redis, postgres or sqlite")
	flags.String("runs-backend", config.BackendMemory, "run log backend: memory, postgres or sqlite")
	flags.StringSlice("providers", []string{"catalog", "npm", "github", "registry"}, "source providers to query")
	c.bind(root, "log_level", "log-level")
	c.bind(root, "log_format", "log-format")
	c.bind(root, "cache_backend", "cache-backend")
	c.bind(root, "runs_backend", "runs-backend")
	c.bind(root, "providers", "providers")

	root.AddCommand(
		newServeCmd(c),
		newDiscoverCmd(c),
		newPurgeCmd(c),
		newRunsCmd(c),
		newMCPCmd(c),
	)
	return root
}

// bind ties a flag to a config key; the flag wins only when set explicitly
func (c *cli) bind(cmd *cobra.Command, key, flag string) {
	f := cmd.Flags().Lookup(flag)
	if f == nil {
		f = cmd.PersistentFlags().Lookup(flag)
	}
	if f == nil {
		panic(fmt.Sprintf("flag %q not found", flag))
	}
	if err := c.v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}

func (c *cli) load() error {
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", c.cfgFile, err)
		}
	}

	cfg, err := config.FromViper(c.v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	c.cfg = cfg
	c.logger = logger
	return nil
}
