// Package cli provides the openet command line interface
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openet/core/pkg/config"
	"github.com/openet/core/pkg/interfaces"
	"github.com/openet/core/pkg/logger"
	"github.com/openet/core/pkg/types"
)

// EnvPrefix prefixes environment overrides, e.g. OPENET_STORAGE_BUCKET
const EnvPrefix = "OPENET"

// ErrNoConfig is returned when a command needs a config file and none was found
var ErrNoConfig = errors.New("no openet config found, run 'openet init' first")

// envOverrides are the config keys that may be set from the environment
var envOverrides = []string{
	"storage.kind",
	"storage.root",
	"storage.endpoint",
	"storage.bucket",
	"storage.region",
	"storage.access_key_id",
	"storage.secret_access_key",
	"logging.level",
	"logging.file",
	"export.start_date",
	"export.end_date",
}

// CLI holds the command tree and its collaborators. It has no package
// level state so several instances can run in one test binary.
type CLI struct {
	config   *Config
	rootCmd  *cobra.Command
	viper    *viper.Viper
	manager  interfaces.ConfigManager
	logger   logger.Logger
	console  *logger.ConsoleLogger
	output   io.Writer
	errorOut io.Writer
	// logToStderr is false when output writers were injected
	logToStderr bool
}

// NewCLI creates a CLI writing to stdout and stderr
func NewCLI(cfg *Config) *CLI {
	if cfg == nil {
		cfg = NewConfig()
	}
	c := &CLI{
		config:      cfg,
		viper:       viper.New(),
		manager:     config.NewManager(),
		logger:      logger.NopLogger{},
		output:      os.Stdout,
		errorOut:    os.Stderr,
		logToStderr: true,
	}
	c.console = logger.NewConsoleLoggerWithOutput(c.output, c.errorOut)
	c.setupCommands()
	return c
}

// NewCLIWithOutput creates a CLI with custom output writers
func NewCLIWithOutput(cfg *Config, output, errorOut io.Writer) *CLI {
	c := NewCLI(cfg)
	c.output = output
	c.errorOut = errorOut
	c.logToStderr = false
	c.console = logger.NewConsoleLoggerWithOutput(output, errorOut)
	c.rootCmd.SetOut(output)
	c.rootCmd.SetErr(errorOut)
	return c
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	return c.ExecuteContext(context.Background(), args)
}

// ExecuteContext runs the CLI with context support
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

// Execute runs the openet command with the process arguments
func Execute(version string) error {
	cfg := NewConfig()
	cfg.Version = version
	return NewCLI(cfg).Execute(os.Args[1:])
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "openet",
		Short: "Satellite evapotranspiration processing",
		Long: `openet interpolates Landsat scene ET fraction to daily ET, aggregates it to
monthly or annual totals and exports the results per MGRS tile.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.initializeConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := c.rootCmd.PersistentFlags()
	flags.StringVar(&c.config.ConfigFile, "config", "", "config file (default: "+config.DefaultFileName+")")
	flags.StringVar(&c.config.ProjectRoot, "root", c.config.ProjectRoot, "project root directory")
	flags.StringVarP(&c.config.Verbosity, "verbosity", "v", c.config.Verbosity, "log level (debug, info, warn, error)")

	c.rootCmd.Version = c.config.Version
	c.rootCmd.SetVersionTemplate("openet v{{.Version}}\n")

	c.rootCmd.AddCommand(
		c.newRunCmd(),
		c.newTilesCmd(),
		c.newInterpolateCmd(),
		c.newAggregateCmd(),
		c.newInspectCmd(),
		c.newMaskCmd(),
		c.newEnsembleCmd(),
		c.newStatusCmd(),
		c.newWatchCmd(),
		c.newStopCmd(),
		c.newValidateCmd(),
		c.newInitCmd(),
		c.newVersionCmd(),
	)
}

func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	v := c.viper
	if c.config.ConfigFile != "" {
		v.SetConfigFile(c.config.ConfigFile)
	} else {
		v.AddConfigPath(c.config.ProjectRoot)
		v.SetConfigName(strings.TrimSuffix(config.DefaultFileName, filepath.Ext(config.DefaultFileName)))
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	readErr := v.ReadInConfig()

	level := c.config.Verbosity
	if !cmd.Flags().Changed("verbosity") {
		if l := v.GetString("logging.level"); l != "" {
			level = l
		}
	}
	logFile := v.GetString("logging.file")
	if logFile != "" && !filepath.IsAbs(logFile) {
		logFile = filepath.Join(c.config.ProjectRoot, logFile)
	}
	if c.logToStderr {
		c.logger = logger.CreateLogger(logFile, level)
	} else {
		c.logger = logger.CreateLoggerWithOutput(level, c.errorOut)
	}

	if readErr == nil {
		c.logger.Debug("Using config file", logger.WithField("file", v.ConfigFileUsed()))
	}
	return nil
}

// configPath returns the file viper found, or where a new config goes
func (c *CLI) configPath() string {
	if c.config.ConfigFile != "" {
		return c.config.ConfigFile
	}
	if used := c.viper.ConfigFileUsed(); used != "" {
		return used
	}
	return filepath.Join(c.config.ProjectRoot, config.DefaultFileName)
}

// loadConfig reads and validates the config, then applies environment overrides
func (c *CLI) loadConfig() (*types.Config, error) {
	path := c.configPath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoConfig, path)
		}
		return nil, err
	}
	cfg, err := c.manager.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	c.applyOverrides(cfg)
	if err := c.manager.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfigOrDefault falls back to the default config when no file exists
func (c *CLI) loadConfigOrDefault() (*types.Config, error) {
	cfg, err := c.loadConfig()
	if errors.Is(err, ErrNoConfig) {
		cfg = c.manager.GetDefaultConfig()
		c.applyOverrides(cfg)
		return cfg, nil
	}
	return cfg, err
}

func (c *CLI) applyOverrides(cfg *types.Config) {
	for _, key := range envOverrides {
		if _, ok := os.LookupEnv(EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); !ok {
			continue
		}
		value := c.viper.GetString(key)
		switch key {
		case "storage.kind", "storage.root", "storage.endpoint", "storage.bucket",
			"storage.region", "storage.access_key_id", "storage.secret_access_key":
			if cfg.Storage == nil {
				cfg.Storage = &types.StorageConfig{Kind: types.StorageKindLocal}
			}
			setStorage(cfg.Storage, key, value)
		case "logging.level", "logging.file":
			if cfg.Logging == nil {
				cfg.Logging = &types.LoggingConfig{}
			}
			if key == "logging.level" {
				cfg.Logging.Level = types.LogLevel(value)
			} else {
				cfg.Logging.File = value
			}
		case "export.start_date", "export.end_date":
			if cfg.Export == nil {
				cfg.Export = &types.ExportConfig{}
			}
			if key == "export.start_date" {
				cfg.Export.StartDate = value
			} else {
				cfg.Export.EndDate = value
			}
		}
		c.logger.Debug("Config override from environment", logger.WithField("key", key))
	}
}

func setStorage(s *types.StorageConfig, key, value string) {
	switch key {
	case "storage.kind":
		s.Kind = types.StorageKind(value)
	case "storage.root":
		s.Root = value
	case "storage.endpoint":
		s.Endpoint = value
	case "storage.bucket":
		s.Bucket = value
	case "storage.region":
		s.Region = value
	case "storage.access_key_id":
		s.AccessKeyID = value
	case "storage.secret_access_key":
		s.SecretAccessKey = value
	}
}

// Helper methods for console output

func (c *CLI) printSuccess(message string) {
	c.console.Success(message)
}

func (c *CLI) printError(message string) {
	c.console.Error(message)
}

func (c *CLI) printInfo(message string) {
	c.console.Info(message)
}

func (c *CLI) printWarning(message string) {
	c.console.Warn(message)
}
