package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/controller/internal/config"
	"github.com/BrandonDHaskell/Portunus/controller/internal/logging"
)

const serviceName = "portunus-controller"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	DBPath     string
	LogLevel   string
	Verbose    bool
}

// NewRootCommand creates the root command for the controller CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "portunus-controller",
		Short: "Portunus door controller",
		Long: `Portunus door controller: reads RFID credentials, decides access against
the local whitelist/blacklist/pending partitions and drives the door strike.

Configuration comes from PORTUNUS_* environment variables, optionally
layered over a TOML file (--config or PORTUNUS_CONFIG_FILE).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "TOML config file (overrides PORTUNUS_CONFIG_FILE)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log from admin commands")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewUIDsCommand(opts))
	cmd.AddCommand(NewLogsCommand(opts))

	return cmd
}

// loadConfig resolves configuration and applies flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if o.ConfigFile != "" {
		cfg, err = config.Load(o.ConfigFile)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return config.Config{}, err
	}
	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	return cfg, nil
}

// logger builds the process logger. Admin commands stay quiet unless
// --verbose is set so their stdout remains parseable.
func (o *RootOptions) logger(cfg config.Config, admin bool) (*zap.Logger, error) {
	if admin && !o.Verbose {
		return zap.NewNop(), nil
	}
	format := cfg.LogFormat
	if admin {
		format = "console"
	}
	return logging.New(strings.ToLower(cfg.LogLevel), format, serviceName)
}
