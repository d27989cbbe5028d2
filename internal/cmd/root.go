package cmd

import (
	"strings"

	"github.com/Iron-Ham/dsstar/internal/config"
	"github.com/Iron-Ham/dsstar/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "dsstar",
	Short: "Iterative data science agent",
	Long: `DS-STAR answers questions about data files by iterating: it plans an
analysis step, generates a Python program for the whole plan, executes it,
verifies the output and either extends or backtracks the plan until the
answer is sufficient.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.Version = Version

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/dsstar/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-dir", "", "directory for dsstar.log")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.dir", rootCmd.PersistentFlags().Lookup("log-dir"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DSSTAR")
	// e.g., DSSTAR_EXECUTOR_TIMEOUT_SECONDS for executor.timeout_seconds
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// newLogger builds the logger described by the logging section. When no log
// directory is configured and quiet is set, logging is discarded so that
// structured log lines do not interleave with terminal output.
func newLogger(cfg *config.Config, quiet bool) (*logging.Logger, error) {
	if cfg.Logging.Dir == "" && quiet {
		return logging.NopLogger(), nil
	}
	return logging.NewLoggerWithRotation(cfg.Logging.Dir, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
}
