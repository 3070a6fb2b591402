package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ydagan/synaptic/pkg/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "synaptic",
	Short: "Device synergy discovery engine",
	Long: `Synaptic watches device state changes and discovers synergies:
pairs of devices that are consistently used together, with a directed
trigger-action reading validated against the event history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initViper)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mineCmd)
	rootCmd.AddCommand(versionCmd)
}

func initViper() {
	viper.SetEnvPrefix("SYNAPTIC")
	viper.AutomaticEnv()
}

// loadConfig loads the effective configuration, with environment
// overrides for the connection settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if url := viper.GetString("nats_url"); url != "" {
		cfg.NATS.URL = url
	}
	if path := viper.GetString("db_path"); path != "" {
		cfg.Storage.Path = path
	}
	return cfg, nil
}

// newLogger builds the process logger. Verbose mode switches to the
// human-readable development encoder at debug level.
func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}
