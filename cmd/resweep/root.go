package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/resweep/pkg/resweep/config"
	"github.com/jamesainslie/resweep/pkg/resweep/logging"
)

var (
	cfgFile string

	// appConfig is decoded from viper before every command runs. When the
	// file is invalid it holds nil and configErr says why.
	appConfig *config.Config
	configErr error

	rootCmd = &cobra.Command{
		Use:   "resweep",
		Short: "Find the physical resonances of an eigenmode model",
		Long: `Resweep drives an eigenmode solver across a frequency range, one
configuration at a time, and keeps the modes whose quality factor clears a
threshold.

Each iteration solves a fixed number of modes above the current minimum
frequency, then moves the minimum up to the highest mode found. The sweep
ends once that minimum reaches the upper edge of the range.

Examples:
  resweep sweep --fmin 1GHz --fmax 2GHz --modes 6 --threshold 10
  resweep sweep --catalog modes.yaml --format json
  resweep sweep --tui --plot resonances.svg
  resweep history                # List saved sweeps
  resweep plot <id> -o run.html  # Re-render a saved sweep
  resweep daemon start           # Start the solver daemon`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initializeLogging,
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logging.Close()
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/resweep/config.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	appConfig, configErr = nil, nil
	v := viper.GetViper()
	config.Configure(v)
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	if err := config.ReadInConfig(v); err != nil {
		configErr = err
	}
}

// initializeLogging decodes the configuration and starts file logging. An
// invalid config does not stop commands that can work without it, such as
// config edit; those that need it call loadConfig.
func initializeLogging(_ *cobra.Command, _ []string) error {
	for _, dir := range []string{config.DataDir(), config.StateDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if dir, err := config.ConfigDir(); err == nil {
		_ = os.MkdirAll(dir, 0o755)
	}

	if configErr == nil {
		appConfig, configErr = config.Decode(viper.GetViper())
	}

	logCfg := logging.DefaultConfig()
	if appConfig != nil {
		var err error
		if logCfg, err = appConfig.Logging.Logging(""); err != nil {
			return err
		}
	}
	if getVerbose() {
		logCfg.Console = "debug"
	}
	if err := logging.Init(logCfg); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	return nil
}

// initTUILogging restarts logging so a full-screen UI owns the terminal.
func initTUILogging() error {
	logCfg := logging.DefaultConfig()
	if appConfig != nil {
		var err error
		if logCfg, err = appConfig.Logging.Logging(""); err != nil {
			return err
		}
	}
	logCfg.Interactive = true
	return logging.Init(logCfg)
}

// loadConfig returns the decoded configuration or the reason it is unusable.
func loadConfig() (*config.Config, error) {
	if configErr != nil {
		return nil, configErr
	}
	if appConfig == nil {
		cfg, err := config.Decode(viper.GetViper())
		if err != nil {
			return nil, err
		}
		appConfig = cfg
	}
	return appConfig, nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message to stderr unless quiet mode is enabled.
// Reports go to stdout so they can be piped.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
