package cli

import (
	"fmt"

	"github.com/harun/warden/internal/config"
	"github.com/harun/warden/internal/daemon"
	"github.com/harun/warden/internal/logger"
	"github.com/spf13/cobra"
)

var (
	noAgent bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Warden daemon service",
	Long: `Start the Warden daemon service in the foreground.
The daemon serves the control API, watches the config file for schedule
changes and, unless --no-agent is given, starts the agent immediately.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&noAgent, "no-agent", false, "serve the control API but leave the agent stopped")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	// Field problems such as a bad cron expression only disable the
	// affected entry, so they are reported and startup continues.
	for _, w := range configWarnings(cfg) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", w)
	}

	pidFile := daemon.PIDFilePath(cfg.DataDir)
	if isRunning(pidFile) {
		return fmt.Errorf("daemon is already running (PID file: %s)", pidFile)
	}

	logCfg := logger.FromSettings(cfg.Logging, true)
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log, daemon.Options{
		ConfigPath: loader.GetConfigPath(),
		AutoStart:  !noAgent,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Warden daemon listening on %s\n", d.Status().Addr)
	d.Wait()
	return nil
}

// configWarnings runs the field validator. Call it after Validate passed.
func configWarnings(cfg *config.Config) []error {
	return config.NewValidator().ValidateConfig(cfg)
}

func isRunning(pidFile string) bool {
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		return false
	}
	return daemon.ProcessAlive(pid)
}
