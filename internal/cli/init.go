package cli

import (
	"fmt"
	"os"

	"github.com/harun/warden/internal/config"
	"github.com/harun/warden/pkg/cron"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write a config file with default values and two example schedules,
disabled until edited. The file goes to --config or $HOME/.warden/warden.json.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	path := loader.GetConfigPath()
	if path == "" {
		return fmt.Errorf("cannot resolve config path, pass --config")
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	if err := loader.Save(starterConfig()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote config to %s\n", path)
	return nil
}

func starterConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Tasks = []cron.EntryConfig{
		{Name: "fraud_analysis", Cron: "*/15 * * * *"},
		{Name: "calculation_validation", Cron: "0 * * * *"},
	}
	return cfg
}
