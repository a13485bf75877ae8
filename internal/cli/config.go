package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ndaru/kirana/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Kirana configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cmd.Println(cfg.String())
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := config.NewLoader(cfgFile)
		if err := loader.Save(config.DefaultConfig()); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		cmd.Printf("Wrote %s\n", loader.GetConfigPath())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
