package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ndaru/kirana/internal/config"
	"github.com/ndaru/kirana/internal/daemon"
	"github.com/ndaru/kirana/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Kirana platform server",
	Long: `Run the platform server: the assistant API, the knowledge index sync
loop and the completion endpoints. The process runs until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: true,
		Pretty:  true,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}

	return d.Run()
}
