package cli

import (
	"github.com/spf13/cobra"
)

// NewSweepCmd abandons stale active sessions once and exits. Useful from cron
// when several server replicas share one database.
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Abandon active sessions idle past quiz.stale_after",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			eng, err := buildEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			n, err := eng.service.AbandonStale(ctx)
			if err != nil {
				return err
			}
			logger.Info("sweep finished", "abandoned", n)
			return nil
		},
	}
}
