package cli

import (
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/infra/memory"
	"github.com/jsureka/chemouflage-card-shop-sub000/internal/infra/postgres"
)

// NewSeedCmd upserts a YAML question bank into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load questions from a YAML file into the question bank",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}

			var questions []domain.Question
			if file == "" {
				questions, err = memory.ParseQuestions(sampleQuestions)
			} else {
				questions, err = memory.LoadQuestionFile(file)
			}
			if err != nil {
				return err
			}

			if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
				return err
			}
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			loader := postgres.NewQuestionLoader(pool)
			if err := loader.UpsertQuestions(ctx, questions); err != nil {
				return err
			}
			total, err := loader.Count(ctx)
			if err != nil {
				return err
			}
			logger.Info("questions seeded", "upserted", len(questions), "bank_size", total)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML question file (defaults to the bundled sample set)")
	return cmd
}
