package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/ingest"
)

// newMigrateCmd creates the migrate subcommand.
func newMigrateCmd() *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply the embedded schema migrations to the configured database.
Use --status to list applied and pending migrations without changing anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			a, err := openApp(ctx, app.Options{SkipMigrations: true})
			if err != nil {
				return err
			}
			defer a.Close()

			migrator := a.Migrator()
			if status {
				st, err := migrator.Status(ctx)
				if err != nil {
					return fmt.Errorf("migration status: %w", err)
				}
				if outputJSON {
					return printJSON(st)
				}
				rows := make([][]string, 0, len(st.Applied)+len(st.Pending))
				for _, v := range st.Applied {
					rows = append(rows, []string{v, "applied"})
				}
				for _, v := range st.Pending {
					rows = append(rows, []string{v, "pending"})
				}
				ui.Table([]string{"Version", "State"}, rows)
				return nil
			}

			ui.Step("Applying migrations to %s", a.Dialect)
			applied, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if outputJSON {
				return printJSON(map[string]interface{}{"applied": applied})
			}
			if len(applied) == 0 {
				ui.Success("Schema is up to date")
				return nil
			}
			for _, v := range applied {
				ui.Success("Applied %s", v)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "show migration status only")
	return cmd
}

// newSeedCmd creates the seed subcommand.
func newSeedCmd() *cobra.Command {
	var (
		file     string
		backfill bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load categories, brands and products from a YAML file",
		Long: `Seed upserts the categories, brands and products listed in a YAML catalog
file. Products are matched by SKU; re-seeding updates them in place and clears
their embeddings. Use --backfill to embed the changed products afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
			defer cancel()

			a, err := openApp(ctx, app.Options{SkipIndexLoad: !backfill})
			if err != nil {
				return err
			}
			defer a.Close()

			bar := ui.ProgressBar(0, "seeding")
			result, err := a.Seeder().SeedFile(ctx, file, func(p ingest.SeedProgress) {
				bar.Describe(p.Kind + "s")
				bar.Set(p.Done, p.Total)
				if p.Err != nil {
					logger.Warn().Err(p.Err).Str("kind", p.Kind).Str("name", p.Name).Msg("Record skipped")
				}
			})
			bar.Finish()
			if err != nil {
				return err
			}

			var filled *ingest.BackfillResult
			if backfill {
				if filled, err = runBackfill(ctx, a, 0); err != nil {
					return err
				}
			}

			if outputJSON {
				return printJSON(map[string]interface{}{"seed": result, "backfill": filled})
			}

			ui.Success("Seeded %d categories, %d brands and %d products in %s",
				result.Categories, result.Brands, result.Products, FormatDuration(result.Duration))
			if result.Failed > 0 {
				ui.Warning("%d records failed", result.Failed)
				for _, e := range result.Errors {
					ui.Error("%s", e)
				}
			}
			if filled != nil {
				printBackfill(filled)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog YAML file (required)")
	cmd.Flags().BoolVar(&backfill, "backfill", false, "embed products after seeding")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// newBackfillCmd creates the backfill subcommand.
func newBackfillCmd() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed active products that have no embedding",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Hour)
			defer cancel()

			a, err := openApp(ctx, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := runBackfill(ctx, a, workers)
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(result)
			}
			printBackfill(result)
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent embedding workers (default from config)")
	return cmd
}

func runBackfill(ctx context.Context, a *app.App, workers int) (*ingest.BackfillResult, error) {
	if workers <= 0 {
		workers = a.Config.Embedding.Workers
	}
	ui.Step("Embedding products with %d workers", workers)

	bars := ui.WorkerBars(workers)
	result, err := a.Backfiller(workers).Run(ctx, func(p ingest.BackfillProgress) {
		bars.Add(p.Worker, p.Embedded+p.Failed, p.Total)
	})
	bars.Wait()
	if err != nil {
		return nil, fmt.Errorf("backfill: %w", err)
	}
	return result, nil
}

func printBackfill(r *ingest.BackfillResult) {
	ui.Success("Embedded %d products in %s", r.Embedded, FormatDuration(r.Duration))
	if r.Failed > 0 {
		ui.Warning("%d products failed", r.Failed)
		for _, e := range r.Errors {
			ui.Error("%s", e)
		}
	}
}
