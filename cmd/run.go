package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/award-ingestor/internal/ingest"
)

func newRunCmd() *cobra.Command {
	var req ingest.Request

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one ingestion and exits",
		Long: `Fetches every day in [--start-date, --end-date] for one saved search and
persists the results, exactly as one call to the HTTP endpoint would.
Empty dates fall back to the configured defaults.`,
		Example: `  ingestor run --keyword climate --search-id abc --start-date 2024-03-01 --end-date 2024-03-31`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			defer app.Close(context.WithoutCancel(ctx))

			res, err := app.Pipeline().Run(ctx, req)
			if err != nil {
				return fmt.Errorf("run ingestion: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Saved %d records (run %s)\n", res.Total, res.RunID)
			return err
		},
	}

	cmd.Flags().StringVar(&req.Keyword, "keyword", "", "keyword used to name the output folder and files")
	cmd.Flags().StringVar(&req.SearchID, "search-id", "", "saved search identifier on the grants API")
	cmd.Flags().StringVar(&req.StartDate, "start-date", "", "first last-modified day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&req.EndDate, "end-date", "", "last last-modified day, inclusive (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("keyword")
	_ = cmd.MarkFlagRequired("search-id")
	return cmd
}
