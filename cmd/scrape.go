package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newScrapeCmd creates the 'scrape' subcommand. By default it runs a full
// refresh; --dry-run prints the records as JSON and leaves the store alone.
func newScrapeCmd() *cobra.Command {
	var (
		baseURL string
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrapes a category and replaces the stored records",
		Long: `Walks every listing page of the category URL, follows each card to its
detail page and replaces the stored records with the result. Use build-url to
compose the category URL.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if baseURL == "" {
				baseURL = a.Config().Scraper.DefaultBaseURL
			}
			out := cmd.OutOrStdout()

			if dryRun {
				records, err := a.Scraper().Scrape(cmd.Context(), baseURL)
				if err != nil {
					return fmt.Errorf("scrape: %w", err)
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(records); err != nil {
					return fmt.Errorf("encode records: %w", err)
				}
				return nil
			}

			result, err := a.Ingest().Refresh(cmd.Context(), baseURL)
			if err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			for _, id := range result.IDs {
				fmt.Fprintln(out, id)
			}
			a.Logger().Info("scrape command finished",
				zap.Int("records", len(result.IDs)),
				zap.String("archive_uri", result.ArchiveURI),
				zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "category URL to scrape (defaults to scraper.default_base_url)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print records as JSON without touching the store")
	return cmd
}
