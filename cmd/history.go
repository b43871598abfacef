package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/progwatch/progwatch-cli/internal/model"
)

var (
	historyURL  string
	historyID   string
	historyAsOf string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show stored record versions for a source",
	Long:  "Prints the full version history for a source, its latest record (--latest), or the record in effect at a point in time (--as-of RFC3339).",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("history"); err != nil {
			return err
		}

		sourceID, err := resolveSourceID(historyID, historyURL)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if historyAsOf != "" {
			t, err := time.Parse(time.RFC3339, historyAsOf)
			if err != nil {
				return eris.Wrap(err, "parse --as-of, want RFC3339")
			}
			rec, err := st.AsOf(ctx, sourceID, t)
			if err != nil {
				return eris.Wrap(err, "read as-of record")
			}
			if rec == nil {
				return eris.Errorf("no record for source %s at %s", sourceID, historyAsOf)
			}
			return enc.Encode(rec)
		}

		records, err := st.History(ctx, sourceID)
		if err != nil {
			return eris.Wrap(err, "read history")
		}
		if len(records) == 0 {
			return eris.Errorf("no records for source %s", sourceID)
		}
		return enc.Encode(records)
	},
}

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the latest stored record for a source",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("history"); err != nil {
			return err
		}

		sourceID, err := resolveSourceID(historyID, historyURL)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		rec, err := st.Latest(ctx, sourceID)
		if err != nil {
			return eris.Wrap(err, "read latest record")
		}
		if rec == nil {
			return eris.Errorf("no records for source %s", sourceID)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

// resolveSourceID returns the explicit ID, or derives one from the URL the
// same way the pipeline does.
func resolveSourceID(id, rawURL string) (string, error) {
	if id != "" {
		return id, nil
	}
	if rawURL == "" {
		return "", eris.New("one of --source-id or --url is required")
	}
	canonical, err := model.CanonicalURL(rawURL)
	if err != nil {
		return "", err
	}
	return model.SourceID(canonical), nil
}

func init() {
	for _, c := range []*cobra.Command{historyCmd, latestCmd} {
		c.Flags().StringVar(&historyURL, "url", "", "source page URL")
		c.Flags().StringVar(&historyID, "source-id", "", "source ID (alternative to --url)")
	}
	historyCmd.Flags().StringVar(&historyAsOf, "as-of", "", "show the record in effect at this RFC3339 time")
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(latestCmd)
}
