package main

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/progwatch/progwatch-cli/internal/pipeline"
)

var (
	batchManifest    string
	batchExtractor   string
	batchConcurrency int
)

// manifestEntry is one source in the batch manifest. Text comes inline or
// from a file path relative to the manifest.
type manifestEntry struct {
	URL   string `yaml:"url"`
	Label string `yaml:"label"`
	Text  string `yaml:"text"`
	File  string `yaml:"file"`
}

type manifest struct {
	Sources []manifestEntry `yaml:"sources"`
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Extract a manifest of sources through the worker pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		inputs, err := loadManifest(batchManifest)
		if err != nil {
			return err
		}
		if len(inputs) == 0 {
			return eris.New("manifest contains no sources")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		sch, err := initSchema()
		if err != nil {
			return eris.Wrap(err, "load schema")
		}

		ex, err := initExtractor(batchExtractor)
		if err != nil {
			return err
		}

		concurrency := batchConcurrency
		if concurrency == 0 {
			concurrency = cfg.Batch.MaxConcurrentSources
		}

		runner := initRunner(st, ex, sch, batchExtractor)
		summary := runner.ProcessBatch(ctx, inputs, concurrency)

		zap.L().Info("batch finished",
			zap.Int("total", summary.Total()),
			zap.Int("accepted", summary.Accepted),
			zap.Int("review", summary.Review),
			zap.Int("rejected", summary.Rejected),
			zap.Int("unchanged", summary.Unchanged),
			zap.Int("failed", summary.Failed),
		)

		if summary.Failed > 0 {
			return eris.Errorf("%d of %d sources failed", summary.Failed, summary.Total())
		}
		return nil
	},
}

func loadManifest(path string) ([]pipeline.SourceInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read manifest")
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "parse manifest")
	}

	base := filepath.Dir(path)
	inputs := make([]pipeline.SourceInput, 0, len(m.Sources))
	for i, e := range m.Sources {
		if e.URL == "" {
			return nil, eris.Errorf("manifest source %d: url is required", i)
		}
		text := e.Text
		if text == "" && e.File != "" {
			b, err := os.ReadFile(filepath.Join(base, e.File))
			if err != nil {
				return nil, eris.Wrapf(err, "manifest source %d: read text file", i)
			}
			text = string(b)
		}
		if text == "" {
			return nil, eris.Errorf("manifest source %d: one of text or file is required", i)
		}
		inputs = append(inputs, pipeline.SourceInput{
			URL:   e.URL,
			Label: e.Label,
			Text:  text,
		})
	}
	return inputs, nil
}

func init() {
	batchCmd.Flags().StringVar(&batchManifest, "manifest", "sources.yaml", "YAML manifest of sources")
	batchCmd.Flags().StringVar(&batchExtractor, "extractor", "", "extraction backend: heuristic or model (default from config)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max sources in flight (default from config)")
	rootCmd.AddCommand(batchCmd)
}
