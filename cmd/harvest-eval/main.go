// Package main implements harvest-eval, an offline tool that runs the metrics
// calculator and the advisory rules over a harvest record stored as JSON.
//
// Usage:
//
//	harvest-eval evaluate --file record.json
//	harvest-eval evaluate --file record.json --precision 3 --thresholds thresholds.yaml
//	harvest-eval rules --thresholds thresholds.yaml
//
// The record is a flat JSON object using the API field names. No validation
// beyond what the calculator needs is applied, so partial records are useful
// for exploring individual rules.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"caneharvest/internal/config"
	"caneharvest/internal/insights"
	"caneharvest/internal/metrics"
	"caneharvest/internal/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type evalOptions struct {
	file           string
	precision      int
	thresholdsFile string
	verbose        bool
}

func newRootCmd() *cobra.Command {
	opts := &evalOptions{}

	root := &cobra.Command{
		Use:          "harvest-eval",
		Short:        "Evaluate harvest records offline",
		Long:         `Runs the harvest metrics calculator and advisory rules against JSON records without a database.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.thresholdsFile, "thresholds", "", "YAML file overriding advisory thresholds")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log rule failures to stderr")

	evaluate := &cobra.Command{
		Use:   "evaluate",
		Short: "Enrich a record with derived metrics and advisory text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEvaluate(cmd, opts)
		},
	}
	evaluate.Flags().StringVarP(&opts.file, "file", "f", "", "Path to the JSON record (- for stdin)")
	evaluate.Flags().IntVar(&opts.precision, "precision", metrics.DefaultPrecision, "Decimal digits kept in derived metrics")
	_ = evaluate.MarkFlagRequired("file")

	rules := &cobra.Command{
		Use:   "rules",
		Short: "List the advisory rules in evaluation order with active thresholds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRules(cmd, opts)
		},
	}

	root.AddCommand(evaluate, rules)
	return root
}

func runEvaluate(cmd *cobra.Command, opts *evalOptions) error {
	th, err := loadThresholds(opts.thresholdsFile)
	if err != nil {
		return err
	}
	calc, err := metrics.NewCalculator(opts.precision)
	if err != nil {
		return err
	}

	record, err := readRecord(cmd.InOrStdin(), opts.file)
	if err != nil {
		return err
	}

	enriched, _, err := calc.Enrich(record)
	if err != nil {
		return fmt.Errorf("cannot derive metrics: %w", err)
	}

	agg := insights.NewAggregator(insights.NewRegistry(th), newLogger(cmd.ErrOrStderr(), opts.verbose))
	advisory := agg.Generate(cmd.Context(), enriched)
	enriched = enriched.Merge(types.Fields{
		types.FieldAlert:          advisory.Alert,
		types.FieldRecommendation: advisory.Recommendation,
	})

	out, err := json.MarshalIndent(enriched, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func runRules(cmd *cobra.Command, opts *evalOptions) error {
	th, err := loadThresholds(opts.thresholdsFile)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	agg := insights.NewAggregator(insights.NewRegistry(th), nil)
	fmt.Fprintln(w, "Rules (evaluation order):")
	for i, name := range agg.Names() {
		fmt.Fprintf(w, "  %d. %s\n", i+1, name)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(th); err != nil {
		return fmt.Errorf("encode thresholds: %w", err)
	}
	_ = enc.Close()

	fmt.Fprintln(w, "\nThresholds:")
	_, err = w.Write(buf.Bytes())
	return err
}

func loadThresholds(path string) (types.Thresholds, error) {
	base := types.DefaultThresholds()
	if path == "" {
		return base, nil
	}
	return config.LoadThresholdsFile(path, base)
}

// readRecord decodes a flat JSON object from path, or from stdin when path is "-".
func readRecord(stdin io.Reader, path string) (types.Fields, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}

	var record types.Fields
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", path, err)
	}
	if record == nil {
		return nil, fmt.Errorf("decode record %s: expected a JSON object", path)
	}
	return record, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelError + 1
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
