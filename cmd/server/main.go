// Package main is the entry point for the agripredict price service.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/fidde/agripredict/internal/artifacts"
	"github.com/fidde/agripredict/internal/config"
	"github.com/fidde/agripredict/internal/features"
	"github.com/fidde/agripredict/internal/schema"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "agripredict",
		Short: "Commodity price prediction service",
		Long: `agripredict serves min, max and modal price predictions for agricultural
commodities and records observed market prices for retraining.

Run without a subcommand to start the server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("AGRI_CONFIG"), "path to a YAML config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP and gRPC servers",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd, configPath)
			},
		},
		&cobra.Command{
			Use:   "check-artifacts",
			Short: "Load the model artifacts and report their status",
			Long: `Loads every artifact the server would load and prints one line per
artifact, then runs a batch of sample requests through the pipeline.
Exits non-zero when the pipeline would not be ready.`,
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCheckArtifacts(cmd, configPath)
			},
		},
		&cobra.Command{
			Use:   "schema",
			Short: "Print the feature columns in model order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSchema(cmd, configPath)
			},
		},
	)

	return root
}

// loadSchema reads the configured schema file, or the built-in schema.
func loadSchema(cfg config.Config) (*schema.Schema, error) {
	if cfg.Features.SchemaFile == "" {
		return schema.Default(), nil
	}
	return schema.Load(cfg.Features.SchemaFile)
}

func runCheckArtifacts(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	sc, err := loadSchema(cfg)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	b := artifacts.Load(cfg.ArtifactPaths(), sc, logger)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ARTIFACT\tSTATUS\tPATH\tDETAIL")
	for _, st := range b.Statuses() {
		status := "ok"
		detail := st.Warning
		if !st.Loaded {
			status = "missing"
			detail = st.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.Name, status, st.Path, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !b.Ready() {
		return fmt.Errorf("pipeline not ready: %d artifacts required", len(artifacts.Names))
	}
	fmt.Fprintln(cmd.OutOrStdout(), "pipeline ready")

	return smokePredict(cmd, b, sc)
}

// smokePredict runs the sample requests through the loaded pipeline as one
// batch and prints the quotes.
func smokePredict(cmd *cobra.Command, b *artifacts.Bundle, sc *schema.Schema) error {
	pipeline, agg, err := b.Predictor()
	if err != nil {
		return err
	}

	builder := features.NewBuilder(sc, features.WithPolicy(features.PolicyReject))
	samples := features.Samples(sc)
	rows := make([][]float64, 0, len(samples))
	for _, req := range samples {
		vec, _, err := builder.Build(req)
		if err != nil {
			return fmt.Errorf("building sample %s/%s/%s: %w", req.Region, req.Crop, req.Variety, err)
		}
		rows = append(rows, vec)
	}

	expanded, err := pipeline.TransformBatch(rows)
	if err != nil {
		return fmt.Errorf("smoke prediction: %w", err)
	}
	quotes, err := agg.PredictBatch(expanded)
	if err != nil {
		return fmt.Errorf("smoke prediction: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REGION\tCROP\tVARIETY\tMIN\tMAX\tMODAL")
	for i, q := range quotes {
		req := samples[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%.2f\t%.2f\n",
			req.Region, req.Crop, req.Variety, q.MinPrice, q.MaxPrice, q.ModalPrice)
	}
	return tw.Flush()
}

func runSchema(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	sc, err := loadSchema(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, col := range sc.Columns() {
		fmt.Fprintf(out, "%2d  %s\n", i, col)
	}
	return nil
}
