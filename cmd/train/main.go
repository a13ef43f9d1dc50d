// train fits a model from a CSV file and writes it to the model directory.
//
//	go run ./cmd/train --name churn --kind logistic --target churned --csv data/customers.csv
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"bizlens/backend/internal/ml/model"
	"bizlens/backend/internal/ml/registry"
	"bizlens/backend/internal/ml/train"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		opts    train.Options
		kind    string
		csvPath string
		outDir  string
	)
	cmd := &cobra.Command{
		Use:          "train",
		Short:        "Train a logistic or linear model from a CSV file",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch model.Kind(kind) {
			case model.KindLogistic, model.KindLinear:
				opts.Kind = model.Kind(kind)
			default:
				return fmt.Errorf("--kind must be %q or %q", model.KindLogistic, model.KindLinear)
			}
			f, err := os.Open(csvPath)
			if err != nil {
				return err
			}
			defer f.Close()

			a, err := train.FromCSV(f, opts)
			if err != nil {
				return fmt.Errorf("train %s: %w", opts.Name, err)
			}
			path, version, err := registry.Save(outDir, a)
			if err != nil {
				return err
			}
			cmd.Printf("wrote %s (version %s, %d features)\n", path, version, len(a.Features))
			names := make([]string, 0, len(a.Metrics))
			for k := range a.Metrics {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, k := range names {
				cmd.Printf("  %s: %.4f\n", k, a.Metrics[k])
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&opts.Name, "name", "", "model name, used as the file name (required)")
	fl.StringVar(&kind, "kind", string(model.KindLogistic), "logistic or linear")
	fl.StringVar(&opts.Target, "target", "", "target column (required)")
	fl.StringSliceVar(&opts.Features, "features", nil, "feature columns; default is every numeric column except the target")
	fl.StringVar(&csvPath, "csv", "", "training CSV file (required)")
	fl.StringVar(&outDir, "out", "models", "model directory")
	fl.IntVar(&opts.Epochs, "epochs", 0, "gradient descent epochs (0 uses the default)")
	fl.Float64Var(&opts.LearningRate, "lr", 0, "learning rate (0 uses the default)")
	fl.Float64Var(&opts.L2, "l2", 0, "L2 regularization strength")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}
