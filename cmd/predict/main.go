package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"superstore/config"
	"superstore/ml"
	"superstore/pipeline"
)

func main() {
	if err := newCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		configPath string
		modelPath  string
		output     string
		latin1     bool
	)
	cmd := &cobra.Command{
		Use:           "predict <input.csv>",
		Short:         "Predict order profitability for every row of a batch file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if modelPath == "" {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				modelPath = cfg.Model.Path
			}
			format := pipeline.BatchFormat()
			if latin1 {
				format = pipeline.SuperstoreFormat()
			}
			return run(args[0], modelPath, output, format, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "config.yaml", "config file (YAML)")
	f.StringVar(&modelPath, "model", "", "model artifact, defaults to model.path from config")
	f.StringVarP(&output, "output", "o", "", "output file (.csv or .xlsx); summary only when empty")
	f.BoolVar(&latin1, "latin1", false, "input is latin-1 encoded")
	return cmd
}

func run(input, modelPath, output string, format pipeline.ReadOptions, out io.Writer) error {
	predictor, err := ml.LoadModel(modelPath)
	if err != nil {
		return err
	}
	table, err := pipeline.ReadFile(input, format)
	if err != nil {
		return err
	}
	result, err := predictor.PredictBatch(table)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "rows: %d, predicted profitable: %d\n", len(result.Labels), result.Profitable())
	if output == "" {
		return nil
	}
	if err := writeResult(output, result); err != nil {
		return err
	}
	fmt.Fprintf(out, "predictions written to %s\n", output)
	return nil
}

func writeResult(path string, result *ml.BatchResult) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		err = pipeline.WriteXLSX(f, result.Table, result.Columns()...)
	} else {
		err = pipeline.WriteCSV(f, result.Table, result.Columns()...)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
