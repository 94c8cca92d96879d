package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/riskwatch/internal/render"
	"github.com/ppiankov/riskwatch/internal/worker"
)

var (
	concurrency  int
	batchRPS     float64
	batchBurst   int
	outputDir    string
	batchFormat  string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file.jsonl|->",
	Short: "Score many submissions from a JSON Lines file in parallel",
	Long: `Batch reads one submission per line and scores them concurrently.
Results are printed in input order.

Each line is a JSON object with the submission fields; kind is inferred
when omitted:
  {"text": "GUARANTEED 500% returns!", "source_platform": "telegram"}
  {"url": "http://smart-profits.xyz/"}
  {"kind": "advisor", "registration_number": "INA000012345"}

Blank lines and lines starting with # are skipped.

Example:
  riskwatch batch submissions.jsonl
  riskwatch batch submissions.jsonl --concurrency 8 --format json > results.jsonl
  riskwatch batch submissions.jsonl --output-dir ./reports`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default: concurrency.workers)")
	batchCmd.Flags().Float64Var(&batchRPS, "rps", 0, "max analyses per second (0 = unlimited)")
	batchCmd.Flags().IntVar(&batchBurst, "burst", 0, "rate limiter burst size")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "", "also write one JSON report per submission to this directory")
	batchCmd.Flags().StringVarP(&batchFormat, "format", "f", "text", "output format (text, json)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
}

func runBatch(cmd *cobra.Command, args []string) error {
	format, err := render.ParseFormat(batchFormat)
	if err != nil {
		return err
	}
	if format == render.FormatMarkdown {
		return fmt.Errorf("batch supports text and json output")
	}

	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, log, err := configure()
	if err != nil {
		return err
	}
	workers := concurrency
	if workers <= 0 {
		workers = cfg.Concurrency.Workers
	}

	if verbose {
		stderrf("Input file:   %s\n", args[0])
		stderrf("Workers:      %d\n", workers)
		stderrf("Timeout:      %v\n\n", batchTimeout)
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	processor := worker.NewBatchProcessor(a.pipeline, workers, batchRPS, batchBurst)

	var results []*worker.BatchResult
	if args[0] == "-" {
		results, err = processor.ProcessReader(ctx, cmd.InOrStdin())
	} else {
		results, err = processor.ProcessFile(ctx, args[0])
	}
	if err != nil {
		return fmt.Errorf("process input: %w", err)
	}

	if outputDir != "" {
		if err := writeReports(outputDir, results); err != nil {
			return err
		}
	}

	if format == render.FormatJSON {
		return writeJSONLines(cmd.OutOrStdout(), results)
	}
	return render.NewRenderer(verbose).RenderBatch(cmd.OutOrStdout(), results)
}

// writeJSONLines prints one result object per line
func writeJSONLines(w io.Writer, results []*worker.BatchResult) error {
	enc := json.NewEncoder(w)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode result for line %d: %w", r.Line, err)
		}
	}
	return nil
}

// writeReports writes line-<n>.json for every successful result
func writeReports(dir string, results []*worker.BatchResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	r := render.NewRenderer(false)
	for _, res := range results {
		if res.Result == nil {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("line-%d.json", res.Line))
		if err := r.WriteFile(path, res.Result.Assessment, render.FormatJSON); err != nil {
			stderrf("✗ line %d: %v\n", res.Line, err)
		}
	}
	return nil
}
