package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/labvault/internal/model"
	"github.com/sells-group/labvault/internal/pipeline"
	"github.com/sells-group/labvault/internal/source"
)

var processCmd = &cobra.Command{
	Use:   "process <file>...",
	Short: "Process documents one at a time into the vault",
	Long:  "Processes documents in argument order. With batch.stop_on_error (or --stop-on-error) the remaining documents are skipped after the first failure.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		paths, err := source.Expand(args)
		if err != nil {
			return err
		}

		stopOnError := cfg.Batch.StopOnError
		if cmd.Flags().Changed("stop-on-error") {
			stopOnError, _ = cmd.Flags().GetBool("stop-on-error")
		}

		results, failed, firstErr := processSequential(ctx, env.Pipeline, env.Loader, paths, stopOnError)

		formatResults(os.Stdout, results)
		if stopOnError && firstErr != nil {
			return eris.Wrap(firstErr, "process stopped")
		}
		if failed > 0 {
			return eris.Errorf("%d of %d documents failed", failed, len(paths))
		}
		return nil
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch <path>...",
	Short: "Process documents concurrently into the vault",
	Long:  "Processes files and directories of lab reports with bounded concurrency. Vault admission is serialized; extraction runs in parallel.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		paths, err := source.Expand(args)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			fmt.Fprintln(os.Stderr, "No supported documents found.")
			return nil
		}

		opts := pipeline.BatchOptions{
			Concurrency: cfg.Batch.MaxConcurrentDocuments,
			StopOnError: cfg.Batch.StopOnError,
		}
		if cmd.Flags().Changed("concurrency") {
			opts.Concurrency, _ = cmd.Flags().GetInt("concurrency")
		}
		if cmd.Flags().Changed("stop-on-error") {
			opts.StopOnError, _ = cmd.Flags().GetBool("stop-on-error")
		}

		sum, batchErr := env.Pipeline.Batch(ctx, env.Loader, paths, opts)

		if out, _ := cmd.Flags().GetString("summary"); out != "" {
			if err := pipeline.WriteSummary(out, sum); err != nil {
				zap.L().Error("failed to write batch summary", zap.String("path", out), zap.Error(err))
			}
		}

		formatResults(os.Stdout, sum.Results)
		fmt.Fprintf(os.Stdout, "\n%d succeeded, %d failed, %d skipped, %d new patients\n",
			sum.Succeeded, sum.Failed, sum.Skipped, sum.NewPatients)

		return batchErr
	},
}

// processSequential runs paths in order, returning one result per path and
// the failure count. With stopOnError, paths after the first failure are
// recorded as skipped.
func processSequential(ctx context.Context, p *pipeline.Pipeline, loader pipeline.Loader, paths []string, stopOnError bool) ([]pipeline.Result, int, error) {
	var (
		failed   int
		firstErr error
	)
	results := make([]pipeline.Result, 0, len(paths))
	for _, path := range paths {
		if firstErr != nil && stopOnError {
			results = append(results, pipeline.Result{Document: filepath.Base(path), Status: model.RunStatusSkipped})
			continue
		}
		res, err := p.ProcessFile(ctx, loader, path)
		results = append(results, *res)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return results, failed, firstErr
}

// formatResults writes one row per document to out.
func formatResults(out io.Writer, results []pipeline.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOCUMENT\tSTATUS\tPATIENT\tNEW\tREPORTS\tTESTS\tERROR")
	_, _ = fmt.Fprintln(w, "--------\t------\t-------\t---\t-------\t-----\t-----")

	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%d\t%s\n",
			truncate(r.Document, 40),
			r.Status,
			r.PatientID,
			r.IsNewPatient,
			r.ReportCount,
			r.TestCount,
			truncate(r.Error, 60),
		)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func init() {
	processCmd.Flags().Bool("stop-on-error", false, "skip remaining documents after the first failure")

	batchCmd.Flags().Int("concurrency", 0, "documents in flight (default from config)")
	batchCmd.Flags().Bool("stop-on-error", false, "stop starting documents after the first failure")
	batchCmd.Flags().String("summary", "", "write the batch summary as JSON to this path")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(batchCmd)
}
