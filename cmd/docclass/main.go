package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/FrenchMajesty/doc-classifier/internal/app"
	"github.com/FrenchMajesty/doc-classifier/internal/benchmark"
	"github.com/FrenchMajesty/doc-classifier/internal/config"
	"github.com/FrenchMajesty/doc-classifier/internal/logging"
	"github.com/FrenchMajesty/doc-classifier/internal/source"
	"github.com/FrenchMajesty/doc-classifier/pkg/types"
)

const usage = `usage: docclass <command> [flags]

commands:
  serve                         run the HTTP API
  classify [--bucket] files...  classify local files, or objects under --prefix with --bucket
  eval --dataset file.csv       score the pipeline against a labelled dataset
`

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error:\n%v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, cmd string, args []string) (err error) {
	switch cmd {
	case "serve", "classify", "eval":
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := application.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	switch cmd {
	case "serve":
		return application.Serve(ctx)
	case "classify":
		return classify(ctx, application, args)
	default:
		return eval(ctx, application, args)
	}
}

func classify(ctx context.Context, a *app.Application, args []string) error {
	fset := flag.NewFlagSet("classify", flag.ContinueOnError)
	fromBucket := fset.Bool("bucket", false, "read documents from the configured S3 bucket")
	prefix := fset.String("prefix", "", "object prefix when --bucket is set")
	if err := fset.Parse(args); err != nil {
		return err
	}

	var (
		items []types.SubmittedItem
		err   error
	)
	if *fromBucket {
		bucket, berr := a.Bucket()
		if berr != nil {
			return berr
		}
		items, err = bucket.Items(ctx, *prefix)
	} else {
		if fset.NArg() == 0 {
			return errors.New("classify needs at least one file, or --bucket")
		}
		items, err = source.Files(fset.Args())
	}
	if err != nil {
		return err
	}

	outcomes, err := a.Classify(ctx, items)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, out := range outcomes {
		if encErr := enc.Encode(out); encErr != nil {
			return encErr
		}
	}
	return err
}

func eval(ctx context.Context, a *app.Application, args []string) error {
	fset := flag.NewFlagSet("eval", flag.ContinueOnError)
	dataset := fset.String("dataset", os.Getenv("DATASET_FILEPATH"), "CSV of path,label rows")
	limit := fset.Int("limit", 0, "maximum number of documents (0 = default)")
	outDir := fset.String("out", ".", "directory for metrics and results files")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *dataset == "" {
		return errors.New("eval needs --dataset or DATASET_FILEPATH")
	}

	items, err := benchmark.LoadDataset(*dataset, *limit)
	if err != nil {
		return err
	}

	metrics, results, err := benchmark.Run(ctx, a, items, a.Taxonomy())
	if err != nil {
		return err
	}

	metricsFile, err := benchmark.SaveMetricsToFile(*outDir, metrics)
	if err != nil {
		return err
	}
	resultsFile, err := benchmark.SaveResultsToFile(*outDir, results)
	if err != nil {
		return err
	}

	fmt.Printf("documents=%d accuracy=%.3f low_confidence=%d cache_hits=%d duration=%s\n",
		metrics.TotalDocuments, metrics.Accuracy, metrics.LowConfidence, metrics.CacheHits, metrics.TotalDuration)
	fmt.Printf("metrics: %s\nresults: %s\n", metricsFile, resultsFile)
	return nil
}
