package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/advaith-rb/acm-data-takehome/internal/config"
	"github.com/advaith-rb/acm-data-takehome/internal/metrics"
	"github.com/advaith-rb/acm-data-takehome/internal/metrics/datadog"
	"github.com/advaith-rb/acm-data-takehome/internal/pipeline"
	"github.com/advaith-rb/acm-data-takehome/internal/storage"

	// register all backends with the storage factory.
	// config specifies which to use but we build in support for all of them.
	_ "github.com/advaith-rb/acm-data-takehome/internal/storage/postgres"
	_ "github.com/advaith-rb/acm-data-takehome/internal/storage/sqlite"
)

// main loads the pipeline config, optionally initializes a metrics
// backend, runs one snapshot and writes the reports.
func main() {
	var (
		cfgPath           string
		outDir            string
		metricsBackendFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "", "pipeline config YAML path (defaults apply when empty)")
	flag.StringVar(&outDir, "out", "", "report output directory (overrides config out_dir)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "none", "metrics backend to use (datadog, none)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	if outDir != "" {
		cfg.OutDir = outDir
	}

	issues := cfg.Validate()
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		log.Printf("configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	// Decide metrics backend: flag → env → default.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		// Buffers metrics and submits periodically, plus one final time at
		// shutdown. Long runs get a real time series instead of a single
		// spike at the end.
		extraTags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))

		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    "data-pipeline",
			Tags:       extraTags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			log.Printf("metrics: backend=%v tags=%v", backendName, extraTags)
			metrics.SetBackend(b)

			// Close() stops the periodic flush loop and then performs a
			// final Flush(). This is the clean shutdown path.
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}

	case "", "none":
		// metrics disabled; nop backend remains
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx := context.Background()

	store, err := storage.Open(ctx, storage.Config{
		Kind: cfg.Storage.Kind,
		DSN:  os.ExpandEnv(cfg.Storage.DSN),
	})
	if err != nil {
		fatalf("open storage: %v", err)
	}
	defer store.Close()

	var pipeLog pipeline.Logger
	if *verbose {
		pipeLog = log.New(os.Stderr, "", log.LstdFlags)
	}

	p, err := pipeline.New(cfg, store, pipeline.Options{Log: pipeLog})
	if err != nil {
		fatalf("pipeline: %v", err)
	}

	out, runErr := p.Run(ctx)
	if out != nil {
		if err := out.WriteFiles(cfg.OutDir); err != nil {
			log.Printf("write reports: %v", err)
		}
		renderSummary(os.Stdout, out.Report)
	}
	if runErr != nil {
		log.Fatalf("%v", runErr)
	}
}

// renderSummary prints the per-source accounting as a terminal table.
func renderSummary(w *os.File, rep pipeline.RunReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"source", "table", "read", "parse fails", "collapsed", "orphans", "excluded", "published"})
	for _, s := range rep.Sources {
		t.AppendRow(table.Row{
			s.Source,
			s.Table,
			s.RowsRead,
			s.ParseFailures,
			s.ExactCollapsed + s.KeyCollapsed,
			s.OrphansDropped,
			s.Excluded,
			s.Published,
		})
	}
	t.Render()

	fmt.Fprintf(w, "run %s: %s in %s\n",
		rep.RunID, rep.Status,
		rep.FinishedAt.Sub(rep.StartedAt).Truncate(time.Millisecond))
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
