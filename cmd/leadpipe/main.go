package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bioleads/lead-enrichment-pipeline/internal/config"
	"github.com/bioleads/lead-enrichment-pipeline/internal/lead"
	"github.com/bioleads/lead-enrichment-pipeline/internal/metrics"
	"github.com/bioleads/lead-enrichment-pipeline/internal/pipeline"
	"github.com/bioleads/lead-enrichment-pipeline/internal/rank"
	"github.com/bioleads/lead-enrichment-pipeline/internal/redact"
	"github.com/bioleads/lead-enrichment-pipeline/internal/source/discovery"
	"github.com/bioleads/lead-enrichment-pipeline/internal/source/funding"
	"github.com/bioleads/lead-enrichment-pipeline/internal/source/geocode"
	"github.com/bioleads/lead-enrichment-pipeline/internal/source/hunter"
	"github.com/bioleads/lead-enrichment-pipeline/internal/source/orcid"
	"github.com/bioleads/lead-enrichment-pipeline/internal/source/pubmed"
	"github.com/bioleads/lead-enrichment-pipeline/internal/source/research"
	"github.com/bioleads/lead-enrichment-pipeline/internal/store"
	"github.com/bioleads/lead-enrichment-pipeline/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "version":
		fmt.Println(version.Current)
		return
	case "run":
		os.Exit(runCmd(ctx, os.Args[2:]))
	case "top":
		os.Exit(topCmd(ctx, os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runCmd(ctx context.Context, args []string) int {
	envCfg, err := config.LoadEnv()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var seedsPath string
	var configPath string
	var dbPath string
	var workers int
	var maxAttempts int
	var requestTimeout time.Duration
	var metricsAddr string
	var topN int

	fs.StringVar(&seedsPath, "seeds", "", "Candidate seeds YAML file")
	fs.StringVar(&configPath, "config", "", "Business config YAML (weights, hubs, rate limits)")
	fs.StringVar(&dbPath, "db", envCfg.DatabasePath, "Lead database path (env: DATABASE_PATH)")
	fs.IntVar(&workers, "workers", envCfg.Workers, "Concurrent candidate workers (env: WORKERS)")
	fs.IntVar(&maxAttempts, "max-attempts", envCfg.MaxAttempts, "Attempts per lookup for transient failures (env: MAX_ATTEMPTS)")
	fs.DurationVar(&requestTimeout, "request-timeout", envCfg.RequestTimeout, "Per-lookup timeout (env: REQUEST_TIMEOUT)")
	fs.StringVar(&metricsAddr, "metrics-addr", envCfg.MetricsAddr, "Serve Prometheus metrics on this address during the run (env: METRICS_ADDR)")
	fs.IntVar(&topN, "top", 10, "Ranked leads to print after the run")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if seedsPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "run requires --seeds")
		return 2
	}

	fileCfg, err := config.LoadFile(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	candidates, err := config.LoadSeeds(seedsPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	sources, err := buildSources(ctx, envCfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)

	var m *metrics.Metrics
	if metricsAddr != "" {
		m = metrics.New(prometheus.DefaultRegisterer)
		go serveMetrics(metricsAddr, logger)
	}

	orch, err := pipeline.New(sources, fileCfg.Scoring, fileCfg.Gazetteer(), pipeline.Options{
		Workers:        workers,
		RequestTimeout: requestTimeout,
		Retry:          pipeline.RetryPolicy{MaxAttempts: maxAttempts},
		SourceRates:    fileCfg.SourceRates(),
	}, logger, m)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "setup error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	startedAt := time.Now()
	results := orch.Run(ctx, candidates)

	db, err := store.Open(dbPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "store error: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	defer func() {
		_ = db.Close()
	}()
	if err := db.SaveRun(context.Background(), orch.RunID(), startedAt, results); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "store error: %s\n", redact.Secrets(err.Error()))
		return 1
	}

	fmt.Printf("run %s: %d candidates, saved to %s\n", orch.RunID(), len(results), db.Path())
	printLeads(rank.Top(results, topN))
	return 0
}

func topCmd(ctx context.Context, args []string) int {
	envCfg, err := config.LoadEnv()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	fs := flag.NewFlagSet("top", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var dbPath string
	var limit int
	fs.StringVar(&dbPath, "db", envCfg.DatabasePath, "Lead database path (env: DATABASE_PATH)")
	fs.IntVar(&limit, "limit", 25, "Leads to show")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	db, err := store.Open(dbPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "store error: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	defer func() {
		_ = db.Close()
	}()

	leads, err := db.TopLeads(ctx, limit)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "store error: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	printLeads(leads)
	return 0
}

// buildSources wires the adapter clients from environment credentials.
// Identity, publications and funding need no credentials; discovery and
// email refuse to start without theirs; geocode and research are
// enabled only when configured.
func buildSources(ctx context.Context, envCfg config.Env) (pipeline.Sources, error) {
	disc, err := discovery.New(discovery.Config{APIKey: envCfg.SerpAPIKey})
	if err != nil {
		return pipeline.Sources{}, err
	}
	email, err := hunter.New(hunter.Config{APIKey: envCfg.EmailAPIKey})
	if err != nil {
		return pipeline.Sources{}, err
	}

	sources := pipeline.Sources{
		Identity:     orcid.New(orcid.Config{}),
		Publications: pubmed.New(pubmed.Config{Email: envCfg.PubMedEmail, APIKey: envCfg.PubMedAPIKey}),
		Discovery:    disc,
		Email:        email,
		Funding:      funding.New(funding.Config{}),
	}
	if envCfg.GoogleMapsAPIKey != "" {
		geo, err := geocode.New(geocode.Config{APIKey: envCfg.GoogleMapsAPIKey})
		if err != nil {
			return pipeline.Sources{}, err
		}
		sources.Geocode = geo
	}
	if envCfg.GeminiAPIKey != "" {
		res, err := research.New(ctx, research.Config{
			APIKey: envCfg.GeminiAPIKey,
			Model:  envCfg.GeminiModel,
		})
		if err != nil {
			return pipeline.Sources{}, err
		}
		sources.Research = res
	}
	return sources, nil
}

func serveMetrics(addr string, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Printf("metrics server stopped: %s", redact.Secrets(err.Error()))
	}
}

func printLeads(leads []lead.Scored) {
	if len(leads) == 0 {
		fmt.Println("no leads")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCORE\tNAME\tTITLE\tCOMPANY\tLOCATION\tEMAIL\tHUB")
	for _, l := range leads {
		r := l.Record
		if r.Status != lead.StatusScored {
			continue
		}
		loc := r.LocationNormalized
		if loc == "" {
			loc = r.Location
		}
		hub := ""
		if r.BiotechHub {
			hub = r.BiotechHubName
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.Score.Total, r.Name, r.Title, r.Company, loc, r.Email, hub)
	}
	_ = w.Flush()
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `leadpipe: lead enrichment and propensity-scoring pipeline

Usage:
  leadpipe <command> [flags]

Commands:
  run      Enrich and score candidates from a seeds file
  top      Show the best-scoring leads in the database
  version  Print the release version

Examples:
  leadpipe run --seeds candidates.yaml
  leadpipe top --limit 10

Environment:
  SERP_API_KEY         Company-discovery search API key (required)
  EMAIL_API_KEY        Email finder/verifier API key (required)
  PUBMED_EMAIL         Contact email sent to NCBI (recommended)
  PUBMED_API_KEY       Optional; raises the PubMed rate limit
  GOOGLE_MAPS_API_KEY  Optional; enables location normalization
  GEMINI_API_KEY       Optional; enables company research
  GEMINI_MODEL         Gemini model name (default gemini-2.0-flash)
  DATABASE_PATH        Lead database path (default leads.db)
  WORKERS, MAX_ATTEMPTS, REQUEST_TIMEOUT, METRICS_ADDR

`)
}
