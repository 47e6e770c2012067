// Package pipeline drives candidates through source lookups, merging
// and scoring, with per-candidate failure isolation, per-source rate
// limiting and bounded retries.
package pipeline

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bioleads/lead-enrichment-pipeline/internal/lead"
	"github.com/bioleads/lead-enrichment-pipeline/internal/merge"
	"github.com/bioleads/lead-enrichment-pipeline/internal/metrics"
	"github.com/bioleads/lead-enrichment-pipeline/internal/score"
	"github.com/bioleads/lead-enrichment-pipeline/internal/source"
)

// Sources are the adapter clients the orchestrator consumes. Identity,
// Publications, Discovery and Email are required; the rest are optional
// and skipped when nil.
type Sources struct {
	Identity     source.IdentityClient
	Publications source.PublicationsClient
	Discovery    source.DiscoveryClient
	Email        source.EmailClient
	Geocode      source.GeocodeClient
	Funding      source.FundingClient
	Research     source.ResearchClient
}

type Options struct {
	// Workers bounds candidate-level parallelism.
	Workers int

	// RequestTimeout applies per adapter call.
	RequestTimeout time.Duration

	Retry RetryPolicy

	// SourceRates is the per-source request budget in requests/second.
	// Kinds without an entry are unthrottled.
	SourceRates map[source.Kind]float64
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	o.Retry = o.Retry.withDefaults()
	return o
}

type Orchestrator struct {
	sources Sources
	opts    Options
	limits  *limits
	scoring score.Config
	hubs    merge.Gazetteer
	logger  *log.Logger
	metrics *metrics.Metrics
	runID   string
}

// New validates configuration and builds an orchestrator. Missing
// required sources surface as a ConfigError before any candidate is
// processed: fail fast on setup, fail soft per candidate thereafter.
func New(sources Sources, scoring score.Config, hubs merge.Gazetteer, opts Options, logger *log.Logger, m *metrics.Metrics) (*Orchestrator, error) {
	switch {
	case sources.Identity == nil:
		return nil, &source.ConfigError{Source: source.KindIdentity, Reason: "client not configured"}
	case sources.Publications == nil:
		return nil, &source.ConfigError{Source: source.KindPublications, Reason: "client not configured"}
	case sources.Discovery == nil:
		return nil, &source.ConfigError{Source: source.KindDiscovery, Reason: "client not configured"}
	case sources.Email == nil:
		return nil, &source.ConfigError{Source: source.KindEmail, Reason: "client not configured"}
	}
	if scoring.MaxScore <= 0 {
		return nil, &source.ConfigError{Source: "scoring", Reason: "max score must be positive"}
	}
	opts = opts.withDefaults()
	return &Orchestrator{
		sources: sources,
		opts:    opts,
		limits:  newLimits(opts.SourceRates),
		scoring: scoring,
		hubs:    hubs,
		logger:  logger,
		metrics: m,
		runID:   uuid.NewString(),
	}, nil
}

// RunID identifies this orchestrator's run in logs and persistence.
func (o *Orchestrator) RunID() string { return o.runID }

// Run drives all candidates through the pipeline. The output preserves
// input order and always has one entry per candidate: scored on
// whatever evidence survived, or marked not-processed if cancellation
// stopped the candidate from starting. Per-candidate failures never
// abort the run.
func (o *Orchestrator) Run(ctx context.Context, candidates []lead.Candidate) []lead.Scored {
	o.logf("run start: candidates=%d workers=%d timeout=%s maxAttempts=%d",
		len(candidates), o.opts.Workers, o.opts.RequestTimeout, o.opts.Retry.MaxAttempts)
	start := time.Now()

	results := forEach(ctx, candidates, o.opts.Workers, func(ctx context.Context, idx int, c lead.Candidate) (lead.Scored, error) {
		return o.enrichOne(ctx, idx, c), nil
	})

	out := make([]lead.Scored, len(candidates))
	counts := map[lead.Status]int{}
	for i, res := range results {
		if !res.started {
			out[i] = lead.Scored{Record: lead.Record{
				Name:   strings.TrimSpace(candidates[i].Name),
				Title:  strings.TrimSpace(candidates[i].Title),
				Status: lead.StatusNotProcessed,
			}}
		} else {
			out[i] = res.out
		}
		counts[out[i].Record.Status]++
		o.metrics.IncCandidate(string(out[i].Record.Status))
	}

	o.logf("run complete: candidates=%d scored=%d errors=%d notProcessed=%d duration=%s",
		len(candidates), counts[lead.StatusScored], counts[lead.StatusError],
		counts[lead.StatusNotProcessed], time.Since(start).Round(time.Millisecond))
	return out
}

// enrichOne walks one candidate through the adapter states in
// dependency order: identity first, then the independent lookups, then
// company discovery, and email only once a domain is known.
func (o *Orchestrator) enrichOne(ctx context.Context, idx int, c lead.Candidate) lead.Scored {
	name := strings.TrimSpace(c.Name)
	var out merge.Outputs

	o.logf("candidate=%d name=%q state=adapting source=%s", idx, name, source.KindIdentity)
	out.Identity = callSource(ctx, o, source.KindIdentity, func(ctx context.Context) source.Result[source.Identity] {
		return o.sources.Identity.Lookup(ctx, source.IdentityQuery{Name: name, KnownID: c.ORCID})
	})

	affiliation := strings.TrimSpace(c.Affiliation)
	if out.Identity.IsFound() && strings.TrimSpace(out.Identity.Value.Employer) != "" {
		affiliation = strings.TrimSpace(out.Identity.Value.Employer)
	}

	// Publications, funding and company discovery have no data
	// dependency on each other and run concurrently.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o.logf("candidate=%d name=%q state=adapting source=%s", idx, name, source.KindPublications)
		out.Publications = callSource(gctx, o, source.KindPublications, func(ctx context.Context) source.Result[source.Publications] {
			return o.sources.Publications.Lookup(ctx, source.PublicationsQuery{Name: name, Affiliation: affiliation})
		})
		return nil
	})
	if o.sources.Funding != nil && affiliation != "" {
		g.Go(func() error {
			o.logf("candidate=%d name=%q state=adapting source=%s", idx, name, source.KindFunding)
			out.Funding = callSource(gctx, o, source.KindFunding, func(ctx context.Context) source.Result[source.Funding] {
				return o.sources.Funding.Lookup(ctx, source.FundingQuery{Organization: affiliation})
			})
			return nil
		})
	}
	if affiliation != "" {
		g.Go(func() error {
			o.logf("candidate=%d name=%q state=adapting source=%s", idx, name, source.KindDiscovery)
			out.Company = callSource(gctx, o, source.KindDiscovery, func(ctx context.Context) source.Result[source.Company] {
				return o.sources.Discovery.Lookup(ctx, source.DiscoveryQuery{Company: affiliation, Hint: c.Affiliation})
			})
			return nil
		})
		if o.sources.Research != nil {
			g.Go(func() error {
				o.logf("candidate=%d name=%q state=adapting source=%s", idx, name, source.KindResearch)
				out.Research = callSource(gctx, o, source.KindResearch, func(ctx context.Context) source.Result[source.Research] {
					return o.sources.Research.Lookup(ctx, source.ResearchQuery{Company: affiliation, Description: c.Affiliation})
				})
				return nil
			})
		}
	}
	_ = g.Wait()

	// Location normalization can use everything gathered so far; email
	// must wait for the discovery result and is gated on its domain.
	g, gctx = errgroup.WithContext(ctx)
	if o.sources.Geocode != nil {
		if raw := rawLocation(c, out); raw != "" {
			g.Go(func() error {
				o.logf("candidate=%d name=%q state=adapting source=%s", idx, name, source.KindGeocode)
				out.Location = callSource(gctx, o, source.KindGeocode, func(ctx context.Context) source.Result[source.Location] {
					return o.sources.Geocode.Lookup(ctx, source.GeocodeQuery{Raw: raw})
				})
				return nil
			})
		}
	}
	if out.Company.IsFound() && strings.TrimSpace(out.Company.Value.Domain) != "" {
		domain := strings.TrimSpace(out.Company.Value.Domain)
		g.Go(func() error {
			o.logf("candidate=%d name=%q state=adapting source=%s domain=%q", idx, name, source.KindEmail, domain)
			out.Email = callSource(gctx, o, source.KindEmail, func(ctx context.Context) source.Result[source.Email] {
				return o.sources.Email.Lookup(ctx, source.EmailQuery{Name: name, Domain: domain})
			})
			return nil
		})
	}
	_ = g.Wait()

	o.logf("candidate=%d name=%q state=merging", idx, name)
	record, err := merge.Merge(c, out, o.hubs)
	if err != nil {
		// A merge violation is a programming-error signal. Record it
		// against the candidate and keep the run going.
		o.logf("candidate=%d name=%q state=error error=%q", idx, name, err.Error())
		return lead.Scored{Record: lead.Record{
			Name:   name,
			Title:  strings.TrimSpace(c.Title),
			Status: lead.StatusError,
			Diagnostics: lead.Diagnostics{
				SourceErrors: map[string]string{"merge": err.Error()},
			},
		}}
	}

	o.logf("candidate=%d name=%q state=scoring", idx, name)
	sc := score.Score(o.scoring, record)
	record.Status = lead.StatusScored
	o.logf("candidate=%d name=%q state=done score=%d failedSources=%v",
		idx, name, sc.Total, record.Diagnostics.FailedSources)
	return lead.Scored{Record: record, Score: sc}
}

// rawLocation mirrors the merger's location priority: identity address,
// then company HQ, then candidate input.
func rawLocation(c lead.Candidate, out merge.Outputs) string {
	if out.Identity.IsFound() && strings.TrimSpace(out.Identity.Value.Address) != "" {
		return strings.TrimSpace(out.Identity.Value.Address)
	}
	if out.Company.IsFound() && strings.TrimSpace(out.Company.Value.HQ) != "" {
		return strings.TrimSpace(out.Company.Value.HQ)
	}
	return strings.TrimSpace(c.Location)
}

// callSource applies the shared per-source rate limit, the per-call
// timeout and the bounded retry policy to one adapter call. NotFound is
// never retried; Failed is retried only while the underlying error is
// transient and attempts remain.
func callSource[T any](ctx context.Context, o *Orchestrator, kind source.Kind, fn func(context.Context) source.Result[T]) source.Result[T] {
	pol := o.opts.Retry
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return source.Failed[T](err)
		}
		if err := o.limits.wait(ctx, kind); err != nil {
			return source.Failed[T](err)
		}

		reqCtx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
		start := time.Now()
		res := fn(reqCtx)
		cancel()
		o.metrics.ObserveLookup(string(kind), res.Status.String(), time.Since(start))

		if !res.IsFailed() {
			return res
		}
		if !source.IsTransient(res.Err) || attempt >= pol.MaxAttempts-1 {
			return res
		}
		o.metrics.IncRetry(string(kind))
		o.logf("source=%s attempt=%d retrying: %s", kind, attempt+1, res.Err)

		t := time.NewTimer(pol.backoff(attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return source.Failed[T](ctx.Err())
		}
	}
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.logger == nil {
		return
	}
	prefixed := make([]any, 0, len(args)+1)
	prefixed = append(prefixed, o.runID)
	prefixed = append(prefixed, args...)
	o.logger.Printf("run=%s "+format, prefixed...)
}
