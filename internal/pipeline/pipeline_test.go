package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioleads/lead-enrichment-pipeline/internal/lead"
	"github.com/bioleads/lead-enrichment-pipeline/internal/merge"
	"github.com/bioleads/lead-enrichment-pipeline/internal/score"
	"github.com/bioleads/lead-enrichment-pipeline/internal/source"
)

// fakeSource answers lookups from canned results and counts calls.
type fakeSource[Q any, T any] struct {
	mu      sync.Mutex
	calls   int
	results []source.Result[T] // consumed in order; last one repeats
	delay   time.Duration
	lastQ   Q
}

func (f *fakeSource[Q, T]) lookup(ctx context.Context, q Q) source.Result[T] {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.lastQ = q
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	res := f.results[i]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return source.Failed[T](ctx.Err())
		}
	}
	return res
}

func (f *fakeSource[Q, T]) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeIdentity struct {
	fakeSource[source.IdentityQuery, source.Identity]
}

func (f *fakeIdentity) Lookup(ctx context.Context, q source.IdentityQuery) source.Result[source.Identity] {
	return f.lookup(ctx, q)
}

type fakePublications struct {
	fakeSource[source.PublicationsQuery, source.Publications]
}

func (f *fakePublications) Lookup(ctx context.Context, q source.PublicationsQuery) source.Result[source.Publications] {
	return f.lookup(ctx, q)
}

type fakeDiscovery struct {
	fakeSource[source.DiscoveryQuery, source.Company]
}

func (f *fakeDiscovery) Lookup(ctx context.Context, q source.DiscoveryQuery) source.Result[source.Company] {
	return f.lookup(ctx, q)
}

type fakeEmail struct {
	fakeSource[source.EmailQuery, source.Email]
}

func (f *fakeEmail) Lookup(ctx context.Context, q source.EmailQuery) source.Result[source.Email] {
	return f.lookup(ctx, q)
}

func happySources() (Sources, *fakeIdentity, *fakePublications, *fakeDiscovery, *fakeEmail) {
	id := &fakeIdentity{}
	id.results = []source.Result[source.Identity]{source.Found(source.Identity{
		Name: "J. Smith", Employer: "Acme Bio", Address: "Boston, MA",
	})}
	pubs := &fakePublications{}
	pubs.results = []source.Result[source.Publications]{source.Found(source.Publications{Count: 8})}
	disc := &fakeDiscovery{}
	disc.results = []source.Result[source.Company]{source.Found(source.Company{
		Domain: "acmebio.example", Website: "https://acmebio.example",
	})}
	email := &fakeEmail{}
	email.results = []source.Result[source.Email]{source.Found(source.Email{
		Address: "j.smith@acmebio.example", Confidence: 90, Verified: true, Source: "finder",
	})}
	return Sources{Identity: id, Publications: pubs, Discovery: disc, Email: email}, id, pubs, disc, email
}

func newTestOrchestrator(t *testing.T, s Sources, opts Options) *Orchestrator {
	t.Helper()
	o, err := New(s, score.DefaultConfig(), merge.DefaultGazetteer(), opts, nil, nil)
	require.NoError(t, err)
	return o
}

func seed(name string) lead.Candidate {
	return lead.Candidate{Name: name, Title: "Toxicologist", Affiliation: "Acme Bio"}
}

func TestNewRequiresSources(t *testing.T) {
	s, _, _, _, _ := happySources()
	s.Discovery = nil
	_, err := New(s, score.DefaultConfig(), nil, Options{}, nil, nil)

	var ce *source.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, source.KindDiscovery, ce.Source)
}

func TestNewRequiresPositiveMaxScore(t *testing.T) {
	s, _, _, _, _ := happySources()
	_, err := New(s, score.Config{}, nil, Options{}, nil, nil)

	var ce *source.ConfigError
	require.ErrorAs(t, err, &ce)
}

func TestRunHappyPath(t *testing.T) {
	s, _, _, _, email := happySources()
	o := newTestOrchestrator(t, s, Options{})

	out := o.Run(context.Background(), []lead.Candidate{seed("J. Smith")})
	require.Len(t, out, 1)

	r := out[0].Record
	assert.Equal(t, lead.StatusScored, r.Status)
	assert.Equal(t, "Acme Bio", r.Company, "identity employer wins")
	assert.Equal(t, "acmebio.example", r.CompanyDomain)
	assert.Equal(t, "j.smith@acmebio.example", r.Email)
	assert.True(t, r.EmailVerified)
	assert.Equal(t, 8, r.PublicationCount)
	assert.True(t, r.BiotechHub)
	assert.Positive(t, out[0].Score.Total)
	assert.Equal(t, 1, email.callCount())
	assert.Equal(t, "acmebio.example", email.lastQ.Domain, "email query carries the discovered domain")
}

// Company discovery reporting NotFound means the email finder is never
// invoked, and the record is still scored on the remaining evidence.
func TestRunDiscoveryNotFoundSkipsEmail(t *testing.T) {
	s, _, _, disc, email := happySources()
	disc.results = []source.Result[source.Company]{source.NotFound[source.Company]()}
	o := newTestOrchestrator(t, s, Options{})

	out := o.Run(context.Background(), []lead.Candidate{seed("J. Smith")})
	require.Len(t, out, 1)

	r := out[0].Record
	assert.Equal(t, lead.StatusScored, r.Status)
	assert.Empty(t, r.CompanyDomain)
	assert.Empty(t, r.Email)
	assert.Zero(t, email.callCount(), "email lookup must not run without a domain")
	assert.Positive(t, out[0].Score.Total, "other signals still contribute")
	assert.Empty(t, r.Diagnostics.FailedSources, "not-found is not a failure")
}

// A source that keeps failing transiently exhausts its attempts; the
// candidate is still scored and the failure lands in diagnostics.
func TestRunTransientFailureExhaustsRetries(t *testing.T) {
	s, _, _, disc, email := happySources()
	disc.results = []source.Result[source.Company]{
		source.Failed[source.Company](source.Transientf("quota exceeded")),
	}
	o := newTestOrchestrator(t, s, Options{
		Retry: RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	})

	out := o.Run(context.Background(), []lead.Candidate{seed("J. Smith")})
	require.Len(t, out, 1)

	r := out[0].Record
	assert.Equal(t, lead.StatusScored, r.Status)
	assert.Equal(t, 3, disc.callCount())
	assert.Empty(t, r.CompanyDomain)
	assert.Zero(t, email.callCount())
	assert.Equal(t, []string{"discovery"}, r.Diagnostics.FailedSources)
	assert.Contains(t, r.Diagnostics.SourceErrors["discovery"], "quota exceeded")
}

func TestRunTransientFailureThenRecovery(t *testing.T) {
	s, _, _, disc, _ := happySources()
	disc.results = []source.Result[source.Company]{
		source.Failed[source.Company](source.Transientf("upstream 503")),
		source.Found(source.Company{Domain: "acmebio.example"}),
	}
	o := newTestOrchestrator(t, s, Options{
		Retry: RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	})

	out := o.Run(context.Background(), []lead.Candidate{seed("J. Smith")})
	require.Len(t, out, 1)

	assert.Equal(t, 2, disc.callCount())
	assert.Equal(t, "acmebio.example", out[0].Record.CompanyDomain)
	assert.Empty(t, out[0].Record.Diagnostics.FailedSources)
}

func TestRunNonTransientFailureIsNotRetried(t *testing.T) {
	s, _, pubs, _, _ := happySources()
	pubs.results = []source.Result[source.Publications]{
		source.Failed[source.Publications](errors.New("malformed response")),
	}
	o := newTestOrchestrator(t, s, Options{Retry: RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}})

	out := o.Run(context.Background(), []lead.Candidate{seed("J. Smith")})
	require.Len(t, out, 1)

	assert.Equal(t, 1, pubs.callCount())
	assert.False(t, out[0].Record.PublicationCountKnown)
	assert.Equal(t, []string{"publications"}, out[0].Record.Diagnostics.FailedSources)
}

// NotFound from every source still yields one scored record per
// candidate; empty evidence scores zero but never drops the candidate.
func TestRunAllNotFound(t *testing.T) {
	id := &fakeIdentity{}
	id.results = []source.Result[source.Identity]{source.NotFound[source.Identity]()}
	pubs := &fakePublications{}
	pubs.results = []source.Result[source.Publications]{source.NotFound[source.Publications]()}
	disc := &fakeDiscovery{}
	disc.results = []source.Result[source.Company]{source.NotFound[source.Company]()}
	email := &fakeEmail{}
	email.results = []source.Result[source.Email]{source.NotFound[source.Email]()}
	s := Sources{Identity: id, Publications: pubs, Discovery: disc, Email: email}
	o := newTestOrchestrator(t, s, Options{})

	out := o.Run(context.Background(), []lead.Candidate{{Name: "N. Obody"}})
	require.Len(t, out, 1)

	r := out[0].Record
	assert.Equal(t, lead.StatusScored, r.Status)
	assert.Equal(t, "N. Obody", r.Name)
	assert.Zero(t, out[0].Score.Total)
	assert.Zero(t, email.callCount())
}

// A candidate with no registry identity still gets company and email
// evidence through discovery; every downstream signal contributes.
func TestRunIdentityNotFoundStillEnriches(t *testing.T) {
	s, id, pubs, disc, email := happySources()
	id.results = []source.Result[source.Identity]{source.NotFound[source.Identity]()}
	pubs.results = []source.Result[source.Publications]{source.Found(source.Publications{Count: 12})}
	disc.results = []source.Result[source.Company]{source.Found(source.Company{Domain: "biolabs.com", Website: "https://biolabs.com"})}
	email.results = []source.Result[source.Email]{source.Found(source.Email{
		Address: "j.smith@biolabs.com", Confidence: 85, Verified: true, Source: "finder",
	})}
	o := newTestOrchestrator(t, s, Options{})

	c := lead.Candidate{Name: "J. Smith", Title: "Research Director", Affiliation: "BioLabs"}
	out := o.Run(context.Background(), []lead.Candidate{c})
	require.Len(t, out, 1)

	r := out[0].Record
	assert.Equal(t, "biolabs.com", r.CompanyDomain)
	assert.Equal(t, "j.smith@biolabs.com", r.Email)
	assert.Equal(t, 12, r.PublicationCount)
	assert.True(t, r.PublicationCountKnown)

	contributions := map[string]int{}
	for _, cb := range out[0].Score.Breakdown {
		contributions[cb.Signal] = cb.Points
	}
	assert.Positive(t, contributions["title_relevance"])
	assert.Positive(t, contributions["publication_activity"])
	assert.Positive(t, contributions["company_presence"])
	assert.Positive(t, contributions["email_availability"])
}

func TestRunPreservesInputOrder(t *testing.T) {
	s, _, _, _, _ := happySources()
	o := newTestOrchestrator(t, s, Options{Workers: 4})

	var candidates []lead.Candidate
	for i := 0; i < 32; i++ {
		candidates = append(candidates, seed(fmt.Sprintf("Candidate %02d", i)))
	}

	out := o.Run(context.Background(), candidates)
	require.Len(t, out, len(candidates))
	for i, res := range out {
		assert.Equal(t, candidates[i].Name, res.Record.Name, "slot %d", i)
		assert.Equal(t, lead.StatusScored, res.Record.Status)
	}
}

// Cancellation mid-run marks unstarted candidates not-processed and
// never loses a slot.
func TestRunCancellation(t *testing.T) {
	s, id, _, _, _ := happySources()
	id.delay = 50 * time.Millisecond
	o := newTestOrchestrator(t, s, Options{Workers: 1, Retry: RetryPolicy{MaxAttempts: 1}})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	var candidates []lead.Candidate
	for i := 0; i < 10; i++ {
		candidates = append(candidates, seed(fmt.Sprintf("Candidate %d", i)))
	}
	out := o.Run(ctx, candidates)
	require.Len(t, out, len(candidates))

	var notProcessed int
	for i, res := range out {
		assert.Equal(t, candidates[i].Name, res.Record.Name, "slot %d", i)
		if res.Record.Status == lead.StatusNotProcessed {
			notProcessed++
		}
	}
	assert.Positive(t, notProcessed, "later candidates never started")
}

func TestForEachBoundsConcurrency(t *testing.T) {
	const workers = 3
	var active, peak atomic.Int32

	items := make([]int, 24)
	forEach(context.Background(), items, workers, func(ctx context.Context, idx int, _ int) (int, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return idx, nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(workers))
}

func TestRetryBackoffGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: 500 * time.Millisecond}.withDefaults()

	assert.Equal(t, 100*time.Millisecond, p.backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.backoff(1))
	assert.Equal(t, 400*time.Millisecond, p.backoff(2))
	assert.Equal(t, 500*time.Millisecond, p.backoff(3))
	assert.Equal(t, 500*time.Millisecond, p.backoff(10))
}

func TestRetryBackoffJitterStaysInBand(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, JitterFrac: 0.2}
	for i := 0; i < 100; i++ {
		d := p.backoff(1)
		assert.GreaterOrEqual(t, d, 160*time.Millisecond)
		assert.LessOrEqual(t, d, 240*time.Millisecond)
	}
}

func TestLimitsUnknownKindIsUnthrottled(t *testing.T) {
	l := newLimits(map[source.Kind]float64{source.KindEmail: 1})

	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.wait(context.Background(), source.KindIdentity))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimitsThrottle(t *testing.T) {
	l := newLimits(map[source.Kind]float64{source.KindEmail: 100})

	start := time.Now()
	for i := 0; i < 6; i++ {
		require.NoError(t, l.wait(context.Background(), source.KindEmail))
	}
	// 100 rps with burst 1: six calls need roughly 50ms.
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
