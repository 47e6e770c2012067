// Package source defines the contracts shared by all external data
// sources: the tagged lookup result, the source kinds, and the error
// taxonomy the orchestrator's retry policy relies on.
package source

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind identifies one external source type. Rate limits and retry
// accounting are keyed by Kind, not by individual call.
type Kind string

const (
	KindIdentity     Kind = "identity"
	KindPublications Kind = "publications"
	KindDiscovery    Kind = "discovery"
	KindEmail        Kind = "email"
	KindGeocode      Kind = "geocode"
	KindFunding      Kind = "funding"
	KindResearch     Kind = "research"
)

// Status tags the outcome of one adapter call.
type Status int

const (
	// StatusNone means the adapter was never invoked for this candidate.
	// The merger treats it like absence of evidence.
	StatusNone Status = iota
	StatusFound
	StatusNotFound
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusFailed:
		return "failed"
	default:
		return "none"
	}
}

// Result is the outcome of one adapter lookup. "Not found" and "error"
// are never conflated: NotFound is evidence of absence and contributes
// nothing; Failed must not silently zero out a field a retry might
// still fill.
type Result[T any] struct {
	Status Status
	Value  T
	Err    error
}

func Found[T any](v T) Result[T] {
	return Result[T]{Status: StatusFound, Value: v}
}

func NotFound[T any]() Result[T] {
	return Result[T]{Status: StatusNotFound}
}

func Failed[T any](err error) Result[T] {
	return Result[T]{Status: StatusFailed, Err: err}
}

func (r Result[T]) IsFound() bool    { return r.Status == StatusFound }
func (r Result[T]) IsNotFound() bool { return r.Status == StatusNotFound }
func (r Result[T]) IsFailed() bool   { return r.Status == StatusFailed }

// Identity is the identity-registry payload.
type Identity struct {
	Name     string
	Title    string
	Employer string
	Address  string
	ORCID    string
	URL      string
}

// Publications is the publication-index payload. A Found result with
// Count zero is a valid observation, distinct from NotFound.
type Publications struct {
	Count       int
	Affiliation string
}

// Company is the company-discovery payload. Domain and Website come
// only from discovery results, never from a pattern guess.
type Company struct {
	Domain  string
	Website string
	HQ      string
}

// Email is the email-verification payload. Verified reflects the
// provider's verification call, not a heuristic.
type Email struct {
	Address    string
	Confidence int
	Verified   bool
	Source     string
}

// Location is the geocode/normalize payload.
type Location struct {
	Normalized string
}

// Funding is the funding-source payload.
type Funding struct {
	Awards   int
	TotalUSD float64
}

// Research is free-form company research evidence.
type Research struct {
	Summary         string
	Technologies    []string
	UsesSimilarTech bool
	Sources         []string
}

type IdentityQuery struct {
	Name    string
	KnownID string
}

type PublicationsQuery struct {
	Name        string
	Affiliation string
}

type DiscoveryQuery struct {
	Company string
	Hint    string
}

// EmailQuery requires a verified domain. Adapters are never handed a
// query without one; the merger enforces the same gate independently.
type EmailQuery struct {
	Name   string
	Domain string
}

type GeocodeQuery struct {
	Raw string
}

type FundingQuery struct {
	Organization string
}

type ResearchQuery struct {
	Company     string
	Description string
}

// Client contracts consumed by the orchestrator. Every lookup is
// idempotent and safe to call repeatedly with identical input. Failures
// and absence are data, not control flow.
type (
	IdentityClient interface {
		Lookup(ctx context.Context, q IdentityQuery) Result[Identity]
	}
	PublicationsClient interface {
		Lookup(ctx context.Context, q PublicationsQuery) Result[Publications]
	}
	DiscoveryClient interface {
		Lookup(ctx context.Context, q DiscoveryQuery) Result[Company]
	}
	EmailClient interface {
		Lookup(ctx context.Context, q EmailQuery) Result[Email]
	}
	GeocodeClient interface {
		Lookup(ctx context.Context, q GeocodeQuery) Result[Location]
	}
	FundingClient interface {
		Lookup(ctx context.Context, q FundingQuery) Result[Funding]
	}
	ResearchClient interface {
		Lookup(ctx context.Context, q ResearchQuery) Result[Research]
	}
)

// TransientError marks a failure as retryable with backoff: quota,
// auth, transport. Wrapping is done by adapters at classification time.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Transientf wraps a formatted error as transient.
func Transientf(format string, args ...any) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether an adapter failure is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// ConfigError reports missing required credentials or configuration for
// one source. It is fatal for that source only: all of its lookups
// short-circuit to Failed without network calls.
type ConfigError struct {
	Source Kind
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("source %s: config: %s", e.Source, e.Reason)
}

// ClassifyHTTP maps an HTTP status to the adapter error taxonomy.
// Quota, auth and server errors are transient; everything else is a
// plain failure.
func ClassifyHTTP(kind Kind, status int) error {
	switch {
	case status == 401 || status == 403 || status == 429 || status >= 500:
		return Transientf("%s: upstream status %d", kind, status)
	default:
		return fmt.Errorf("%s: upstream status %d", kind, status)
	}
}
