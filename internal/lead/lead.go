// Package lead defines the data model shared across the enrichment
// pipeline: the input Candidate, the merged Record, and the attached
// score result.
package lead

// Candidate is an input seed identity. Immutable once created; one per
// pipeline iteration.
type Candidate struct {
	Name        string `yaml:"name"`
	Title       string `yaml:"title"`
	Affiliation string `yaml:"affiliation"`
	Location    string `yaml:"location"`
	ORCID       string `yaml:"orcid"`
}

// Status reports how far a candidate made it through the pipeline.
type Status string

const (
	// StatusScored means the candidate was merged and scored, possibly
	// from partial evidence.
	StatusScored Status = "scored"
	// StatusError means an internal error stopped this candidate; the
	// record may be empty.
	StatusError Status = "error"
	// StatusNotProcessed means the run was cancelled before this
	// candidate started. Not a failure.
	StatusNotProcessed Status = "not_processed"
)

// Record is the merged entity for one candidate after all source
// lookups. Every field is independently optional: a field is populated
// only when a source adapter returned Found for it through a source
// trusted to write that field. Nothing here is ever guessed.
//
// The field set matches the documented output columns: Name, Title,
// Company, Location, Email, Score, identity IDs, company domain/website,
// email source/confidence/verified, biotech hub flag/name.
type Record struct {
	Name  string
	Title string

	Company        string
	CompanySource  string
	CompanyDomain  string
	CompanyWebsite string

	Location           string
	LocationNormalized string
	BiotechHub         bool
	BiotechHubName     string

	ORCID    string
	ORCIDURL string

	Email           string
	EmailSource     string
	EmailConfidence int
	EmailVerified   bool

	// PublicationCount is valid only when PublicationCountKnown is true;
	// a known zero is evidence of absence, unknown is not.
	PublicationCount       int
	PublicationCountKnown  bool
	PublicationAffiliation string

	FundingAwards int

	ResearchSummary      string
	ResearchTechnologies []string

	Status      Status
	Diagnostics Diagnostics
}

// Diagnostics records which sources failed for a candidate so the
// caller can decide whether to retry the whole candidate later. It is
// never an input to scoring.
type Diagnostics struct {
	FailedSources []string
	SourceErrors  map[string]string
}

// Contribution is one signal's share of a propensity score.
type Contribution struct {
	Signal string
	Points int
}

// ScoreResult is a bounded composite score plus the ordered breakdown
// of contributing signals, used for explainability and testing.
type ScoreResult struct {
	Total     int
	Breakdown []Contribution
}

// Scored pairs a merged record with its score. This is the produced
// interface consumed by downstream ranking, persistence and export.
type Scored struct {
	Record Record
	Score  ScoreResult
}
