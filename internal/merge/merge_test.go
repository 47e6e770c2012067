package merge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioleads/lead-enrichment-pipeline/internal/lead"
	"github.com/bioleads/lead-enrichment-pipeline/internal/source"
)

var testCandidate = lead.Candidate{
	Name:        "Jane Doe",
	Title:       "Principal Toxicologist",
	Affiliation: "Hepatica Bio",
	Location:    "Cambridge, MA",
}

func fullOutputs() Outputs {
	return Outputs{
		Identity: source.Found(source.Identity{
			Name:     "Jane A. Doe",
			ORCID:    "0000-0001-2345-6789",
			URL:      "https://orcid.org/0000-0001-2345-6789",
			Employer: "Hepatica Biosciences",
			Address:  "Cambridge, MA, US",
		}),
		Publications: source.Found(source.Publications{Count: 12, Affiliation: "Hepatica Biosciences"}),
		Company: source.Found(source.Company{
			Domain:  "hepatica.example",
			Website: "https://hepatica.example",
			HQ:      "Boston, MA",
		}),
		Email: source.Found(source.Email{
			Address:    "jane.doe@hepatica.example",
			Confidence: 92,
			Verified:   true,
			Source:     "finder",
		}),
		Location: source.Found(source.Location{Normalized: "Cambridge, MA, USA"}),
		Funding:  source.Found(source.Funding{Awards: 3}),
		Research: source.Found(source.Research{
			Summary:      "Builds 3D liver models.",
			Technologies: []string{"organoids", "microfluidics"},
		}),
	}
}

func TestMergeFullEvidence(t *testing.T) {
	r, err := Merge(testCandidate, fullOutputs(), DefaultGazetteer())
	require.NoError(t, err)

	assert.Equal(t, "Jane A. Doe", r.Name)
	assert.Equal(t, "Principal Toxicologist", r.Title)
	assert.Equal(t, "0000-0001-2345-6789", r.ORCID)
	assert.Equal(t, "Hepatica Biosciences", r.Company)
	assert.Equal(t, "identity", r.CompanySource)
	assert.Equal(t, "hepatica.example", r.CompanyDomain)
	assert.Equal(t, "jane.doe@hepatica.example", r.Email)
	assert.True(t, r.EmailVerified)
	assert.Equal(t, 12, r.PublicationCount)
	assert.True(t, r.PublicationCountKnown)
	assert.Equal(t, "Cambridge, MA, US", r.Location)
	assert.Equal(t, "Cambridge, MA, USA", r.LocationNormalized)
	assert.True(t, r.BiotechHub)
	assert.Equal(t, "Cambridge, MA", r.BiotechHubName)
	assert.Equal(t, 3, r.FundingAwards)
	assert.Equal(t, "Builds 3D liver models.", r.ResearchSummary)
	assert.Empty(t, r.Diagnostics.FailedSources)
}

func TestMergeIsIdempotent(t *testing.T) {
	out := fullOutputs()
	first, err := Merge(testCandidate, out, DefaultGazetteer())
	require.NoError(t, err)
	second, err := Merge(testCandidate, out, DefaultGazetteer())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMergeEmptyOutputsKeepsCandidateFields(t *testing.T) {
	r, err := Merge(testCandidate, Outputs{}, DefaultGazetteer())
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe", r.Name)
	assert.Equal(t, "Principal Toxicologist", r.Title)
	assert.Equal(t, "Hepatica Bio", r.Company)
	assert.Equal(t, "candidate", r.CompanySource)
	assert.Empty(t, r.CompanyDomain)
	assert.Empty(t, r.Email)
	assert.False(t, r.PublicationCountKnown)
	assert.Equal(t, "Cambridge, MA", r.Location)
	assert.True(t, r.BiotechHub, "raw location still matches the gazetteer")
}

// Fields from a source that returned NotFound or Failed stay empty;
// absence of evidence is never replaced with a guess.
func TestMergeNeverGuesses(t *testing.T) {
	out := fullOutputs()
	out.Company = source.NotFound[source.Company]()
	out.Email = source.Result[source.Email]{} // gated on company; never invoked
	out.Publications = source.Failed[source.Publications](errors.New("upstream 500"))

	r, err := Merge(testCandidate, out, DefaultGazetteer())
	require.NoError(t, err)

	assert.Empty(t, r.CompanyDomain)
	assert.Empty(t, r.CompanyWebsite)
	assert.Empty(t, r.Email)
	assert.Zero(t, r.PublicationCount)
	assert.False(t, r.PublicationCountKnown)
	// NotFound is not a failure; only the failed source is diagnosed.
	assert.Equal(t, []string{"publications"}, r.Diagnostics.FailedSources)
	assert.Contains(t, r.Diagnostics.SourceErrors["publications"], "upstream 500")
}

func TestMergeFoundZeroPublicationsIsKnown(t *testing.T) {
	out := Outputs{Publications: source.Found(source.Publications{Count: 0})}
	r, err := Merge(testCandidate, out, DefaultGazetteer())
	require.NoError(t, err)

	assert.Zero(t, r.PublicationCount)
	assert.True(t, r.PublicationCountKnown)
}

func TestMergeEmailWithoutDomainIsViolation(t *testing.T) {
	out := Outputs{
		Email: source.Found(source.Email{Address: "jane@x.example", Verified: true}),
	}
	_, err := Merge(testCandidate, out, DefaultGazetteer())

	var v *Violation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "email", v.Field)
}

func TestMergeUnverifiedEmailStaysEmpty(t *testing.T) {
	out := fullOutputs()
	out.Email = source.Found(source.Email{Address: "jane@x.example", Confidence: 90, Verified: false})

	r, err := Merge(testCandidate, out, DefaultGazetteer())
	require.NoError(t, err)
	assert.Empty(t, r.Email)
	assert.False(t, r.EmailVerified)
}

func TestMergeLocationPriority(t *testing.T) {
	// Identity address wins over company HQ and candidate input.
	out := fullOutputs()
	r, err := Merge(testCandidate, out, DefaultGazetteer())
	require.NoError(t, err)
	assert.Equal(t, "Cambridge, MA, US", r.Location)

	// Without an identity address, company HQ wins.
	out.Identity = source.Found(source.Identity{Name: "Jane A. Doe"})
	r, err = Merge(testCandidate, out, DefaultGazetteer())
	require.NoError(t, err)
	assert.Equal(t, "Boston, MA", r.Location)

	// With neither, the candidate input is used as-is.
	out.Company = source.NotFound[source.Company]()
	out.Email = source.Result[source.Email]{}
	r, err = Merge(testCandidate, out, DefaultGazetteer())
	require.NoError(t, err)
	assert.Equal(t, "Cambridge, MA", r.Location)
}

func TestMergeDiagnosticsSorted(t *testing.T) {
	out := Outputs{
		Identity:     source.Failed[source.Identity](errors.New("timeout")),
		Publications: source.Failed[source.Publications](errors.New("timeout")),
		Funding:      source.Failed[source.Funding](errors.New("timeout")),
	}
	r, err := Merge(testCandidate, out, DefaultGazetteer())
	require.NoError(t, err)
	assert.Equal(t, []string{"funding", "identity", "publications"}, r.Diagnostics.FailedSources)
}

func TestGazetteerMatch(t *testing.T) {
	g := DefaultGazetteer()

	tests := []struct {
		location string
		wantHub  string
		wantOK   bool
	}{
		{"Cambridge, MA, USA", "Cambridge, MA", true},
		{"cambridge, ma", "Cambridge, MA", true},
		{"Basel, Switzerland", "Basel, Switzerland", true},
		{"Des Moines, IA", "", false},
		{"", "", false},
		{"   ", "", false},
	}
	for _, tt := range tests {
		hub, ok := g.Match(tt.location)
		assert.Equal(t, tt.wantOK, ok, "location %q", tt.location)
		assert.Equal(t, tt.wantHub, hub, "location %q", tt.location)
	}
}
