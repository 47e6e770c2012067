// Package merge combines adapter outputs for one candidate into a
// single lead record. The one rule everywhere: leave a field empty
// rather than guess it.
package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bioleads/lead-enrichment-pipeline/internal/lead"
	"github.com/bioleads/lead-enrichment-pipeline/internal/source"
)

// Outputs holds the per-source results gathered for one candidate.
// A zero Result (StatusNone) means the adapter was never invoked.
type Outputs struct {
	Identity     source.Result[source.Identity]
	Publications source.Result[source.Publications]
	Company      source.Result[source.Company]
	Email        source.Result[source.Email]
	Location     source.Result[source.Location]
	Funding      source.Result[source.Funding]
	Research     source.Result[source.Research]
}

// Violation is a programming-error signal: an adapter tried to populate
// a gated field without its precondition. It must never occur in
// correct operation and is not a runtime condition to recover from.
type Violation struct {
	Field  string
	Reason string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("merge violation: field %s: %s", v.Field, v.Reason)
}

// fieldRule populates one logical field group from its trusted source.
// Rules run in order; each writes only fields that are still empty, so
// the first populated source wins and later sources never overwrite.
type fieldRule struct {
	name  string
	apply func(r *lead.Record, c lead.Candidate, out Outputs, hubs Gazetteer) error
}

var rules = []fieldRule{
	{"name", applyName},
	{"title", applyTitle},
	{"identity_id", applyIdentityID},
	{"company", applyCompany},
	{"publications", applyPublications},
	{"location", applyLocation},
	{"email", applyEmail},
	{"funding", applyFunding},
	{"research", applyResearch},
}

// Merge builds the lead record for one candidate. It is a pure function
// of its inputs: merging the same outputs twice yields the same record.
// The only error it can return is a *Violation.
func Merge(c lead.Candidate, out Outputs, hubs Gazetteer) (lead.Record, error) {
	var r lead.Record
	for _, rule := range rules {
		if err := rule.apply(&r, c, out, hubs); err != nil {
			return lead.Record{}, err
		}
	}
	r.Diagnostics = diagnose(out)
	return r, nil
}

func applyName(r *lead.Record, c lead.Candidate, out Outputs, _ Gazetteer) error {
	r.Name = strings.TrimSpace(c.Name)
	if out.Identity.IsFound() && strings.TrimSpace(out.Identity.Value.Name) != "" {
		r.Name = strings.TrimSpace(out.Identity.Value.Name)
	}
	return nil
}

func applyTitle(r *lead.Record, c lead.Candidate, out Outputs, _ Gazetteer) error {
	r.Title = strings.TrimSpace(c.Title)
	if r.Title == "" && out.Identity.IsFound() {
		r.Title = strings.TrimSpace(out.Identity.Value.Title)
	}
	return nil
}

func applyIdentityID(r *lead.Record, c lead.Candidate, out Outputs, _ Gazetteer) error {
	if out.Identity.IsFound() {
		r.ORCID = strings.TrimSpace(out.Identity.Value.ORCID)
		r.ORCIDURL = strings.TrimSpace(out.Identity.Value.URL)
	}
	if r.ORCID == "" {
		r.ORCID = strings.TrimSpace(c.ORCID)
	}
	return nil
}

// applyCompany writes company name from candidate/identity evidence and
// domain/website only from the discovery adapter. NotFound or Failed
// discovery leaves them empty; there is no fallback guessing.
func applyCompany(r *lead.Record, c lead.Candidate, out Outputs, _ Gazetteer) error {
	switch {
	case out.Identity.IsFound() && strings.TrimSpace(out.Identity.Value.Employer) != "":
		r.Company = strings.TrimSpace(out.Identity.Value.Employer)
		r.CompanySource = "identity"
	case strings.TrimSpace(c.Affiliation) != "":
		r.Company = strings.TrimSpace(c.Affiliation)
		r.CompanySource = "candidate"
	}
	if out.Company.IsFound() {
		r.CompanyDomain = strings.TrimSpace(out.Company.Value.Domain)
		r.CompanyWebsite = strings.TrimSpace(out.Company.Value.Website)
	}
	return nil
}

func applyPublications(r *lead.Record, _ lead.Candidate, out Outputs, _ Gazetteer) error {
	if !out.Publications.IsFound() {
		return nil
	}
	// A found zero is a real observation, distinct from unknown.
	r.PublicationCount = out.Publications.Value.Count
	r.PublicationCountKnown = true
	r.PublicationAffiliation = strings.TrimSpace(out.Publications.Value.Affiliation)
	return nil
}

// applyLocation picks the raw location from the first non-empty of
// identity address, company HQ and candidate input, takes the
// normalized form from the geocode adapter, and tags biotech hubs from
// the fixed gazetteer.
func applyLocation(r *lead.Record, c lead.Candidate, out Outputs, hubs Gazetteer) error {
	candidates := []string{}
	if out.Identity.IsFound() {
		candidates = append(candidates, out.Identity.Value.Address)
	}
	if out.Company.IsFound() {
		candidates = append(candidates, out.Company.Value.HQ)
	}
	candidates = append(candidates, c.Location)
	for _, loc := range candidates {
		if strings.TrimSpace(loc) != "" {
			r.Location = strings.TrimSpace(loc)
			break
		}
	}

	if out.Location.IsFound() {
		r.LocationNormalized = strings.TrimSpace(out.Location.Value.Normalized)
	}

	tagFrom := r.LocationNormalized
	if tagFrom == "" {
		tagFrom = r.Location
	}
	if hub, ok := hubs.Match(tagFrom); ok {
		r.BiotechHub = true
		r.BiotechHubName = hub
	}
	return nil
}

// applyEmail is gated: email fields populate only when a company domain
// is already present, and only from a Found, verified result. The gate
// lives here, not in adapter discretion.
func applyEmail(r *lead.Record, _ lead.Candidate, out Outputs, _ Gazetteer) error {
	if !out.Email.IsFound() {
		return nil
	}
	if r.CompanyDomain == "" {
		return &Violation{Field: "email", Reason: "email result present without a company domain"}
	}
	v := out.Email.Value
	if !v.Verified || strings.TrimSpace(v.Address) == "" {
		return nil
	}
	r.Email = strings.TrimSpace(v.Address)
	r.EmailSource = strings.TrimSpace(v.Source)
	r.EmailConfidence = v.Confidence
	r.EmailVerified = true
	return nil
}

func applyFunding(r *lead.Record, _ lead.Candidate, out Outputs, _ Gazetteer) error {
	if out.Funding.IsFound() {
		r.FundingAwards = out.Funding.Value.Awards
	}
	return nil
}

func applyResearch(r *lead.Record, _ lead.Candidate, out Outputs, _ Gazetteer) error {
	if !out.Research.IsFound() {
		return nil
	}
	r.ResearchSummary = strings.TrimSpace(out.Research.Value.Summary)
	r.ResearchTechnologies = append([]string(nil), out.Research.Value.Technologies...)
	return nil
}

func diagnose(out Outputs) lead.Diagnostics {
	failed := map[source.Kind]error{}
	record := func(kind source.Kind, status source.Status, err error) {
		if status == source.StatusFailed {
			failed[kind] = err
		}
	}
	record(source.KindIdentity, out.Identity.Status, out.Identity.Err)
	record(source.KindPublications, out.Publications.Status, out.Publications.Err)
	record(source.KindDiscovery, out.Company.Status, out.Company.Err)
	record(source.KindEmail, out.Email.Status, out.Email.Err)
	record(source.KindGeocode, out.Location.Status, out.Location.Err)
	record(source.KindFunding, out.Funding.Status, out.Funding.Err)
	record(source.KindResearch, out.Research.Status, out.Research.Err)

	if len(failed) == 0 {
		return lead.Diagnostics{}
	}
	d := lead.Diagnostics{SourceErrors: make(map[string]string, len(failed))}
	for kind, err := range failed {
		d.FailedSources = append(d.FailedSources, string(kind))
		if err != nil {
			d.SourceErrors[string(kind)] = err.Error()
		}
	}
	sort.Strings(d.FailedSources)
	return d
}
