// Package score computes the propensity score for a merged lead record.
// Scoring is a pure function: same record, same config, same result.
// Every signal returns exactly zero when its required fields are empty.
package score

import (
	"strings"

	"github.com/bioleads/lead-enrichment-pipeline/internal/lead"
)

type signal struct {
	name string
	fn   func(cfg Config, r lead.Record) int
}

// Evaluation order is fixed so the breakdown is stable across runs.
var signals = []signal{
	{"title_relevance", scoreTitle},
	{"publication_activity", scorePublications},
	{"location_quality", scoreLocation},
	{"company_presence", scoreCompany},
	{"email_availability", scoreEmail},
	{"research_depth", scoreResearch},
}

// Score computes the composite score for one record: the sum of the
// independent signal contributions, clamped to cfg.MaxScore.
func Score(cfg Config, r lead.Record) lead.ScoreResult {
	out := lead.ScoreResult{Breakdown: make([]lead.Contribution, 0, len(signals))}
	for _, s := range signals {
		points := s.fn(cfg, r)
		out.Breakdown = append(out.Breakdown, lead.Contribution{Signal: s.name, Points: points})
		out.Total += points
	}
	if out.Total > cfg.MaxScore {
		out.Total = cfg.MaxScore
	}
	if out.Total < 0 {
		out.Total = 0
	}
	return out
}

// scoreTitle matches the title against the configured role-relevance
// keyword lists: full weight for a high-relevance hit, half for medium,
// zero otherwise.
func scoreTitle(cfg Config, r lead.Record) int {
	title := strings.ToLower(strings.TrimSpace(r.Title))
	if title == "" || title == "unknown" {
		return 0
	}
	w := cfg.Weights.TitleRelevance
	for _, kw := range cfg.TitleHighKeywords {
		if strings.Contains(title, strings.ToLower(kw)) {
			return w
		}
	}
	for _, kw := range cfg.TitleMediumKeywords {
		if strings.Contains(title, strings.ToLower(kw)) {
			return w / 2
		}
	}
	return 0
}

// scorePublications is monotonic and saturating: contributions grow
// with publication count and flatten at the configured saturation
// threshold, so prolific authors cannot inflate the score without
// bound. Unknown counts and known zeros both contribute nothing.
func scorePublications(cfg Config, r lead.Record) int {
	if !r.PublicationCountKnown || r.PublicationCount <= 0 {
		return 0
	}
	w := cfg.Weights.PublicationActivity
	sat := cfg.PublicationSaturation
	if sat <= 0 {
		sat = 10
	}
	count := r.PublicationCount
	switch {
	case count >= sat:
		return w
	case count >= sat/2:
		return w * 3 / 4
	case count >= 2:
		return w / 2
	default:
		return w / 4
	}
}

func scoreLocation(cfg Config, r lead.Record) int {
	w := cfg.Weights.LocationQuality
	if r.BiotechHub {
		return w
	}
	if strings.TrimSpace(r.LocationNormalized) != "" {
		return w / 2
	}
	return 0
}

func scoreCompany(cfg Config, r lead.Record) int {
	w := cfg.Weights.CompanyPresence
	if strings.TrimSpace(r.CompanyDomain) != "" {
		return w
	}
	if strings.TrimSpace(r.CompanyWebsite) != "" {
		return w / 2
	}
	return 0
}

// scoreEmail contributes only for a verified email. Unverified or
// absent emails contribute exactly zero regardless of confidence.
func scoreEmail(cfg Config, r lead.Record) int {
	if !r.EmailVerified || strings.TrimSpace(r.Email) == "" {
		return 0
	}
	w := cfg.Weights.EmailAvailability
	switch {
	case r.EmailConfidence >= 80:
		return w
	case r.EmailConfidence >= 50:
		return w * 3 / 4
	default:
		return w / 2
	}
}

// scoreResearch grants a bounded bonus for free-form company research
// evidence.
func scoreResearch(cfg Config, r lead.Record) int {
	w := cfg.Weights.ResearchDepth
	points := 0
	if strings.TrimSpace(r.ResearchSummary) != "" {
		points += w / 2
	}
	if len(r.ResearchTechnologies) > 0 {
		points += w / 2
	}
	if points > w {
		points = w
	}
	return points
}
