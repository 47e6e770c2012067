// Package config loads runtime settings: credentials and pipeline
// knobs from the environment, scoring weights, hub gazetteer and rate
// budgets from an optional YAML file, and candidate seeds from YAML.
// Scoring constants are data, not code.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/bioleads/lead-enrichment-pipeline/internal/lead"
	"github.com/bioleads/lead-enrichment-pipeline/internal/merge"
	"github.com/bioleads/lead-enrichment-pipeline/internal/score"
	"github.com/bioleads/lead-enrichment-pipeline/internal/source"
)

// Env holds settings read from the process environment.
type Env struct {
	Workers        int           `env:"WORKERS" envDefault:"8"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	DatabasePath   string        `env:"DATABASE_PATH" envDefault:"leads.db"`
	MetricsAddr    string        `env:"METRICS_ADDR"`

	PubMedEmail      string `env:"PUBMED_EMAIL"`
	PubMedAPIKey     string `env:"PUBMED_API_KEY"`
	SerpAPIKey       string `env:"SERP_API_KEY"`
	EmailAPIKey      string `env:"EMAIL_API_KEY"`
	GoogleMapsAPIKey string `env:"GOOGLE_MAPS_API_KEY"`
	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	GeminiModel      string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
}

func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("config: parse environment: %w", err)
	}
	return e, nil
}

// File is the optional YAML configuration for business data: scoring
// weights, the biotech-hub gazetteer and per-source rate budgets.
type File struct {
	Scoring score.Config       `yaml:"scoring"`
	Hubs    []string           `yaml:"biotech_hubs"`
	Rates   map[string]float64 `yaml:"rate_limits"`
}

// DefaultFile returns the shipped business configuration.
func DefaultFile() File {
	return File{
		Scoring: score.DefaultConfig(),
		Hubs:    merge.DefaultGazetteer(),
		Rates: map[string]float64{
			string(source.KindIdentity):     1,
			string(source.KindPublications): 3,
			string(source.KindDiscovery):    1,
			string(source.KindEmail):        1,
			string(source.KindGeocode):      5,
			string(source.KindFunding):      1,
			string(source.KindResearch):     1,
		},
	}
}

// LoadFile reads the YAML config at path. An empty path returns the
// defaults; keys present in the file override defaults wholesale.
func LoadFile(path string) (File, error) {
	f := DefaultFile()
	if path == "" {
		return f, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &f); err != nil {
		return File{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if f.Scoring.MaxScore <= 0 {
		return File{}, fmt.Errorf("config: %s: scoring.max_score must be positive", path)
	}
	return f, nil
}

// Gazetteer returns the hub list as a merge gazetteer.
func (f File) Gazetteer() merge.Gazetteer {
	return merge.Gazetteer(f.Hubs)
}

// SourceRates converts the rate table to source kinds.
func (f File) SourceRates() map[source.Kind]float64 {
	out := make(map[source.Kind]float64, len(f.Rates))
	for k, v := range f.Rates {
		out[source.Kind(k)] = v
	}
	return out
}

type seedsFile struct {
	Candidates []lead.Candidate `yaml:"candidates"`
}

// LoadSeeds reads candidate seeds from a YAML file.
func LoadSeeds(path string) ([]lead.Candidate, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read seeds %s: %w", path, err)
	}
	var sf seedsFile
	if err := yaml.Unmarshal(b, &sf); err != nil {
		return nil, fmt.Errorf("config: parse seeds %s: %w", path, err)
	}
	if len(sf.Candidates) == 0 {
		return nil, fmt.Errorf("config: seeds %s: no candidates", path)
	}
	return sf.Candidates, nil
}
