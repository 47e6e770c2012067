package score

// Weights are the per-signal maximum contributions. They are business
// configuration, loaded as data rather than hard-coded.
type Weights struct {
	TitleRelevance      int `yaml:"title_relevance"`
	PublicationActivity int `yaml:"publication_activity"`
	LocationQuality     int `yaml:"location_quality"`
	CompanyPresence     int `yaml:"company_presence"`
	EmailAvailability   int `yaml:"email_availability"`
	ResearchDepth       int `yaml:"research_depth"`
}

// Config parameterizes the scorer.
type Config struct {
	MaxScore int     `yaml:"max_score"`
	Weights  Weights `yaml:"weights"`

	// PublicationSaturation is the count at which the publication signal
	// reaches full weight.
	PublicationSaturation int `yaml:"publication_saturation"`

	TitleHighKeywords   []string `yaml:"title_high_keywords"`
	TitleMediumKeywords []string `yaml:"title_medium_keywords"`
}

// DefaultConfig returns the shipped scoring configuration.
func DefaultConfig() Config {
	return Config{
		MaxScore: 100,
		Weights: Weights{
			TitleRelevance:      30,
			PublicationActivity: 25,
			LocationQuality:     15,
			CompanyPresence:     10,
			EmailAvailability:   10,
			ResearchDepth:       10,
		},
		PublicationSaturation: 10,
		TitleHighKeywords: []string{
			"toxicology", "toxicologist", "safety", "drug safety",
			"preclinical", "hepatic", "liver", "dili", "3d", "in vitro",
		},
		TitleMediumKeywords: []string{
			"director", "senior", "lead", "principal", "head",
			"phd", "md", "scientist", "research", "pharmacology",
		},
	}
}
