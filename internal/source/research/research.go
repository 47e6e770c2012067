// Package research gathers free-form company evidence with Gemini,
// using web-search grounding and a structured JSON response. Its output
// feeds the bounded research-depth scoring signal; it never writes
// identity, domain or email fields.
package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/genai"

	"github.com/bioleads/lead-enrichment-pipeline/internal/source"
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies and
	// testing.
	BaseURL string

	// CaptureSources controls whether grounding URLs are kept on the
	// result.
	CaptureSources bool
}

type Client struct {
	client         *genai.Client
	model          string
	captureSources bool
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &source.ConfigError{Source: source.KindResearch, Reason: "missing API key"}
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, &source.ConfigError{Source: source.KindResearch, Reason: "missing model name"}
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Client{
		client:         client,
		model:          strings.TrimSpace(cfg.Model),
		captureSources: cfg.CaptureSources,
	}, nil
}

type responseSchema struct {
	Summary         string   `json:"summary"`
	Technologies    []string `json:"technologies"`
	UsesSimilarTech bool     `json:"uses_similar_tech"`
}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary":           {Type: genai.TypeString},
		"technologies":      {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"uses_similar_tech": {Type: genai.TypeBoolean},
	},
	Required: []string{"summary", "technologies", "uses_similar_tech"},
}

func (c *Client) Lookup(ctx context.Context, q source.ResearchQuery) source.Result[source.Research] {
	company := strings.TrimSpace(q.Company)
	if company == "" {
		return source.NotFound[source.Research]()
	}

	resp, err := c.client.Models.GenerateContent(
		ctx,
		c.model,
		genai.Text(buildPrompt(company, q.Description)),
		&genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{GoogleSearch: &genai.GoogleSearch{}},
				{URLContext: &genai.URLContext{}},
			},
			CandidateCount:   1,
			ResponseMIMEType: "application/json",
			ResponseSchema:   outputSchema,
		},
	)
	if err != nil {
		return source.Failed[source.Research](classifyErr(err))
	}

	var parsed responseSchema
	if err := json.Unmarshal([]byte(resp.Text()), &parsed); err != nil {
		return source.Failed[source.Research](fmt.Errorf("research: parse structured json: %w", err))
	}
	if strings.TrimSpace(parsed.Summary) == "" && len(parsed.Technologies) == 0 {
		return source.NotFound[source.Research]()
	}

	out := source.Research{
		Summary:         strings.TrimSpace(parsed.Summary),
		Technologies:    trimAll(parsed.Technologies),
		UsesSimilarTech: parsed.UsesSimilarTech,
	}
	if c.captureSources {
		out.Sources = extractSources(resp)
	}
	return source.Found(out)
}

func buildPrompt(company, description string) string {
	// Keep this prompt public-safe: no secrets, no PII beyond the
	// company identity required for the search.
	var b strings.Builder
	b.WriteString(strings.TrimSpace(`
You are a company research tool. Given a life-sciences company or institution, use web search and URL context to summarize its research focus.

Return ONLY a single JSON object with these keys:
- summary (string; 1-2 sentences on research focus, empty if nothing found)
- technologies (array of strings; lab technologies the organization publicly uses)
- uses_similar_tech (boolean; true if it works with 3D cell culture, organoids, or in-vitro toxicology models)

Rules:
- Only report information you actually found. If nothing is found, use an empty summary and empty array.
- Do not include extra keys.

Company: `))
	b.WriteString(company)
	if d := strings.TrimSpace(description); d != "" {
		b.WriteString("\nContext: ")
		b.WriteString(d)
	}
	return b.String()
}

func classifyErr(err error) error {
	// Wrap transient failures so the orchestrator retries with backoff.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &source.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &source.TransientError{Err: err}
	}
	return err
}

func extractSources(resp *genai.GenerateContentResponse) []string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	c := resp.Candidates[0]
	if c.GroundingMetadata == nil {
		return nil
	}
	var out []string
	seen := make(map[string]struct{})
	for _, chunk := range c.GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		uri := strings.TrimSpace(chunk.Web.URI)
		if uri == "" {
			continue
		}
		if _, ok := seen[uri]; ok {
			continue
		}
		seen[uri] = struct{}{}
		out = append(out, uri)
	}
	return out
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
