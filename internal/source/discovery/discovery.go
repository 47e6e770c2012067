// Package discovery finds a company's official website and registrable
// domain through a SerpAPI-compatible search endpoint. Domains come
// only from actual search results; nothing is derived from name
// templates.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bioleads/lead-enrichment-pipeline/internal/source"
)

const DefaultBaseURL = "https://serpapi.com"

// aggregators are hosts that describe companies without being them.
var aggregators = []string{
	"linkedin.com", "wikipedia.org", "facebook.com", "twitter.com",
	"crunchbase.com", "bloomberg.com", "glassdoor.com", "indeed.com",
}

type Config struct {
	APIKey     string
	Engine     string
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	apiKey  string
	engine  string
	baseURL string
	http    *http.Client
}

// New fails with a ConfigError when no API key is configured; a client
// built from a bad config would only ever produce Failed lookups.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &source.ConfigError{Source: source.KindDiscovery, Reason: "missing API key"}
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	engine := strings.TrimSpace(cfg.Engine)
	if engine == "" {
		engine = "google"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{apiKey: strings.TrimSpace(cfg.APIKey), engine: engine, baseURL: base, http: hc}, nil
}

type searchResponse struct {
	KnowledgeGraph struct {
		Website string `json:"website"`
		Address string `json:"address"`
	} `json:"knowledge_graph"`
	OrganicResults []struct {
		Link string `json:"link"`
	} `json:"organic_results"`
}

// Lookup finds the official website for a company name. No usable
// search hit is NotFound, never a guessed domain.
func (c *Client) Lookup(ctx context.Context, q source.DiscoveryQuery) source.Result[source.Company] {
	company := strings.TrimSpace(q.Company)
	if company == "" {
		return source.NotFound[source.Company]()
	}

	params := url.Values{}
	params.Set("engine", c.engine)
	params.Set("q", fmt.Sprintf("%q official website", company))
	params.Set("num", "5")
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search.json?"+params.Encode(), nil)
	if err != nil {
		return source.Failed[source.Company](err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return source.Failed[source.Company](fmt.Errorf("discovery: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return source.Failed[source.Company](source.ClassifyHTTP(source.KindDiscovery, resp.StatusCode))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return source.Failed[source.Company](fmt.Errorf("discovery: decode response: %w", err))
	}

	website := strings.TrimSpace(sr.KnowledgeGraph.Website)
	if website == "" {
		for _, hit := range sr.OrganicResults {
			link := strings.TrimSpace(hit.Link)
			if link == "" || isAggregator(link) {
				continue
			}
			website = link
			break
		}
	}
	if website == "" {
		return source.NotFound[source.Company]()
	}

	domain, err := registrableDomain(website)
	if err != nil {
		return source.Failed[source.Company](fmt.Errorf("discovery: %w", err))
	}
	return source.Found(source.Company{
		Domain:  domain,
		Website: website,
		HQ:      strings.TrimSpace(sr.KnowledgeGraph.Address),
	})
}

func isAggregator(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, agg := range aggregators {
		if host == agg || strings.HasSuffix(host, "."+agg) {
			return true
		}
	}
	return false
}

func registrableDomain(website string) (string, error) {
	u, err := url.Parse(website)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", fmt.Errorf("no host in %q", website)
	}
	return host, nil
}
