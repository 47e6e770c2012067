// Package funding surfaces grant activity for an organization through
// the NIH RePORTER projects API. No credentials are required.
package funding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bioleads/lead-enrichment-pipeline/internal/source"
)

const DefaultBaseURL = "https://api.reporter.nih.gov"

type Config struct {
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: base, http: hc}
}

type searchRequest struct {
	Criteria struct {
		OrgNames []string `json:"org_names"`
	} `json:"criteria"`
	Limit int `json:"limit"`
}

type searchResponse struct {
	Meta struct {
		Total int `json:"total"`
	} `json:"meta"`
	Results []struct {
		AwardAmount float64 `json:"award_amount"`
	} `json:"results"`
}

func (c *Client) Lookup(ctx context.Context, q source.FundingQuery) source.Result[source.Funding] {
	org := strings.TrimSpace(q.Organization)
	if org == "" {
		return source.NotFound[source.Funding]()
	}

	var sq searchRequest
	sq.Criteria.OrgNames = []string{org}
	sq.Limit = 50
	body, err := json.Marshal(sq)
	if err != nil {
		return source.Failed[source.Funding](err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/projects/search", bytes.NewReader(body))
	if err != nil {
		return source.Failed[source.Funding](err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return source.Failed[source.Funding](fmt.Errorf("funding: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return source.Failed[source.Funding](source.ClassifyHTTP(source.KindFunding, resp.StatusCode))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return source.Failed[source.Funding](fmt.Errorf("funding: decode response: %w", err))
	}
	if sr.Meta.Total == 0 {
		return source.NotFound[source.Funding]()
	}

	out := source.Funding{Awards: sr.Meta.Total}
	for _, award := range sr.Results {
		out.TotalUSD += award.AwardAmount
	}
	return source.Found(out)
}
