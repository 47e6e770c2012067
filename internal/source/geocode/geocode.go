// Package geocode normalizes raw location strings through a Google
// Maps-compatible geocoding endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bioleads/lead-enrichment-pipeline/internal/source"
)

const DefaultBaseURL = "https://maps.googleapis.com"

type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &source.ConfigError{Source: source.KindGeocode, Reason: "missing API key"}
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{apiKey: strings.TrimSpace(cfg.APIKey), baseURL: base, http: hc}, nil
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
}

func (c *Client) Lookup(ctx context.Context, q source.GeocodeQuery) source.Result[source.Location] {
	raw := strings.TrimSpace(q.Raw)
	if raw == "" {
		return source.NotFound[source.Location]()
	}

	params := url.Values{}
	params.Set("address", raw)
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/maps/api/geocode/json?"+params.Encode(), nil)
	if err != nil {
		return source.Failed[source.Location](err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return source.Failed[source.Location](fmt.Errorf("geocode: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return source.Failed[source.Location](source.ClassifyHTTP(source.KindGeocode, resp.StatusCode))
	}

	var gr geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return source.Failed[source.Location](fmt.Errorf("geocode: decode response: %w", err))
	}

	switch gr.Status {
	case "OK":
		if len(gr.Results) == 0 || strings.TrimSpace(gr.Results[0].FormattedAddress) == "" {
			return source.NotFound[source.Location]()
		}
		return source.Found(source.Location{Normalized: strings.TrimSpace(gr.Results[0].FormattedAddress)})
	case "ZERO_RESULTS":
		return source.NotFound[source.Location]()
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return source.Failed[source.Location](source.Transientf("geocode: upstream status %s", gr.Status))
	default:
		return source.Failed[source.Location](fmt.Errorf("geocode: upstream status %s", gr.Status))
	}
}
