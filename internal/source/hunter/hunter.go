// Package hunter finds and verifies business emails through a
// Hunter.io-compatible API. It never synthesizes an address from a
// name+domain pattern: every value comes from the provider, and the
// verified flag comes from its verification endpoint.
package hunter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bioleads/lead-enrichment-pipeline/internal/source"
)

const DefaultBaseURL = "https://api.hunter.io"

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
		return nil, &source.ConfigError{Source: source.KindEmail, Reason: "missing API key"}
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

type finderResponse struct {
	Data struct {
		Email        string `json:"email"`
		Score        int    `json:"score"`
		Verification struct {
			Status string `json:"status"`
		} `json:"verification"`
	} `json:"data"`
}

type verifierResponse struct {
	Data struct {
		Result string `json:"result"`
		Score  int    `json:"score"`
	} `json:"data"`
}

// Lookup finds an email for a person at a known domain and verifies
// deliverability. Callers only reach this with a discovered domain; a
// missing one is rejected outright rather than guessed around.
func (c *Client) Lookup(ctx context.Context, q source.EmailQuery) source.Result[source.Email] {
	domain := strings.TrimSpace(q.Domain)
	if domain == "" {
		return source.Failed[source.Email](fmt.Errorf("hunter: lookup requires a domain"))
	}
	first, last := splitName(q.Name)
	if first == "" || last == "" {
		return source.NotFound[source.Email]()
	}

	params := url.Values{}
	params.Set("domain", domain)
	params.Set("first_name", first)
	params.Set("last_name", last)
	params.Set("api_key", c.apiKey)

	var fr finderResponse
	if err := c.getJSON(ctx, "/v2/email-finder", params, &fr); err != nil {
		return source.Failed[source.Email](err)
	}

	email := strings.TrimSpace(fr.Data.Email)
	if email == "" {
		return source.NotFound[source.Email]()
	}

	out := source.Email{
		Address:    email,
		Confidence: fr.Data.Score,
		Verified:   strings.EqualFold(fr.Data.Verification.Status, "valid"),
		Source:     "hunter",
	}

	// Verification is a separate provider call; a failure there leaves
	// the finder's own verification status in place.
	vp := url.Values{}
	vp.Set("email", email)
	vp.Set("api_key", c.apiKey)
	var vr verifierResponse
	if err := c.getJSON(ctx, "/v2/email-verifier", vp, &vr); err == nil {
		if strings.EqualFold(vr.Data.Result, "deliverable") {
			out.Verified = true
			if vr.Data.Score > out.Confidence {
				out.Confidence = vr.Data.Score
			}
		}
	}
	return source.Found(out)
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hunter: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return source.ClassifyHTTP(source.KindEmail, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("hunter: decode response: %w", err)
	}
	return nil
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(strings.TrimSpace(name))
	if len(parts) < 2 {
		return "", ""
	}
	return parts[0], parts[len(parts)-1]
}
