// Package orcid looks up researcher identities in the ORCID public
// registry. No credentials are required for public records.
package orcid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bioleads/lead-enrichment-pipeline/internal/source"
)

const DefaultBaseURL = "https://pub.orcid.org"

type Config struct {
	// BaseURL overrides the public API endpoint. Useful for testing.
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

type searchResponse struct {
	NumFound int `json:"num-found"`
	Results  []struct {
		ORCIDID string `json:"orcid-id"`
	} `json:"expanded-result"`
}

type recordResponse struct {
	Person struct {
		Name struct {
			GivenNames struct {
				Value string `json:"value"`
			} `json:"given-names"`
			FamilyName struct {
				Value string `json:"value"`
			} `json:"family-name"`
		} `json:"name"`
		Addresses struct {
			Address []struct {
				Country struct {
					Value string `json:"value"`
				} `json:"country"`
			} `json:"address"`
		} `json:"addresses"`
	} `json:"person"`
	Activities struct {
		Employments struct {
			Groups []struct {
				Summaries []struct {
					Employment struct {
						RoleTitle    string `json:"role-title"`
						Organization struct {
							Name    string `json:"name"`
							Address struct {
								City    string `json:"city"`
								Region  string `json:"region"`
								Country string `json:"country"`
							} `json:"address"`
						} `json:"organization"`
					} `json:"employment-summary"`
				} `json:"summaries"`
			} `json:"affiliation-group"`
		} `json:"employments"`
	} `json:"activities-summary"`
}

// Lookup resolves a candidate to a verified ORCID identity. A name with
// no matching registry entry is NotFound, never an error.
func (c *Client) Lookup(ctx context.Context, q source.IdentityQuery) source.Result[source.Identity] {
	id := strings.TrimSpace(q.KnownID)
	if id == "" {
		name := strings.TrimSpace(q.Name)
		if name == "" {
			return source.NotFound[source.Identity]()
		}
		found, err := c.search(ctx, name)
		if err != nil {
			return source.Failed[source.Identity](err)
		}
		if found == "" {
			return source.NotFound[source.Identity]()
		}
		id = found
	}
	return c.fetchRecord(ctx, id)
}

// search resolves a name to an ORCID iD. An empty iD with a nil error
// means the registry has no matching entry.
func (c *Client) search(ctx context.Context, name string) (string, error) {
	u := fmt.Sprintf("%s/v3.0/expanded-search/?q=%s&rows=1", c.baseURL, url.QueryEscape(quoteName(name)))
	var sr searchResponse
	if err := c.getJSON(ctx, u, &sr); err != nil {
		return "", err
	}
	if sr.NumFound == 0 || len(sr.Results) == 0 {
		return "", nil
	}
	return strings.TrimSpace(sr.Results[0].ORCIDID), nil
}

func (c *Client) fetchRecord(ctx context.Context, id string) source.Result[source.Identity] {
	u := fmt.Sprintf("%s/v3.0/%s/record", c.baseURL, url.PathEscape(id))
	var rec recordResponse
	if err := c.getJSON(ctx, u, &rec); err != nil {
		if isNotFound(err) {
			return source.NotFound[source.Identity]()
		}
		return source.Failed[source.Identity](err)
	}

	identity := source.Identity{
		Name:  strings.TrimSpace(rec.Person.Name.GivenNames.Value + " " + rec.Person.Name.FamilyName.Value),
		ORCID: id,
		URL:   "https://orcid.org/" + id,
	}
	if groups := rec.Activities.Employments.Groups; len(groups) > 0 && len(groups[0].Summaries) > 0 {
		emp := groups[0].Summaries[0].Employment
		identity.Title = strings.TrimSpace(emp.RoleTitle)
		identity.Employer = strings.TrimSpace(emp.Organization.Name)
		identity.Address = joinNonEmpty(emp.Organization.Address.City, emp.Organization.Address.Region, emp.Organization.Address.Country)
	}
	if identity.Address == "" && len(rec.Person.Addresses.Address) > 0 {
		identity.Address = strings.TrimSpace(rec.Person.Addresses.Address[0].Country.Value)
	}
	return source.Found(identity)
}

type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusNotFound
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("orcid: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode, err: source.ClassifyHTTP(source.KindIdentity, resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("orcid: decode response: %w", err)
	}
	return nil
}

func quoteName(name string) string {
	parts := strings.Fields(name)
	if len(parts) < 2 {
		return fmt.Sprintf("given-and-family-names:%q", name)
	}
	given := strings.Join(parts[:len(parts)-1], " ")
	family := parts[len(parts)-1]
	return fmt.Sprintf("given-names:%q AND family-name:%q", given, family)
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimSpace(p))
		}
	}
	return strings.Join(kept, ", ")
}
