// Package pubmed counts an author's publications and extracts their
// latest affiliation through the NCBI E-utilities API.
package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bioleads/lead-enrichment-pipeline/internal/source"
)

const DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

type Config struct {
	// Email identifies the caller to NCBI per their usage policy.
	Email string
	// APIKey is optional; it raises the permitted request rate.
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	email   string
	apiKey  string
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
	return &Client{
		email:   strings.TrimSpace(cfg.Email),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: base,
		http:    hc,
	}
}

type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type efetchResponse struct {
	Articles []struct {
		Authors []struct {
			Affiliations []struct {
				Affiliation string `xml:"Affiliation"`
			} `xml:"AffiliationInfo"`
		} `xml:"MedlineCitation>Article>AuthorList>Author"`
	} `xml:"PubmedArticle"`
}

// Lookup returns the author's publication count and the affiliation on
// their most recent article. A zero count is a real observation: the
// index answered and found nothing.
func (c *Client) Lookup(ctx context.Context, q source.PublicationsQuery) source.Result[source.Publications] {
	name := strings.TrimSpace(q.Name)
	if name == "" {
		return source.NotFound[source.Publications]()
	}

	term := fmt.Sprintf("%s[Author]", name)
	if aff := strings.TrimSpace(q.Affiliation); aff != "" {
		term = fmt.Sprintf("%s AND %s[Affiliation]", term, aff)
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmode", "json")
	params.Set("retmax", "1")
	params.Set("sort", "pub_date")
	c.sign(params)

	var sr esearchResponse
	if err := c.get(ctx, "/esearch.fcgi", params, decodeJSON(&sr)); err != nil {
		return source.Failed[source.Publications](err)
	}

	count, err := strconv.Atoi(strings.TrimSpace(sr.Result.Count))
	if err != nil {
		return source.Failed[source.Publications](fmt.Errorf("pubmed: bad count %q: %w", sr.Result.Count, err))
	}

	pubs := source.Publications{Count: count}
	if count > 0 && len(sr.Result.IDList) > 0 {
		// Affiliation is best-effort; a fetch failure still leaves a
		// usable count.
		if aff, err := c.fetchAffiliation(ctx, sr.Result.IDList[0]); err == nil {
			pubs.Affiliation = aff
		}
	}
	return source.Found(pubs)
}

func (c *Client) fetchAffiliation(ctx context.Context, pmid string) (string, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", pmid)
	params.Set("retmode", "xml")
	c.sign(params)

	var fr efetchResponse
	if err := c.get(ctx, "/efetch.fcgi", params, decodeXML(&fr)); err != nil {
		return "", err
	}
	for _, article := range fr.Articles {
		for _, author := range article.Authors {
			for _, aff := range author.Affiliations {
				if s := strings.TrimSpace(aff.Affiliation); s != "" {
					return s, nil
				}
			}
		}
	}
	return "", nil
}

func (c *Client) sign(params url.Values) {
	if c.email != "" {
		params.Set("email", c.email)
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, decode func(*http.Response) error) error {
	u := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pubmed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return source.ClassifyHTTP(source.KindPublications, resp.StatusCode)
	}
	return decode(resp)
}

func decodeJSON(out any) func(*http.Response) error {
	return func(resp *http.Response) error {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("pubmed: decode response: %w", err)
		}
		return nil
	}
}

func decodeXML(out any) func(*http.Response) error {
	return func(resp *http.Response) error {
		if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("pubmed: decode response: %w", err)
		}
		return nil
	}
}
