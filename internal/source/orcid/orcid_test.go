package orcid

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioleads/lead-enrichment-pipeline/internal/source"
)

const testID = "0000-0001-2345-6789"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, HTTPClient: srv.Client()})
}

func recordJSON() string {
	return `{
		"person": {
			"name": {
				"given-names": {"value": "Jane"},
				"family-name": {"value": "Doe"}
			},
			"addresses": {"address": [{"country": {"value": "US"}}]}
		},
		"activities-summary": {
			"employments": {
				"affiliation-group": [{
					"summaries": [{
						"employment-summary": {
							"role-title": "Principal Toxicologist",
							"organization": {
								"name": "Hepatica Biosciences",
								"address": {"city": "Cambridge", "region": "MA", "country": "US"}
							}
						}
					}]
				}]
			}
		}
	}`
}

func TestLookupByName(t *testing.T) {
	var searchQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "expanded-search"):
			searchQuery = r.URL.Query().Get("q")
			fmt.Fprintf(w, `{"num-found": 1, "expanded-result": [{"orcid-id": %q}]}`, testID)
		case strings.Contains(r.URL.Path, "/record"):
			fmt.Fprint(w, recordJSON())
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	res := c.Lookup(context.Background(), source.IdentityQuery{Name: "Jane Doe"})
	require.True(t, res.IsFound(), "err: %v", res.Err)

	assert.Contains(t, searchQuery, `given-names:"Jane"`)
	assert.Contains(t, searchQuery, `family-name:"Doe"`)
	assert.Equal(t, "Jane Doe", res.Value.Name)
	assert.Equal(t, testID, res.Value.ORCID)
	assert.Equal(t, "https://orcid.org/"+testID, res.Value.URL)
	assert.Equal(t, "Principal Toxicologist", res.Value.Title)
	assert.Equal(t, "Hepatica Biosciences", res.Value.Employer)
	assert.Equal(t, "Cambridge, MA, US", res.Value.Address)
}

func TestLookupByKnownIDSkipsSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "expanded-search") {
			t.Error("search must not run with a known iD")
			return
		}
		fmt.Fprint(w, recordJSON())
	})

	res := c.Lookup(context.Background(), source.IdentityQuery{Name: "Jane Doe", KnownID: testID})
	require.True(t, res.IsFound())
	assert.Equal(t, testID, res.Value.ORCID)
}

func TestLookupNoSearchHitIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"num-found": 0, "expanded-result": []}`)
	})

	res := c.Lookup(context.Background(), source.IdentityQuery{Name: "N. Obody"})
	assert.True(t, res.IsNotFound())
	assert.NoError(t, res.Err)
}

func TestLookupRecordGoneIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such record", http.StatusNotFound)
	})

	res := c.Lookup(context.Background(), source.IdentityQuery{KnownID: testID})
	assert.True(t, res.IsNotFound())
}

func TestLookupServerErrorIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusServiceUnavailable)
	})

	res := c.Lookup(context.Background(), source.IdentityQuery{KnownID: testID})
	require.True(t, res.IsFailed())
	assert.True(t, source.IsTransient(res.Err))
}

func TestLookupEmptyQueryIsNotFound(t *testing.T) {
	c := New(Config{})
	res := c.Lookup(context.Background(), source.IdentityQuery{})
	assert.True(t, res.IsNotFound())
}

func TestQuoteName(t *testing.T) {
	assert.Equal(t, `given-names:"Jane" AND family-name:"Doe"`, quoteName("Jane Doe"))
	assert.Equal(t, `given-names:"Jane A." AND family-name:"Doe"`, quoteName("Jane A. Doe"))
	assert.Equal(t, `given-and-family-names:"Prince"`, quoteName("Prince"))
}
