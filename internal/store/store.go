// Package store persists pipeline runs and their scored leads in
// SQLite. It uses modernc.org/sqlite, a pure Go driver, so the binary
// cross-compiles without CGO.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/bioleads/lead-enrichment-pipeline/internal/lead"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	candidates  INTEGER NOT NULL,
	scored      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS leads (
	run_id            TEXT NOT NULL REFERENCES runs(id),
	position          INTEGER NOT NULL,
	name              TEXT NOT NULL,
	title             TEXT NOT NULL,
	company           TEXT NOT NULL,
	company_domain    TEXT NOT NULL,
	company_website   TEXT NOT NULL,
	location          TEXT NOT NULL,
	location_norm     TEXT NOT NULL,
	biotech_hub       INTEGER NOT NULL,
	biotech_hub_name  TEXT NOT NULL,
	orcid             TEXT NOT NULL,
	orcid_url         TEXT NOT NULL,
	email             TEXT NOT NULL,
	email_source      TEXT NOT NULL,
	email_confidence  INTEGER NOT NULL,
	email_verified    INTEGER NOT NULL,
	publication_count INTEGER NOT NULL,
	pub_count_known   INTEGER NOT NULL,
	funding_awards    INTEGER NOT NULL,
	status            TEXT NOT NULL,
	score             INTEGER NOT NULL,
	score_breakdown   TEXT NOT NULL,
	diagnostics       TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_leads_score ON leads(score DESC);
`

type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the lead database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store: empty database path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("store: creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: applying schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Path() string { return s.path }

// SaveRun stores a completed run and all of its leads in input order.
func (s *Store) SaveRun(ctx context.Context, runID string, startedAt time.Time, leads []lead.Scored) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	scored := 0
	for _, l := range leads {
		if l.Record.Status == lead.StatusScored {
			scored++
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, candidates, scored) VALUES (?, ?, ?, ?)`,
		runID, startedAt.UTC(), len(leads), scored,
	); err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO leads (
		run_id, position, name, title, company, company_domain, company_website,
		location, location_norm, biotech_hub, biotech_hub_name, orcid, orcid_url,
		email, email_source, email_confidence, email_verified,
		publication_count, pub_count_known, funding_awards,
		status, score, score_breakdown, diagnostics
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for i, l := range leads {
		breakdown, err := json.Marshal(l.Score.Breakdown)
		if err != nil {
			return fmt.Errorf("store: marshal breakdown: %w", err)
		}
		diags, err := json.Marshal(l.Record.Diagnostics)
		if err != nil {
			return fmt.Errorf("store: marshal diagnostics: %w", err)
		}
		r := l.Record
		if _, err := stmt.ExecContext(ctx,
			runID, i, r.Name, r.Title, r.Company, r.CompanyDomain, r.CompanyWebsite,
			r.Location, r.LocationNormalized, boolInt(r.BiotechHub), r.BiotechHubName,
			r.ORCID, r.ORCIDURL,
			r.Email, r.EmailSource, r.EmailConfidence, boolInt(r.EmailVerified),
			r.PublicationCount, boolInt(r.PublicationCountKnown), r.FundingAwards,
			string(r.Status), l.Score.Total, string(breakdown), string(diags),
		); err != nil {
			return fmt.Errorf("store: insert lead %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LoadRun returns the leads of one run in their original input order.
func (s *Store) LoadRun(ctx context.Context, runID string) ([]lead.Scored, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, title, company, company_domain, company_website,
			location, location_norm, biotech_hub, biotech_hub_name, orcid, orcid_url,
			email, email_source, email_confidence, email_verified,
			publication_count, pub_count_known, funding_awards,
			status, score, score_breakdown, diagnostics
		FROM leads WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query run: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	return scanLeads(rows)
}

// TopLeads returns the best-scoring leads across all runs.
func (s *Store) TopLeads(ctx context.Context, limit int) ([]lead.Scored, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, title, company, company_domain, company_website,
			location, location_norm, biotech_hub, biotech_hub_name, orcid, orcid_url,
			email, email_source, email_confidence, email_verified,
			publication_count, pub_count_known, funding_awards,
			status, score, score_breakdown, diagnostics
		FROM leads WHERE status = ? ORDER BY score DESC, run_id, position LIMIT ?`,
		string(lead.StatusScored), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query top leads: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	return scanLeads(rows)
}

func scanLeads(rows *sql.Rows) ([]lead.Scored, error) {
	var out []lead.Scored
	for rows.Next() {
		var (
			l                                lead.Scored
			hub, verified, pubKnown          int
			status, breakdownJSON, diagsJSON string
		)
		r := &l.Record
		if err := rows.Scan(
			&r.Name, &r.Title, &r.Company, &r.CompanyDomain, &r.CompanyWebsite,
			&r.Location, &r.LocationNormalized, &hub, &r.BiotechHubName, &r.ORCID, &r.ORCIDURL,
			&r.Email, &r.EmailSource, &r.EmailConfidence, &verified,
			&r.PublicationCount, &pubKnown, &r.FundingAwards,
			&status, &l.Score.Total, &breakdownJSON, &diagsJSON,
		); err != nil {
			return nil, fmt.Errorf("store: scan lead: %w", err)
		}
		r.BiotechHub = hub != 0
		r.EmailVerified = verified != 0
		r.PublicationCountKnown = pubKnown != 0
		r.Status = lead.Status(status)
		if err := json.Unmarshal([]byte(breakdownJSON), &l.Score.Breakdown); err != nil {
			return nil, fmt.Errorf("store: unmarshal breakdown: %w", err)
		}
		if err := json.Unmarshal([]byte(diagsJSON), &r.Diagnostics); err != nil {
			return nil, fmt.Errorf("store: unmarshal diagnostics: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
