// Package store persists finished reports and their footnotes in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pulse/internal/core"
)

// Store is the SQLite-backed report archive.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "pulse.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

// initialize creates the necessary tables
func (s *Store) initialize() error {
	reportsTable := `
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		summary TEXT,
		full_text TEXT,
		sections TEXT,
		quality_metrics TEXT,
		model_used TEXT,
		generated_at INTEGER
	);`

	footnotesTable := `
	CREATE TABLE IF NOT EXISTS footnotes (
		report_id TEXT NOT NULL,
		footnote_number INTEGER NOT NULL,
		source_item_id TEXT NOT NULL,
		url TEXT,
		title TEXT,
		score INTEGER,
		comment_count INTEGER,
		created_at INTEGER,
		community_id TEXT,
		author TEXT,
		position_in_report INTEGER,
		PRIMARY KEY (report_id, footnote_number),
		FOREIGN KEY (report_id) REFERENCES reports (id)
	);`

	tables := []string{reportsTable, footnotesTable}
	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveReport persists a report and its footnotes in one transaction.
// Timestamps are stored as Unix seconds regardless of source format.
func (s *Store) SaveReport(report *core.Report) error {
	sections, _ := json.Marshal(report.Sections)
	metrics, _ := json.Marshal(report.QualityMetrics)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
	INSERT OR REPLACE INTO reports
	(id, query, summary, full_text, sections, quality_metrics, model_used, generated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID,
		report.Query,
		report.Summary,
		report.FullText,
		string(sections),
		string(metrics),
		report.ModelUsed,
		report.GeneratedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM footnotes WHERE report_id = ?", report.ID); err != nil {
		return fmt.Errorf("failed to clear footnotes: %w", err)
	}

	for _, fn := range report.Footnotes {
		_, err := tx.Exec(`
		INSERT INTO footnotes
		(report_id, footnote_number, source_item_id, url, title, score, comment_count,
		 created_at, community_id, author, position_in_report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.ID,
			fn.FootnoteNumber,
			fn.SourceItemID,
			fn.URL,
			fn.Title,
			fn.Score,
			fn.CommentCount,
			fn.CreatedAt.Unix(),
			fn.CommunityID,
			fn.Author,
			fn.PositionInReport,
		)
		if err != nil {
			return fmt.Errorf("failed to save footnote %d: %w", fn.FootnoteNumber, err)
		}
	}

	return tx.Commit()
}

// GetReport loads a report and its footnotes by ID. Returns nil on a miss.
func (s *Store) GetReport(id string) (*core.Report, error) {
	row := s.db.QueryRow(`
	SELECT id, query, summary, full_text, sections, quality_metrics, model_used, generated_at
	FROM reports WHERE id = ?`, id)

	var report core.Report
	var sections, metrics string
	var generatedAt int64

	err := row.Scan(
		&report.ID,
		&report.Query,
		&report.Summary,
		&report.FullText,
		&sections,
		&metrics,
		&report.ModelUsed,
		&generatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan report: %w", err)
	}

	report.GeneratedAt = time.Unix(generatedAt, 0).UTC()
	json.Unmarshal([]byte(sections), &report.Sections)
	json.Unmarshal([]byte(metrics), &report.QualityMetrics)

	footnotes, err := s.getFootnotes(id)
	if err != nil {
		return nil, err
	}
	report.Footnotes = footnotes

	return &report, nil
}

func (s *Store) getFootnotes(reportID string) ([]core.FootnoteEntry, error) {
	rows, err := s.db.Query(`
	SELECT footnote_number, source_item_id, url, title, score, comment_count,
	       created_at, community_id, author, position_in_report
	FROM footnotes WHERE report_id = ? ORDER BY footnote_number`, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to query footnotes: %w", err)
	}
	defer rows.Close()

	var footnotes []core.FootnoteEntry
	for rows.Next() {
		var fn core.FootnoteEntry
		var createdAt int64
		err := rows.Scan(
			&fn.FootnoteNumber,
			&fn.SourceItemID,
			&fn.URL,
			&fn.Title,
			&fn.Score,
			&fn.CommentCount,
			&createdAt,
			&fn.CommunityID,
			&fn.Author,
			&fn.PositionInReport,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan footnote: %w", err)
		}
		fn.CreatedAt = time.Unix(createdAt, 0).UTC()
		footnotes = append(footnotes, fn)
	}
	return footnotes, rows.Err()
}

// ReportSummary is one row of the report listing.
type ReportSummary struct {
	ID          string
	Query       string
	Summary     string
	ModelUsed   string
	GeneratedAt time.Time
	Footnotes   int
}

// ListReports returns the most recent reports, newest first.
func (s *Store) ListReports(limit int) ([]ReportSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
	SELECT r.id, r.query, r.summary, r.model_used, r.generated_at,
	       (SELECT COUNT(*) FROM footnotes f WHERE f.report_id = r.id)
	FROM reports r ORDER BY r.generated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var summaries []ReportSummary
	for rows.Next() {
		var rs ReportSummary
		var generatedAt int64
		if err := rows.Scan(&rs.ID, &rs.Query, &rs.Summary, &rs.ModelUsed, &generatedAt, &rs.Footnotes); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		rs.GeneratedAt = time.Unix(generatedAt, 0).UTC()
		summaries = append(summaries, rs)
	}
	return summaries, rows.Err()
}

// DeleteReport removes a report and its footnotes.
func (s *Store) DeleteReport(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM footnotes WHERE report_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete footnotes: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM reports WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	return tx.Commit()
}
