// models/document.go
package models

import "time"

// Document is a stored registry document, joined with its agency names.
// There is at most one row per DocumentNumber; re-ingestion updates in place.
type Document struct {
	ID              int64      `db:"id" json:"id"`
	DocumentNumber  string     `db:"document_number" json:"document_number"`
	Title           string     `db:"title" json:"title"`
	DocumentType    string     `db:"document_type" json:"document_type,omitempty"`
	PublicationDate string     `db:"publication_date" json:"publication_date,omitempty"` // YYYY-MM-DD
	EffectiveDate   string     `db:"effective_date" json:"effective_date,omitempty"`     // YYYY-MM-DD
	Abstract        string     `db:"abstract" json:"abstract,omitempty"`
	HTMLURL         string     `db:"html_url" json:"html_url,omitempty"`
	Significant     bool       `db:"significant" json:"significant"`
	FullText        string     `db:"full_text" json:"-"`
	FetchedAt       *time.Time `db:"fetched_at" json:"fetched_at,omitempty"`

	// Aggregated from the document_agencies join, not a column.
	AgencyNames []string `db:"-" json:"agency_names"`
}

// Agency is uniquely identified by Name; creation is idempotent under
// concurrent attempts.
type Agency struct {
	ID      int64  `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Acronym string `db:"acronym" json:"acronym,omitempty"`
}

// IngestRun records one completed pipeline run for audit purposes.
type IngestRun struct {
	ID            int64     `db:"id" json:"id"`
	StartDate     string    `db:"start_date" json:"start_date"`
	EndDate       string    `db:"end_date" json:"end_date"`
	SnapshotPath  string    `db:"snapshot_path" json:"snapshot_path"`
	DocumentCount int       `db:"document_count" json:"document_count"`
	DurationMs    int64     `db:"duration_ms" json:"duration_ms"`
	CompletedAt   time.Time `db:"completed_at" json:"completed_at"`
}
