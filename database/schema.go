// database/schema.go
package database

import (
	"database/sql"
	"fmt"
	"log"
)

// schemaStatements creates the normalized document/agency tables and the
// ingest-run audit log. Safe to run on every startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		document_number VARCHAR(64) NOT NULL,
		title TEXT NOT NULL,
		document_type VARCHAR(64),
		publication_date DATE,
		effective_date DATE,
		abstract TEXT,
		html_url VARCHAR(512),
		significant TINYINT(1) NOT NULL DEFAULT 0,
		full_text LONGTEXT,
		fetched_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_document_number (document_number)
	)`,
	`CREATE TABLE IF NOT EXISTS agencies (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		acronym VARCHAR(64),
		UNIQUE KEY uq_agency_name (name)
	)`,
	`CREATE TABLE IF NOT EXISTS document_agencies (
		document_id BIGINT NOT NULL,
		agency_id BIGINT NOT NULL,
		PRIMARY KEY (document_id, agency_id),
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE,
		FOREIGN KEY (agency_id) REFERENCES agencies(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX idx_publication_date ON documents (publication_date)`,
	`CREATE TABLE IF NOT EXISTS ingest_runs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		snapshot_path VARCHAR(512),
		document_count INT NOT NULL DEFAULT 0,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		completed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// InitSchema creates all tables and indexes if they do not exist yet.
// A failing secondary-index statement (MySQL has no CREATE INDEX IF NOT
// EXISTS) is logged and skipped; everything else is fatal.
func InitSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			if isDuplicateKeyName(err) {
				log.Printf("WARN Database: Index already exists, skipping: %v", err)
				continue
			}
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	log.Println("Database schema is up to date.")
	return nil
}
