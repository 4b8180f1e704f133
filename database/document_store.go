// database/document_store.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/b3yotch/spyder/models"
)

// agencyNameSeparator joins aggregated agency names in SQL. Agency names can
// contain commas, so a plain GROUP_CONCAT default separator is not safe.
const agencyNameSeparator = "||"

// Store owns document and agency persistence and enforces the uniqueness
// invariants (one row per document_number, one row per agency name).
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping reports whether the underlying connection is healthy.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertDocument inserts the record or, when a row with the same
// document_number already exists, updates all mutable fields in place and
// refreshes fetched_at. The stable internal id is returned in both cases:
// ON DUPLICATE KEY UPDATE with id = LAST_INSERT_ID(id) makes LastInsertId
// report the existing row's id on the update path.
func (s *Store) UpsertDocument(ctx context.Context, rec models.RawDocument, fullText string) (int64, error) {
	if rec.DocumentNumber == "" {
		return 0, ErrMissingDocumentNumber
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (
			document_number, title, document_type, publication_date,
			effective_date, abstract, html_url, significant, full_text, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			id = LAST_INSERT_ID(id),
			title = VALUES(title),
			document_type = VALUES(document_type),
			publication_date = VALUES(publication_date),
			effective_date = VALUES(effective_date),
			abstract = VALUES(abstract),
			html_url = VALUES(html_url),
			significant = VALUES(significant),
			full_text = VALUES(full_text),
			fetched_at = VALUES(fetched_at)
	`,
		rec.DocumentNumber,
		rec.Title,
		nullIfEmpty(rec.DocumentTypeResolved()),
		nullIfEmpty(rec.PublicationDate),
		nullIfEmpty(rec.EffectiveDateResolved()),
		rec.Abstract,
		rec.HTMLURL,
		rec.Significant,
		fullText,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert document %s: %w", rec.DocumentNumber, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read id for document %s: %w", rec.DocumentNumber, err)
	}
	return id, nil
}

// GetOrCreateAgency resolves an agency name to its id, creating the row if it
// does not exist yet. When a concurrent creator wins the insert race the
// duplicate-key error is resolved by re-querying for the winner's id; the
// conflict is never surfaced to the caller.
func (s *Store) GetOrCreateAgency(ctx context.Context, name, acronym string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("agency name is empty")
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM agencies WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to query agency %q: %w", name, err)
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO agencies (name, acronym) VALUES (?, ?)`, name, acronym)
	if err == nil {
		return res.LastInsertId()
	}
	if !isDuplicateEntry(err) {
		return 0, fmt.Errorf("failed to create agency %q: %w", name, err)
	}

	// Lost the creation race: the winner's row is the agency's identity.
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM agencies WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to re-query agency %q after duplicate: %w", name, err)
	}
	return id, nil
}

// LinkAgencies associates a document with every resolvable agency reference.
// Malformed references (empty name) are skipped, duplicate links are no-ops,
// and a failure on one reference never blocks the others.
func (s *Store) LinkAgencies(ctx context.Context, documentID int64, refs []models.AgencyRef) error {
	for _, ref := range refs {
		if ref.Name == "" {
			continue
		}
		agencyID, err := s.GetOrCreateAgency(ctx, ref.Name, ref.Acronym)
		if err != nil {
			log.Printf("WARN Database: Could not resolve agency %q for document %d: %v", ref.Name, documentID, err)
			continue
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT IGNORE INTO document_agencies (document_id, agency_id) VALUES (?, ?)`,
			documentID, agencyID,
		)
		if err != nil {
			log.Printf("WARN Database: Failed to link document %d to agency %d: %v", documentID, agencyID, err)
		}
	}
	return nil
}

// orderableColumns whitelists ORDER BY targets. Caller-supplied column names
// never reach the SQL text directly.
var orderableColumns = map[string]string{
	"id":               "d.id",
	"document_number":  "d.document_number",
	"title":            "d.title",
	"document_type":    "d.document_type",
	"publication_date": "d.publication_date",
	"effective_date":   "d.effective_date",
	"significant":      "d.significant",
	"fetched_at":       "d.fetched_at",
}

// QueryDocuments returns documents matching the given filters, each with the
// complete ordered list of its linked agency names. Absent filters add no
// constraint. Default order is publication_date descending, default limit 10.
func (s *Store) QueryDocuments(ctx context.Context, p models.QueryParams) ([]models.Document, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT d.id, d.document_number, d.title,
		       COALESCE(d.document_type, ''),
		       COALESCE(DATE_FORMAT(d.publication_date, '%Y-%m-%d'), ''),
		       COALESCE(DATE_FORMAT(d.effective_date, '%Y-%m-%d'), ''),
		       COALESCE(d.abstract, ''),
		       COALESCE(d.html_url, ''),
		       d.significant,
		       COALESCE(d.full_text, ''),
		       d.fetched_at,
		       COALESCE(GROUP_CONCAT(DISTINCT a.name ORDER BY a.name SEPARATOR '` + agencyNameSeparator + `'), '')
		FROM documents d
		LEFT JOIN document_agencies da ON d.id = da.document_id
		LEFT JOIN agencies a ON da.agency_id = a.id
		WHERE 1=1`)

	var args []interface{}

	if p.ID != 0 {
		sb.WriteString(" AND d.id = ?")
		args = append(args, p.ID)
	}
	if p.DocumentNumber != "" {
		sb.WriteString(" AND d.document_number = ?")
		args = append(args, p.DocumentNumber)
	}
	if p.StartDate != "" {
		sb.WriteString(" AND d.publication_date >= ?")
		args = append(args, p.StartDate)
	}
	if p.EndDate != "" {
		sb.WriteString(" AND d.publication_date <= ?")
		args = append(args, p.EndDate)
	}
	if p.DocumentType != "" {
		sb.WriteString(" AND LOWER(d.document_type) = ?")
		args = append(args, strings.ToLower(p.DocumentType))
	}
	if p.Keyword != "" {
		sb.WriteString(" AND (LOWER(d.title) LIKE ? OR LOWER(d.abstract) LIKE ? OR LOWER(d.full_text) LIKE ?)")
		kw := "%" + strings.ToLower(p.Keyword) + "%"
		args = append(args, kw, kw, kw)
	}
	if p.Agency != "" {
		// EXISTS keeps the aggregated agency list complete: the LEFT JOIN
		// above must not be narrowed by the filter.
		sb.WriteString(` AND EXISTS (
			SELECT 1 FROM document_agencies da2
			JOIN agencies a2 ON da2.agency_id = a2.id
			WHERE da2.document_id = d.id AND LOWER(a2.name) LIKE ?)`)
		args = append(args, "%"+strings.ToLower(p.Agency)+"%")
	}

	sb.WriteString(" GROUP BY d.id")

	orderCol, ok := orderableColumns[p.OrderBy]
	if !ok {
		orderCol = "d.publication_date"
	}
	orderDir := "DESC"
	if strings.EqualFold(p.OrderDir, "ASC") {
		orderDir = "ASC"
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY %s %s", orderCol, orderDir))

	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}
	sb.WriteString(" LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var d models.Document
		var fetchedAt sql.NullTime
		var agencyNames string

		err := rows.Scan(
			&d.ID, &d.DocumentNumber, &d.Title,
			&d.DocumentType, &d.PublicationDate, &d.EffectiveDate,
			&d.Abstract, &d.HTMLURL, &d.Significant,
			&d.FullText, &fetchedAt, &agencyNames,
		)
		if err != nil {
			log.Printf("ERROR Database: Failed to scan document row: %v", err)
			continue
		}
		if fetchedAt.Valid {
			d.FetchedAt = &fetchedAt.Time
		}
		d.AgencyNames = splitAgencyNames(agencyNames)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}

	log.Printf("Retrieved %d documents for query.\n", len(docs))
	return docs, nil
}

func splitAgencyNames(concat string) []string {
	if concat == "" {
		return []string{}
	}
	return strings.Split(concat, agencyNameSeparator)
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
