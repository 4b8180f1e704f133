// services/export.go
package services

import (
	"fmt"
	"io"
	"strings"

	"github.com/b3yotch/spyder/models"
	"github.com/jszwec/csvutil"
)

// documentCSVRow is the flattened CSV shape of a stored document. Full text
// is deliberately excluded; exports are for spreadsheet-sized review.
type documentCSVRow struct {
	DocumentNumber  string `csv:"document_number"`
	Title           string `csv:"title"`
	DocumentType    string `csv:"document_type"`
	PublicationDate string `csv:"publication_date"`
	EffectiveDate   string `csv:"effective_date"`
	Significant     bool   `csv:"significant"`
	Agencies        string `csv:"agencies"`
	HTMLURL         string `csv:"html_url"`
}

// WriteDocumentsCSV renders query results as CSV, one row per document with
// agency names joined by "; ". An empty result still writes the header row.
func WriteDocumentsCSV(w io.Writer, docs []models.Document) error {
	rows := make([]documentCSVRow, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, documentCSVRow{
			DocumentNumber:  d.DocumentNumber,
			Title:           d.Title,
			DocumentType:    d.DocumentType,
			PublicationDate: d.PublicationDate,
			EffectiveDate:   d.EffectiveDate,
			Significant:     d.Significant,
			Agencies:        strings.Join(d.AgencyNames, "; "),
			HTMLURL:         d.HTMLURL,
		})
	}

	data, err := csvutil.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to marshal documents to CSV: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write CSV export: %w", err)
	}
	return nil
}
