// models/query.go
package models

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// QueryParams carries the filters for Store.QueryDocuments. Zero values mean
// "no constraint"; unknown parameters are simply never set.
type QueryParams struct {
	ID             int64  `json:"id,omitempty"`
	DocumentNumber string `json:"document_number,omitempty"`
	StartDate      string `json:"start_date,omitempty"` // inclusive, YYYY-MM-DD
	EndDate        string `json:"end_date,omitempty"`   // inclusive, YYYY-MM-DD
	DocumentType   string `json:"document_type,omitempty"`
	Keyword        string `json:"keyword,omitempty"`
	Agency         string `json:"agency,omitempty"`
	OrderBy        string `json:"order_by,omitempty"`  // default publication_date
	OrderDir       string `json:"order_dir,omitempty"` // ASC or DESC, default DESC
	Limit          int    `json:"limit,omitempty"`     // default 10
}

// Validate rejects malformed date filters before any I/O happens. All other
// fields are free-form; the store whitelists order columns itself.
func (q QueryParams) Validate() error {
	if q.StartDate != "" {
		if _, err := time.Parse(dateLayout, q.StartDate); err != nil {
			return fmt.Errorf("invalid start_date %q: expected YYYY-MM-DD", q.StartDate)
		}
	}
	if q.EndDate != "" {
		if _, err := time.Parse(dateLayout, q.EndDate); err != nil {
			return fmt.Errorf("invalid end_date %q: expected YYYY-MM-DD", q.EndDate)
		}
	}
	return nil
}
