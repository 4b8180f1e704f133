// models/raw.go
package models

import (
	"encoding/json"
	"strings"
)

// RawDocument is one upstream record as returned by the registry's documents
// endpoint. Field names follow the registry's JSON. The upstream has shipped
// both "document_type" and "type", and both "effective_date" and
// "effective_on", depending on the requested projection; the fallback chains
// are resolved by DocumentTypeResolved / EffectiveDateResolved.
type RawDocument struct {
	DocumentNumber  string      `json:"document_number"`
	Title           string      `json:"title"`
	DocumentType    string      `json:"document_type,omitempty"`
	Type            string      `json:"type,omitempty"`
	PublicationDate string      `json:"publication_date,omitempty"`
	EffectiveDate   string      `json:"effective_date,omitempty"`
	EffectiveOn     string      `json:"effective_on,omitempty"`
	Abstract        string      `json:"abstract,omitempty"`
	HTMLURL         string      `json:"html_url,omitempty"`
	FullTextXMLURL  string      `json:"full_text_xml_url,omitempty"`
	Significant     bool        `json:"significant,omitempty"`
	Agencies        []AgencyRef `json:"agencies,omitempty"`
}

// DocumentTypeResolved returns document_type, falling back to type.
func (r RawDocument) DocumentTypeResolved() string {
	if r.DocumentType != "" {
		return r.DocumentType
	}
	return r.Type
}

// EffectiveDateResolved returns effective_date, falling back to effective_on.
func (r RawDocument) EffectiveDateResolved() string {
	if r.EffectiveDate != "" {
		return r.EffectiveDate
	}
	return r.EffectiveOn
}

// AgencyRef is one entry of a record's agencies array. The registry emits
// either an object ({"name": ..., "acronym": ...}) or a bare string; anything
// else unmarshals to a zero AgencyRef, which the store skips.
type AgencyRef struct {
	Name    string
	Acronym string
}

func (a *AgencyRef) UnmarshalJSON(data []byte) error {
	var obj struct {
		Name    string `json:"name"`
		Acronym string `json:"acronym"`
		RawName string `json:"raw_name"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		name := obj.Name
		if name == "" {
			name = obj.RawName
		}
		a.Name = strings.TrimSpace(name)
		a.Acronym = strings.TrimSpace(obj.Acronym)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		a.Name = strings.TrimSpace(s)
		a.Acronym = ""
		return nil
	}

	// Malformed entry (number, array, ...): ignore rather than fail the record.
	*a = AgencyRef{}
	return nil
}

func (a AgencyRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name    string `json:"name"`
		Acronym string `json:"acronym,omitempty"`
	}{Name: a.Name, Acronym: a.Acronym})
}

// PageResult is the registry's paginated response envelope.
type PageResult struct {
	Results    []RawDocument `json:"results"`
	Count      int           `json:"count"`
	TotalPages int           `json:"total_pages"`
}
