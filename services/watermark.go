// services/watermark.go
package services

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

const (
	dateLayout          = "2006-01-02"
	defaultLookbackDays = 30
)

// WatermarkTracker persists the last successfully ingested end-date boundary
// so incremental runs know where to resume. The artifact is a single JSON
// file: {"last_date": "YYYY-MM-DD"}.
type WatermarkTracker struct {
	path string
}

func NewWatermarkTracker(path string) *WatermarkTracker {
	return &WatermarkTracker{path: path}
}

type watermarkFile struct {
	LastDate string `json:"last_date"`
}

// LastProcessedDate returns the persisted watermark. A missing, unreadable or
// corrupt artifact is treated as absence: the default of 30 days before today
// is returned, never an error.
func (w *WatermarkTracker) LastProcessedDate() string {
	defaultDate := time.Now().AddDate(0, 0, -defaultLookbackDays).Format(dateLayout)

	data, err := os.ReadFile(w.path)
	if err != nil {
		return defaultDate
	}

	var wf watermarkFile
	if err := json.Unmarshal(data, &wf); err != nil {
		log.Printf("WARN Service: Watermark file %s is corrupt (%v); using %d-day default.", w.path, err, defaultLookbackDays)
		return defaultDate
	}
	if _, err := time.Parse(dateLayout, wf.LastDate); err != nil {
		log.Printf("WARN Service: Watermark value %q is not a date; using %d-day default.", wf.LastDate, defaultLookbackDays)
		return defaultDate
	}
	return wf.LastDate
}

// SaveLastProcessedDate overwrites the watermark. Written to a temp file,
// synced and renamed so the update is durable before the call returns; the
// orchestrator relies on this for crash-safe resumption.
func (w *WatermarkTracker) SaveLastProcessedDate(date string) error {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return fmt.Errorf("refusing to save malformed watermark %q: %w", date, err)
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("failed to create watermark directory: %w", err)
	}

	data, err := json.Marshal(watermarkFile{LastDate: date})
	if err != nil {
		return fmt.Errorf("failed to marshal watermark: %w", err)
	}

	tmp := w.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create watermark temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write watermark: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync watermark: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close watermark temp file: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("failed to replace watermark file: %w", err)
	}
	return nil
}
