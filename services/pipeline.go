// services/pipeline.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/b3yotch/spyder/config"
	"github.com/b3yotch/spyder/database"
	"github.com/b3yotch/spyder/models"
	"github.com/panjf2000/ants/v2"
)

// Downloader is the fetcher surface the pipeline needs: materialize a date
// range into a snapshot plus records, and enrich single documents.
type Downloader interface {
	DownloadRange(ctx context.Context, startDate, endDate string) (string, []models.RawDocument, error)
	FetchFullText(ctx context.Context, url string) string
}

// DocumentStore is the storage surface the pipeline writes to.
type DocumentStore interface {
	UpsertDocument(ctx context.Context, rec models.RawDocument, fullText string) (int64, error)
	LinkAgencies(ctx context.Context, documentID int64, refs []models.AgencyRef) error
	RecordIngestRun(ctx context.Context, run models.IngestRun) error
}

// Watermark tracks the last fully ingested end date.
type Watermark interface {
	LastProcessedDate() string
	SaveLastProcessedDate(date string) error
}

// Pipeline composes fetcher -> snapshot -> store ingestion -> watermark for
// one date window. It owns the watermark lifecycle: the watermark only moves
// after the window's ingestion phase has fully completed, so an interrupted
// run is safely re-covered by the next incremental run.
type Pipeline struct {
	store     DocumentStore
	fetcher   Downloader
	watermark Watermark
	daysBack  int
	workers   int
	maxYear   int
}

func NewPipeline(store DocumentStore, fetcher Downloader, watermark Watermark, cfg config.PipelineConfig) *Pipeline {
	return &Pipeline{
		store:     store,
		fetcher:   fetcher,
		watermark: watermark,
		daysBack:  cfg.DaysBack,
		workers:   cfg.IngestWorkers,
		maxYear:   cfg.MaxYear,
	}
}

// RunOptions selects the date window for one pipeline run. Explicit dates win
// over everything; Incremental resumes from the watermark; otherwise the
// window reaches DaysBack days before the end date.
type RunOptions struct {
	DaysBack    int
	StartDate   string // YYYY-MM-DD
	EndDate     string // YYYY-MM-DD
	Incremental bool
}

// Run executes download and ingestion for the resolved window, records the
// run, then advances the watermark to the window's end date.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) error {
	startDate, endDate, err := p.resolveWindow(opts, time.Now())
	if err != nil {
		return err
	}
	log.Printf("Service: Running pipeline for window %s..%s (incremental=%t).", startDate, endDate, opts.Incremental)

	began := time.Now()
	snapshotPath, docs, err := p.fetcher.DownloadRange(ctx, startDate, endDate)
	if err != nil {
		// Watermark untouched: the next incremental run re-covers this window.
		return fmt.Errorf("pipeline download failed for %s..%s: %w", startDate, endDate, err)
	}

	ingested, err := p.ingest(ctx, docs)
	if err != nil {
		return fmt.Errorf("pipeline ingestion failed for %s..%s: %w", startDate, endDate, err)
	}
	log.Printf("Service: Ingested %d/%d documents for %s..%s.", ingested, len(docs), startDate, endDate)

	run := models.IngestRun{
		StartDate:     startDate,
		EndDate:       endDate,
		SnapshotPath:  snapshotPath,
		DocumentCount: ingested,
		DurationMs:    time.Since(began).Milliseconds(),
	}
	if err := p.store.RecordIngestRun(ctx, run); err != nil {
		// Audit only; the run itself succeeded.
		log.Printf("WARN Service: Could not record ingest run: %v", err)
	}

	if err := p.watermark.SaveLastProcessedDate(endDate); err != nil {
		return fmt.Errorf("pipeline could not advance watermark to %s: %w", endDate, err)
	}

	log.Println("Service: Pipeline completed successfully.")
	return nil
}

// resolveWindow computes the effective inclusive date window. "Today" is
// clamped into the configured sanity year to guard against a misconfigured
// system clock.
func (p *Pipeline) resolveWindow(opts RunOptions, now time.Time) (string, string, error) {
	today := now
	if today.Year() > p.maxYear {
		today = today.AddDate(p.maxYear-today.Year(), 0, 0)
	}

	endDate := opts.EndDate
	if endDate == "" {
		endDate = today.Format(dateLayout)
	}
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return "", "", fmt.Errorf("invalid end date %q: %w", endDate, err)
	}

	startDate := opts.StartDate
	if startDate == "" {
		if opts.Incremental {
			startDate = p.watermark.LastProcessedDate()
			log.Printf("Service: Incremental update resuming from %s.", startDate)
		} else {
			daysBack := opts.DaysBack
			if daysBack <= 0 {
				daysBack = p.daysBack
			}
			startDate = end.AddDate(0, 0, -daysBack).Format(dateLayout)
		}
	}
	if _, err := time.Parse(dateLayout, startDate); err != nil {
		return "", "", fmt.Errorf("invalid start date %q: %w", startDate, err)
	}

	return startDate, endDate, nil
}

// ingest dispatches every snapshot record to the worker pool. Per record the
// sub-protocol is sequential: enrichment fetch, then the document upsert,
// then agency linking; distinct records run with no ordering guarantees.
// Returns how many records were stored.
func (p *Pipeline) ingest(ctx context.Context, docs []models.RawDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	pool, err := ants.NewPool(p.workers)
	if err != nil {
		return 0, fmt.Errorf("failed to create ingest worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		ingested atomic.Int64
	)
	for _, doc := range docs {
		doc := doc
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if p.ingestOne(ctx, doc) {
				ingested.Add(1)
			}
		})
		if submitErr != nil {
			wg.Done()
			log.Printf("ERROR Service: Could not submit document %q for ingestion: %v", doc.DocumentNumber, submitErr)
		}
	}
	wg.Wait()

	return int(ingested.Load()), nil
}

// ingestOne processes a single record. Failures are logged and skipped so one
// bad record never aborts its siblings.
func (p *Pipeline) ingestOne(ctx context.Context, doc models.RawDocument) bool {
	fullText := p.fetcher.FetchFullText(ctx, doc.FullTextXMLURL)

	id, err := p.store.UpsertDocument(ctx, doc, fullText)
	if err != nil {
		if errors.Is(err, database.ErrMissingDocumentNumber) {
			log.Printf("WARN Service: Skipping record without document_number (title: %q).", doc.Title)
		} else {
			log.Printf("ERROR Service: Failed to store document %q: %v", doc.DocumentNumber, err)
		}
		return false
	}

	if err := p.store.LinkAgencies(ctx, id, doc.Agencies); err != nil {
		log.Printf("WARN Service: Failed linking agencies for document %q: %v", doc.DocumentNumber, err)
	}
	return true
}
