// services/pipeline_test.go
package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b3yotch/spyder/config"
	"github.com/b3yotch/spyder/database"
	"github.com/b3yotch/spyder/models"
)

type fakeDownloader struct {
	mu        sync.Mutex
	docs      []models.RawDocument
	err       error
	gotStart  string
	gotEnd    string
	fullTexts map[string]string
}

func (f *fakeDownloader) DownloadRange(ctx context.Context, startDate, endDate string) (string, []models.RawDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotStart, f.gotEnd = startDate, endDate
	if f.err != nil {
		return "", nil, f.err
	}
	return "/tmp/snapshot.json", f.docs, nil
}

func (f *fakeDownloader) FetchFullText(ctx context.Context, url string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fullTexts[url]
}

type fakeStore struct {
	mu        sync.Mutex
	upserts   map[string]string // document_number -> full text it arrived with
	upsertErr map[string]error
	linked    map[int64][]models.AgencyRef
	runs      []models.IngestRun
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		upserts:   map[string]string{},
		upsertErr: map[string]error{},
		linked:    map[int64][]models.AgencyRef{},
	}
}

func (f *fakeStore) UpsertDocument(ctx context.Context, rec models.RawDocument, fullText string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.DocumentNumber == "" {
		return 0, database.ErrMissingDocumentNumber
	}
	if err := f.upsertErr[rec.DocumentNumber]; err != nil {
		return 0, err
	}
	f.upserts[rec.DocumentNumber] = fullText
	f.nextID++
	return f.nextID, nil
}

func (f *fakeStore) LinkAgencies(ctx context.Context, documentID int64, refs []models.AgencyRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linked[documentID] = refs
	return nil
}

func (f *fakeStore) RecordIngestRun(ctx context.Context, run models.IngestRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

type fakeWatermark struct {
	mu    sync.Mutex
	last  string
	saved []string
}

func (f *fakeWatermark) LastProcessedDate() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeWatermark) SaveLastProcessedDate(date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, date)
	return nil
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{DaysBack: 7, IngestWorkers: 4, MaxYear: 9999}
}

func TestResolveWindow(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("explicit dates win over everything", func(t *testing.T) {
		p := NewPipeline(newFakeStore(), &fakeDownloader{}, &fakeWatermark{last: "2025-05-01"}, testPipelineConfig())
		start, end, err := p.resolveWindow(RunOptions{StartDate: "2025-01-01", EndDate: "2025-01-31", Incremental: true}, now)
		require.NoError(t, err)
		assert.Equal(t, "2025-01-01", start)
		assert.Equal(t, "2025-01-31", end)
	})

	t.Run("incremental resumes from the watermark", func(t *testing.T) {
		p := NewPipeline(newFakeStore(), &fakeDownloader{}, &fakeWatermark{last: "2025-06-01"}, testPipelineConfig())
		start, end, err := p.resolveWindow(RunOptions{Incremental: true}, now)
		require.NoError(t, err)
		assert.Equal(t, "2025-06-01", start)
		assert.Equal(t, "2025-06-15", end)
	})

	t.Run("non-incremental uses the lookback window", func(t *testing.T) {
		p := NewPipeline(newFakeStore(), &fakeDownloader{}, &fakeWatermark{}, testPipelineConfig())
		start, end, err := p.resolveWindow(RunOptions{}, now)
		require.NoError(t, err)
		assert.Equal(t, "2025-06-08", start)
		assert.Equal(t, "2025-06-15", end)
	})

	t.Run("per-run days back overrides the configured lookback", func(t *testing.T) {
		p := NewPipeline(newFakeStore(), &fakeDownloader{}, &fakeWatermark{}, testPipelineConfig())
		start, _, err := p.resolveWindow(RunOptions{DaysBack: 2}, now)
		require.NoError(t, err)
		assert.Equal(t, "2025-06-13", start)
	})

	t.Run("runaway clock is clamped to the sanity year", func(t *testing.T) {
		cfg := testPipelineConfig()
		cfg.MaxYear = 2025
		p := NewPipeline(newFakeStore(), &fakeDownloader{}, &fakeWatermark{}, cfg)
		future := time.Date(2030, 3, 10, 0, 0, 0, 0, time.UTC)
		_, end, err := p.resolveWindow(RunOptions{}, future)
		require.NoError(t, err)
		assert.Equal(t, "2025-03-10", end)
	})

	t.Run("malformed dates are rejected", func(t *testing.T) {
		p := NewPipeline(newFakeStore(), &fakeDownloader{}, &fakeWatermark{}, testPipelineConfig())
		_, _, err := p.resolveWindow(RunOptions{EndDate: "soon"}, now)
		assert.Error(t, err)
		_, _, err = p.resolveWindow(RunOptions{StartDate: "soon"}, now)
		assert.Error(t, err)
	})
}

func TestPipelineRun(t *testing.T) {
	t.Run("successful run ingests, records and advances the watermark", func(t *testing.T) {
		store := newFakeStore()
		dl := &fakeDownloader{
			docs: []models.RawDocument{
				{DocumentNumber: "2025-001", Title: "A", FullTextXMLURL: "http://x/1.xml",
					Agencies: []models.AgencyRef{{Name: "Coast Guard"}}},
				{DocumentNumber: "2025-002", Title: "B"},
			},
			fullTexts: map[string]string{"http://x/1.xml": "body one"},
		}
		wm := &fakeWatermark{}
		p := NewPipeline(store, dl, wm, testPipelineConfig())

		require.NoError(t, p.Run(context.Background(), RunOptions{StartDate: "2025-06-01", EndDate: "2025-06-07"}))

		assert.Equal(t, "2025-06-01", dl.gotStart)
		assert.Equal(t, "2025-06-07", dl.gotEnd)
		assert.Equal(t, "body one", store.upserts["2025-001"])
		assert.Contains(t, store.upserts, "2025-002")

		require.Len(t, store.runs, 1)
		assert.Equal(t, 2, store.runs[0].DocumentCount)
		assert.Equal(t, "/tmp/snapshot.json", store.runs[0].SnapshotPath)

		assert.Equal(t, []string{"2025-06-07"}, wm.saved)
	})

	t.Run("records without document_number are skipped, siblings survive", func(t *testing.T) {
		store := newFakeStore()
		dl := &fakeDownloader{docs: []models.RawDocument{
			{Title: "no key"},
			{DocumentNumber: "2025-003", Title: "kept"},
		}}
		wm := &fakeWatermark{}
		p := NewPipeline(store, dl, wm, testPipelineConfig())

		require.NoError(t, p.Run(context.Background(), RunOptions{StartDate: "2025-06-01", EndDate: "2025-06-07"}))

		assert.Len(t, store.upserts, 1)
		require.Len(t, store.runs, 1)
		assert.Equal(t, 1, store.runs[0].DocumentCount)
		assert.Equal(t, []string{"2025-06-07"}, wm.saved, "a skipped record still lets the watermark advance")
	})

	t.Run("store failure on one record does not abort the run", func(t *testing.T) {
		store := newFakeStore()
		store.upsertErr["2025-004"] = errors.New("deadlock")
		dl := &fakeDownloader{docs: []models.RawDocument{
			{DocumentNumber: "2025-004"},
			{DocumentNumber: "2025-005"},
		}}
		wm := &fakeWatermark{}
		p := NewPipeline(store, dl, wm, testPipelineConfig())

		require.NoError(t, p.Run(context.Background(), RunOptions{StartDate: "2025-06-01", EndDate: "2025-06-07"}))
		require.Len(t, store.runs, 1)
		assert.Equal(t, 1, store.runs[0].DocumentCount)
	})

	t.Run("download failure leaves the watermark untouched", func(t *testing.T) {
		store := newFakeStore()
		dl := &fakeDownloader{err: errors.New("upstream down")}
		wm := &fakeWatermark{last: "2025-05-30"}
		p := NewPipeline(store, dl, wm, testPipelineConfig())

		err := p.Run(context.Background(), RunOptions{Incremental: true, EndDate: "2025-06-07"})
		require.Error(t, err)
		assert.Empty(t, wm.saved)
		assert.Empty(t, store.runs)
	})

	t.Run("empty window still advances the watermark", func(t *testing.T) {
		store := newFakeStore()
		wm := &fakeWatermark{}
		p := NewPipeline(store, &fakeDownloader{}, wm, testPipelineConfig())

		require.NoError(t, p.Run(context.Background(), RunOptions{StartDate: "2025-06-01", EndDate: "2025-06-07"}))
		require.Len(t, store.runs, 1)
		assert.Equal(t, 0, store.runs[0].DocumentCount)
		assert.Equal(t, []string{"2025-06-07"}, wm.saved)
	})
}
