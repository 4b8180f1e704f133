// fetcher/client.go
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/b3yotch/spyder/config"
	"github.com/b3yotch/spyder/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrRetriesExhausted is returned when a page fetch kept hitting rate limits
// or connection failures until the retry budget ran out. Distinct from an
// empty page: callers must not confuse it with "no more data".
var ErrRetriesExhausted = errors.New("registry fetch retries exhausted")

// projectionFields is the fixed field projection requested from the registry.
var projectionFields = []string{
	"abstract",
	"document_number",
	"type",
	"publication_date",
	"title",
	"agencies",
	"html_url",
	"full_text_xml_url",
	"effective_on",
	"significant",
}

// Client talks to the upstream paginated documents endpoint. It owns no
// persistent state; every call is driven by the date range it is given.
type Client struct {
	httpClient        *http.Client
	baseURL           string
	pageSize          int
	batchSize         int
	maxRetries        int
	rateLimitCooldown time.Duration
	connRetryCooldown time.Duration
	limiter           *rate.Limiter
	rawDir            string
}

// NewClient builds a registry client from config. rawDir is where range
// snapshots are serialized.
func NewClient(cfg config.RegistryConfig, rawDir string) *Client {
	return &Client{
		httpClient:        &http.Client{Timeout: 30 * time.Second},
		baseURL:           cfg.BaseURL,
		pageSize:          cfg.PageSize,
		batchSize:         cfg.BatchSize,
		maxRetries:        cfg.MaxRetries,
		rateLimitCooldown: cfg.RateLimitCooldown,
		connRetryCooldown: cfg.ConnRetryCooldown,
		limiter:           rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BatchSize),
		rawDir:            rawDir,
	}
}

// FetchPage fetches one page of the projection for an inclusive
// publication-date range. Rate-limit responses wait the long cooldown and
// retry; connection failures wait the short cooldown and retry; both against
// a shared bounded budget, with ErrRetriesExhausted once it runs out. Any
// other non-success status yields an empty page, not an error.
func (c *Client) FetchPage(ctx context.Context, startDate, endDate string, page int) (*models.PageResult, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(startDate, endDate, page), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request for page %d: %w", page, err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			log.Printf("WARN Fetcher: Connection error on page %d (attempt %d/%d): %v", page, attempt, c.maxRetries, err)
			if attempt < c.maxRetries {
				if serr := sleepCtx(ctx, c.connRetryCooldown); serr != nil {
					return nil, serr
				}
			}
			continue
		}

		result, retry, err := c.readPage(resp, page)
		if err != nil {
			return nil, err
		}
		if !retry {
			return result, nil
		}

		lastErr = fmt.Errorf("rate limited (status %d)", http.StatusTooManyRequests)
		log.Printf("WARN Fetcher: Rate limited on page %d (attempt %d/%d). Waiting %s before retrying.",
			page, attempt, c.maxRetries, c.rateLimitCooldown)
		if attempt < c.maxRetries {
			if serr := sleepCtx(ctx, c.rateLimitCooldown); serr != nil {
				return nil, serr
			}
		}
	}

	return nil, fmt.Errorf("page %d after %d attempts: %w (last error: %v)",
		page, c.maxRetries, ErrRetriesExhausted, lastErr)
}

// readPage consumes one HTTP response. retry is true only for rate-limit
// responses; other non-success statuses degrade to an empty page.
func (c *Client) readPage(resp *http.Response, page int) (result *models.PageResult, retry bool, err error) {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var pr models.PageResult
		if decErr := json.NewDecoder(resp.Body).Decode(&pr); decErr != nil {
			return nil, false, fmt.Errorf("failed to decode page %d response: %w", page, decErr)
		}
		return &pr, false, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, nil

	default:
		log.Printf("WARN Fetcher: Unexpected status %d fetching page %d; treating as empty page.", resp.StatusCode, page)
		return &models.PageResult{Results: []models.RawDocument{}}, false, nil
	}
}

// FetchAllPages fetches every page of the range. Page 1 discovers the total
// page count; the remaining pages are fetched in bounded concurrent batches
// and resequenced by page number, so the returned order is deterministic
// regardless of which request finished first.
func (c *Client) FetchAllPages(ctx context.Context, startDate, endDate string) ([]models.RawDocument, error) {
	first, err := c.FetchPage(ctx, startDate, endDate, 1)
	if err != nil {
		return nil, err
	}

	totalPages := first.TotalPages
	log.Printf("Fetcher: Found %d documents across %d pages for %s..%s.", first.Count, totalPages, startDate, endDate)
	if totalPages <= 1 {
		return first.Results, nil
	}

	pages := make([][]models.RawDocument, totalPages+1)
	pages[1] = first.Results
	retrieved := len(first.Results)

	for batchStart := 2; batchStart <= totalPages; batchStart += c.batchSize {
		batchEnd := batchStart + c.batchSize - 1
		if batchEnd > totalPages {
			batchEnd = totalPages
		}

		eg, gctx := errgroup.WithContext(ctx)
		for page := batchStart; page <= batchEnd; page++ {
			page := page
			eg.Go(func() error {
				res, err := c.FetchPage(gctx, startDate, endDate, page)
				if err != nil {
					return err
				}
				pages[page] = res.Results
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, fmt.Errorf("failed fetching pages %d-%d: %w", batchStart, batchEnd, err)
		}

		for page := batchStart; page <= batchEnd; page++ {
			retrieved += len(pages[page])
		}
		log.Printf("Fetcher: Batch complete (pages %d-%d). Retrieved %d/%d documents.",
			batchStart, batchEnd, retrieved, first.Count)
	}

	all := make([]models.RawDocument, 0, retrieved)
	for page := 1; page <= totalPages; page++ {
		all = append(all, pages[page]...)
	}
	log.Printf("Fetcher: Download complete. Retrieved %d documents.", len(all))
	return all, nil
}

func (c *Client) pageURL(startDate, endDate string, page int) string {
	params := url.Values{}
	for _, f := range projectionFields {
		params.Add("fields[]", f)
	}
	params.Set("per_page", strconv.Itoa(c.pageSize))
	params.Set("page", strconv.Itoa(page))
	params.Set("order", "newest")
	params.Set("conditions[publication_date][gte]", startDate)
	params.Set("conditions[publication_date][lte]", endDate)
	return c.baseURL + "?" + params.Encode()
}

// sleepCtx waits for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
