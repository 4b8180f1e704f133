// fetcher/snapshot.go
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/b3yotch/spyder/models"
)

// DownloadRange fetches every page for the range and serializes the raw
// record sequence to a snapshot file named deterministically from the range.
// The snapshot is an audit/replay artifact; the pipeline works from the
// returned in-memory records.
func (c *Client) DownloadRange(ctx context.Context, startDate, endDate string) (string, []models.RawDocument, error) {
	docs, err := c.FetchAllPages(ctx, startDate, endDate)
	if err != nil {
		return "", nil, fmt.Errorf("failed to fetch range %s..%s: %w", startDate, endDate, err)
	}
	if docs == nil {
		docs = []models.RawDocument{}
	}

	if err := os.MkdirAll(c.rawDir, 0755); err != nil {
		return "", nil, fmt.Errorf("failed to create snapshot directory %s: %w", c.rawDir, err)
	}

	path := filepath.Join(c.rawDir, fmt.Sprintf("registry_%s_to_%s.json", startDate, endDate))
	outFile, err := os.Create(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create snapshot file %s: %w", path, err)
	}
	defer outFile.Close()

	if err := json.NewEncoder(outFile).Encode(docs); err != nil {
		return "", nil, fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}

	log.Printf("Fetcher: Saved %d raw documents to %s.", len(docs), path)
	return path, docs, nil
}
