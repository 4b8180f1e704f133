// fetcher/fulltext.go
package fetcher

import (
	"context"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxFullTextBytes caps a single enrichment download. Registry full-text
// bodies are occasionally enormous; anything past this is truncated.
const maxFullTextBytes = 16 << 20

var multiNewline = regexp.MustCompile(`\n{3,}`)

// FetchFullText retrieves a document's supplementary full text from the URL
// embedded in its record and reduces the markup to plain text. Enrichment is
// best-effort by contract: every failure is logged and yields an empty
// string, never an error.
func (c *Client) FetchFullText(ctx context.Context, rawURL string) string {
	if rawURL == "" {
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		log.Printf("WARN Fetcher: Bad full-text URL %q: %v", rawURL, err)
		return ""
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("WARN Fetcher: Full-text fetch failed for %s: %v", rawURL, err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("WARN Fetcher: Full-text fetch for %s returned status %d.", rawURL, resp.StatusCode)
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFullTextBytes))
	if err != nil {
		log.Printf("WARN Fetcher: Failed reading full-text body for %s: %v", rawURL, err)
		return ""
	}

	return htmlToPlainText(string(body))
}

// htmlToPlainText converts basic HTML/XML markup to readable plain text:
// explicit breaks become newlines, all other tags are stripped, and runs of
// blank lines are collapsed.
func htmlToPlainText(markup string) string {
	text := strings.ReplaceAll(markup, "<br>", "\n")
	text = strings.ReplaceAll(text, "<br />", "\n")
	text = strings.ReplaceAll(text, "<br/>", "\n")
	text = strings.ReplaceAll(text, "</p>", "\n\n")
	text = strings.ReplaceAll(text, "</P>", "\n\n")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		log.Printf("WARN Fetcher: Could not parse markup for plain-text conversion: %v. Returning partially cleaned text.", err)
		return strings.TrimSpace(text)
	}

	plain := doc.Text()
	plain = strings.ReplaceAll(plain, "\r\n", "\n")
	plain = strings.ReplaceAll(plain, "\r", "\n")
	plain = multiNewline.ReplaceAllString(plain, "\n\n")
	return strings.TrimSpace(plain)
}
