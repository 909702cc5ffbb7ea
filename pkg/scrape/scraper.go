// Package scrape fetches and cleans web pages submitted as message
// sources.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/eventhint/eventhint/pkg/logging"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	maxBodySize = 8 << 20
)

// Link is an outbound anchor found on a scraped page.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Page is the result of a scrape. OK is false when the fetch or parse
// failed; Error then carries the reason. Scrape failures are final for
// the message that submitted the URL.
type Page struct {
	OK          bool
	URL         string
	Title       string
	Text        string
	HTML        string
	Links       []Link
	ContentType string
	Error       string
}

// Scraper fetches pages with a bounded timeout and strips boilerplate
// elements before text extraction.
type Scraper struct {
	client    *http.Client
	userAgent string
	log       logging.Logger
}

// New builds a scraper. Zero timeout means the 10 second default.
func New(timeout time.Duration, log logging.Logger) *Scraper {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Scraper{
		client:    &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
		log:       log,
	}
}

// Scrape fetches a URL and extracts title, cleaned text, and outbound
// links. Never returns an error; failures come back as Page{OK: false}.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) *Page {
	page := &Page{URL: rawURL}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		page.Error = "Invalid URL format"
		return page
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		page.Error = fmt.Sprintf("Request failed: %v", err)
		return page
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Error("scrape request failed", logging.F("url", rawURL), logging.Err(err))
		page.Error = fmt.Sprintf("Request failed: %v", err)
		return page
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		page.Error = fmt.Sprintf("Request failed: status %d", resp.StatusCode)
		return page
	}
	page.ContentType = resp.Header.Get("Content-Type")

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		page.Error = fmt.Sprintf("Request failed: %v", err)
		return page
	}
	page.HTML = string(body)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		page.Error = fmt.Sprintf("Scraping failed: %v", err)
		return page
	}

	page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if page.Title == "" {
		page.Title = "Untitled"
	}

	doc.Find("script, style, nav, footer, header").Remove()

	page.Text = cleanText(doc.Find("body").Text())
	if page.Text == "" {
		page.Text = cleanText(doc.Text())
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if strings.HasPrefix(href, "http") || strings.HasPrefix(href, "//") {
			page.Links = append(page.Links, Link{
				URL:  href,
				Text: strings.TrimSpace(sel.Text()),
			})
		}
	})

	page.OK = true
	s.log.Info("scraped page",
		logging.F("url", rawURL),
		logging.F("chars", len(page.Text)),
		logging.F("links", len(page.Links)))
	return page
}

// cleanText collapses each line to trimmed form and drops empties.
func cleanText(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
