// Package scanner fetches and parses the exchange's daily disclosures
// listing page into candidate disclosures for the pipeline.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/models"
)

// ErrListingUnavailable indicates the listing page could not be fetched
// or parsed at all. The whole run ends when this is returned; it is not
// a per-document failure.
var ErrListingUnavailable = errors.New("disclosures listing unavailable")

const maxIssuerCodeLen = 10

// Service scrapes the daily disclosures listing.
type Service struct {
	listingURL         string
	userAgent          string
	priceSensitiveOnly bool
	httpClient         *http.Client
	logger             arbor.ILogger
}

// NewService creates a listing scanner from configuration.
func NewService(cfg *common.ScannerConfig, logger arbor.ILogger) *Service {
	return &Service{
		listingURL:         cfg.ListingURL,
		userAgent:          cfg.UserAgent,
		priceSensitiveOnly: cfg.PriceSensitiveOnly,
		httpClient:         &http.Client{Timeout: common.Duration(cfg.RequestTimeout, 30*time.Second)},
		logger:             logger,
	}
}

// Scan fetches the listing page and returns today's candidate
// disclosures. Malformed rows are skipped and counted, never fatal.
func (s *Service) Scan(ctx context.Context) (*models.ScanReport, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.listingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListingUnavailable, err)
	}

	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrListingUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListingUnavailable, err)
	}

	report, err := s.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("candidates", len(report.Candidates)).
		Int("price_sensitive", report.PriceSensitiveCount).
		Int("rows_skipped", report.RowsSkipped).
		Msg("Disclosures listing scanned")

	return report, nil
}

// Parse extracts candidate disclosures from the listing HTML.
//
// Row structure:
//
//	<tr>
//	  <td>BHP</td>
//	  <td>01/09/2026<br><span class="dates-time">10:24 am</span></td>
//	  <td class="pricesens"><img src=".../icon-price-sensitive.png"></td>
//	  <td><a href="...displayAnnouncement.do?...">Headline<br>
//	      <span class="page">12 pages</span><span class="filesize">243KB</span></a></td>
//	</tr>
func (s *Service) Parse(r io.Reader) (*models.ScanReport, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse listing HTML: %v", ErrListingUnavailable, err)
	}

	report := &models.ScanReport{FetchedAt: time.Now()}

	doc.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		candidate, ok := s.parseRow(row)
		if !ok {
			report.RowsSkipped++
			return
		}
		if candidate.PriceSensitive {
			report.PriceSensitiveCount++
		} else if s.priceSensitiveOnly {
			return
		}
		report.Candidates = append(report.Candidates, *candidate)
	})

	return report, nil
}

var pageCountPattern = regexp.MustCompile(`(\d+)`)

func (s *Service) parseRow(row *goquery.Selection) (*models.CandidateDisclosure, bool) {
	cells := row.Find("td")
	if cells.Length() < 4 {
		return nil, false
	}

	code := strings.TrimSpace(cells.Eq(0).Text())
	if code == "" || len(code) > maxIssuerCodeLen {
		return nil, false
	}

	publishedAt, ok := parseRowTime(cells.Eq(1))
	if !ok {
		return nil, false
	}

	priceSensitive := isPriceSensitive(cells.Eq(2))

	titleCell := cells.Eq(3)
	anchor := titleCell.Find("a").First()
	href, hasHref := anchor.Attr("href")
	if !hasHref || strings.TrimSpace(href) == "" {
		return nil, false
	}

	title := anchorTitle(anchor)
	if title == "" {
		return nil, false
	}

	documentURL := href
	if strings.HasPrefix(documentURL, "/") {
		documentURL = "https://www.asx.com.au" + documentURL
	}

	pageCount := 0
	if pageText := titleCell.Find("span.page").First().Text(); pageText != "" {
		if m := pageCountPattern.FindStringSubmatch(pageText); len(m) >= 2 {
			pageCount, _ = strconv.Atoi(m[1])
		}
	}
	fileSize := strings.TrimSpace(titleCell.Find("span.filesize").First().Text())

	return &models.CandidateDisclosure{
		IssuerCode:     strings.ToUpper(code),
		Title:          title,
		PublishedAt:    publishedAt,
		DocumentURL:    documentURL,
		PriceSensitive: priceSensitive,
		PageCount:      pageCount,
		FileSize:       fileSize,
	}, true
}

// parseRowTime reads the date cell: a DD/MM/YYYY date followed by a
// time span. Rows without a parseable date are skipped.
func parseRowTime(cell *goquery.Selection) (time.Time, bool) {
	timeText := strings.TrimSpace(cell.Find("span.dates-time").First().Text())

	// Remove the time span's text so only the date remains
	dateText := strings.TrimSpace(cell.Text())
	if timeText != "" {
		dateText = strings.TrimSpace(strings.Replace(dateText, timeText, "", 1))
	}

	if timeText != "" {
		if dt, err := time.Parse("02/01/2006 3:04 pm", dateText+" "+normalizeTime(timeText)); err == nil {
			return dt, true
		}
	}
	if dt, err := time.Parse("02/01/2006", dateText); err == nil {
		return dt, true
	}
	return time.Time{}, false
}

func normalizeTime(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.ReplaceAll(t, "am", " am")
	t = strings.ReplaceAll(t, "pm", " pm")
	return strings.Join(strings.Fields(t), " ")
}

// isPriceSensitive checks the price-sensitive marker cell. The marker
// appears as an icon image, an asterisk or a dollar sign depending on
// page variant.
func isPriceSensitive(cell *goquery.Selection) bool {
	if cell.Find("img").Length() > 0 {
		return true
	}
	text := strings.TrimSpace(cell.Text())
	return strings.Contains(text, "*") || strings.Contains(text, "$")
}

// anchorTitle returns the anchor text before any nested spans (page
// count and file size share the anchor on some page variants).
func anchorTitle(anchor *goquery.Selection) string {
	clone := anchor.Clone()
	clone.Find("span").Remove()
	return strings.Join(strings.Fields(clone.Text()), " ")
}
