package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/fragrance-scraper/internal/models"
)

// PageExtractor turns a rendered perfume detail page into a record. Missing
// optional sections yield empty fields.
type PageExtractor interface {
	Extract(doc *goquery.Document, sourceURL, brandOverride string) *models.Record
}

// ListingExtractor reads the perfume links of a designer page.
type ListingExtractor interface {
	ExtractListing(doc *goquery.Document, pageURL string) *models.BrandListing
}

// Document parses rendered page HTML.
func Document(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}
