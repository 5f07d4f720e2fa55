package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/fragrance-scraper/internal/models"
)

const (
	UnknownBrand   = "Unknown Brand"
	UnknownPerfume = "Unknown Perfume"

	maxAccords = 5
)

var (
	accordWidthPattern = regexp.MustCompile(`width:\s*([\d.]+)%`)
	titleSuffixPattern = regexp.MustCompile(`(?i)\s+for\s+women\s+and\s+men.*$`)
)

// FragranticaParser extracts perfume records from fragrantica detail pages.
type FragranticaParser struct {
	notes []NoteStrategy
	now   func() time.Time
}

func NewFragranticaParser() *FragranticaParser {
	return &FragranticaParser{
		notes: DefaultNoteStrategies(),
		now:   time.Now,
	}
}

// ParseRecord parses html and extracts the record from it.
func (p *FragranticaParser) ParseRecord(html, sourceURL, brandOverride string) (*models.Record, error) {
	doc, err := Document(html)
	if err != nil {
		return nil, err
	}
	return p.Extract(doc, sourceURL, brandOverride), nil
}

func (p *FragranticaParser) Extract(doc *goquery.Document, sourceURL, brandOverride string) *models.Record {
	scraped := p.extractBrand(doc)
	brand := scraped
	if override := strings.TrimSpace(brandOverride); override != "" {
		brand = override
	}

	notes, layout := p.extractNotes(doc)

	return &models.Record{
		SourceURL:    strings.TrimSpace(sourceURL),
		BrandName:    brand,
		ScrapedBrand: scraped,
		Title:        p.extractTitle(doc),
		Accords:      p.extractAccords(doc),
		Notes:        notes,
		NoteLayout:   layout,
		ScrapedAt:    p.now(),
	}
}

func (p *FragranticaParser) extractBrand(doc *goquery.Document) string {
	brand := strings.TrimSpace(doc.Find(`span[itemprop="name"]`).First().Text())
	if brand == "" {
		return UnknownBrand
	}
	return brand
}

func (p *FragranticaParser) extractTitle(doc *goquery.Document) string {
	h1 := doc.Find("h1.text-center.medium-text-left").First()
	if h1.Length() == 0 {
		return UnknownPerfume
	}
	title := strings.TrimSpace(h1.Text())
	return strings.TrimSpace(titleSuffixPattern.ReplaceAllString(title, ""))
}

// extractAccords reads the bars of the grid that follows the "main accords"
// heading, in page order.
func (p *FragranticaParser) extractAccords(doc *goquery.Document) []models.Accord {
	accords := []models.Accord{}

	heading := accordHeading(doc)
	if heading.Length() == 0 {
		return accords
	}

	grid := heading.Next()
	if grid.Length() == 0 || !grid.HasClass("grid-x") {
		return accords
	}

	grid.Find(".cell.accord-box").EachWithBreak(func(i int, box *goquery.Selection) bool {
		if i >= maxAccords {
			return false
		}

		bar := box.Find(".accord-bar").First()
		if bar.Length() == 0 {
			return true
		}

		name := strings.TrimSpace(bar.Text())
		if name == "" || name == "Unknown" || utf8.RuneCountInString(name) <= 1 {
			return true
		}

		style, _ := bar.Attr("style")
		accords = append(accords, models.Accord{Name: name, Width: parseWidth(style)})
		return true
	})

	return accords
}

func accordHeading(doc *goquery.Document) *goquery.Selection {
	headings := doc.Find("h6")
	match := headings.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(strings.ToLower(s.Text()), "main accords")
	})
	if match.Length() > 0 {
		return match.First()
	}
	return headings.First()
}

func parseWidth(style string) *float64 {
	m := accordWidthPattern.FindStringSubmatch(style)
	if m == nil {
		return nil
	}
	width, err := strconv.ParseFloat(m[1], 64)
	if err != nil || width < 0 || width > 100 {
		return nil
	}
	return &width
}

// extractNotes runs the note strategies in order. The first one that finds
// tiered notes wins outright; untiered results are merged into Flat.
func (p *FragranticaParser) extractNotes(doc *goquery.Document) (models.Notes, string) {
	notes := models.NewNotes()

	for _, strategy := range p.notes {
		found := strategy.Extract(doc)
		if found.Tiered() {
			found.Flat = []string{}
			return found, strategy.Layout()
		}
		for _, n := range found.Flat {
			notes.Flat = appendUnique(notes.Flat, n)
		}
	}

	if len(notes.Flat) > 0 {
		return notes, models.LayoutFlat
	}
	return notes, ""
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
