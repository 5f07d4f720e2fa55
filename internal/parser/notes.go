package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/fragrance-scraper/internal/models"
)

// NoteStrategy extracts notes for one page template family.
type NoteStrategy interface {
	Layout() string
	Extract(doc *goquery.Document) models.Notes
}

// DefaultNoteStrategies returns the pyramid layout first and the flat
// layout as its fallback.
func DefaultNoteStrategies() []NoteStrategy {
	return []NoteStrategy{PyramidNotes{}, FlatNotes{}}
}

// PyramidNotes reads notes listed under "Top", "Middle" and "Base" headings.
// A "Fragrance Notes" heading is reported as untiered.
type PyramidNotes struct{}

func (PyramidNotes) Layout() string { return models.LayoutPyramid }

func (PyramidNotes) Extract(doc *goquery.Document) models.Notes {
	notes := models.NewNotes()

	doc.Find("h4, h5").Each(func(_ int, h *goquery.Selection) {
		title := strings.ToLower(strings.TrimSpace(h.Text()))

		var target *[]string
		switch {
		case strings.Contains(title, "top"):
			target = &notes.Top
		case strings.Contains(title, "middle"):
			target = &notes.Middle
		case strings.Contains(title, "base"):
			target = &notes.Base
		case strings.Contains(title, "fragrance notes"):
			target = &notes.Flat
		default:
			return
		}

		block := h.Next()
		if block.Length() == 0 || goquery.NodeName(block) != "div" {
			return
		}

		block.Find("div").Each(func(_ int, item *goquery.Selection) {
			if text := pyramidItemText(item); text != "" {
				*target = appendUnique(*target, text)
			}
		})
	})

	if notes.Tiered() {
		notes.Flat = []string{}
	}
	return notes
}

// pyramidItemText picks the label of a note item: the second nested div when
// there is an icon div before it, the only nested div, or the item itself.
func pyramidItemText(item *goquery.Selection) string {
	sub := item.Find("div")
	switch {
	case sub.Length() > 1:
		return strings.TrimSpace(sub.Eq(1).Text())
	case sub.Length() == 1:
		return strings.TrimSpace(sub.First().Text())
	default:
		return strings.TrimSpace(item.Text())
	}
}

// FlatNotes reads the untiered flex-wrap note list used by pages without a
// pyramid.
type FlatNotes struct{}

const flatContainerSelector = `div[style*="display: flex"][style*="padding: 0.5rem"]`

func (FlatNotes) Layout() string { return models.LayoutFlat }

func (FlatNotes) Extract(doc *goquery.Document) models.Notes {
	notes := models.NewNotes()

	container := doc.Find(flatContainerSelector).First()
	if container.Length() == 0 {
		return notes
	}

	container.Find(`div[style*="margin: 0.2rem"]`).Each(func(_ int, item *goquery.Selection) {
		divs := item.Find("div")
		if divs.Length() < 2 {
			return
		}
		label := divs.Eq(1)
		if label.Find("a").Length() == 0 {
			return
		}
		if text := strings.TrimSpace(label.Text()); text != "" {
			notes.Flat = appendUnique(notes.Flat, text)
		}
	})

	return notes
}
