package parser

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/fragrance-scraper/internal/models"
)

const siteOrigin = "https://www.fragrantica.com"

var brandHeadingSuffix = regexp.MustCompile(`(?i)\s+Perfumes?\s+And?\s+Colognes?`)

func (p *FragranticaParser) ParseListing(html, pageURL string) (*models.BrandListing, error) {
	doc, err := Document(html)
	if err != nil {
		return nil, err
	}
	return p.ExtractListing(doc, pageURL), nil
}

// ExtractListing reads the brand name, collections and perfume links of a
// designer page.
func (p *FragranticaParser) ExtractListing(doc *goquery.Document, pageURL string) *models.BrandListing {
	listing := &models.BrandListing{
		URL:         pageURL,
		BrandName:   listingBrand(doc, pageURL),
		Collections: []models.Collection{},
		PerfumeURLs: []string{},
	}

	doc.Find(`p[data-magellan] a[href^="#"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		listing.Collections = append(listing.Collections, models.Collection{
			ID:   strings.Replace(href, "#", "", 1),
			Name: strings.TrimSpace(a.Text()),
		})
	})

	seen := make(map[string]struct{})
	for _, c := range listing.Collections {
		section := doc.Find("div").FilterFunction(func(_ int, s *goquery.Selection) bool {
			id, _ := s.Attr("id")
			return id == c.ID
		}).First()
		if section.Length() == 0 {
			continue
		}

		boxes := section.AddSelection(section.NextAllFiltered(".cell.prefumeHbox"))
		boxes.Each(func(_ int, box *goquery.Selection) {
			href, ok := box.Find(`h3 a[href*="/perfume/"]`).First().Attr("href")
			if !ok || href == "" {
				return
			}
			if !strings.HasPrefix(href, "http") {
				href = siteOrigin + href
			}
			if _, dup := seen[href]; dup {
				return
			}
			seen[href] = struct{}{}
			listing.PerfumeURLs = append(listing.PerfumeURLs, href)
		})
	}

	return listing
}

func listingBrand(doc *goquery.Document, pageURL string) string {
	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		text := strings.TrimSpace(h1.Text())
		return strings.TrimSpace(brandHeadingSuffix.ReplaceAllString(text, ""))
	}

	if u, err := url.Parse(pageURL); err == nil {
		parts := strings.Split(u.Path, "/")
		for i, part := range parts {
			if part == "designers" && i+1 < len(parts) && parts[i+1] != "" {
				name := strings.TrimSuffix(parts[i+1], ".html")
				return strings.ReplaceAll(name, "-", " ")
			}
		}
	}

	return UnknownBrand
}
