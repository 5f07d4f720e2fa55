package scraper

import (
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/fragrance-scraper/internal/browser"
)

// Page is the subset of playwright.Page the session drives.
type Page interface {
	Goto(url string, options ...playwright.PageGotoOptions) (playwright.Response, error)
	GoBack(options ...playwright.PageGoBackOptions) (playwright.Response, error)
	Title() (string, error)
	Content() (string, error)
	WaitForSelector(selector string, options ...playwright.PageWaitForSelectorOptions) (playwright.ElementHandle, error)
	WaitForFunction(expression string, arg interface{}, options ...playwright.PageWaitForFunctionOptions) (playwright.JSHandle, error)
	AddInitScript(script playwright.Script) error
	SetExtraHTTPHeaders(headers map[string]string) error
	Close(options ...playwright.PageCloseOptions) error
}

// PageOpener returns a fresh page for one attempt.
type PageOpener func() (Page, error)

// Waits bounds each readiness wait on a detail page.
type Waits struct {
	Heading     time.Duration
	Grid        time.Duration
	AccordBox   time.Duration
	AccordWidth time.Duration
	Pyramid     time.Duration
	FlatNotes   time.Duration
	Listing     time.Duration
}

type Options struct {
	UserAgents        []string
	DetourPages       []string
	NavigationTimeout time.Duration
	DetourTimeout     time.Duration
	Waits             Waits
}

func DefaultOptions() Options {
	return Options{
		UserAgents:        browser.DefaultUserAgents,
		DetourPages:       browser.NotesPages,
		NavigationTimeout: 60 * time.Second,
		DetourTimeout:     30 * time.Second,
		Waits: Waits{
			Heading:     15 * time.Second,
			Grid:        20 * time.Second,
			AccordBox:   20 * time.Second,
			AccordWidth: 20 * time.Second,
			Pyramid:     5 * time.Second,
			FlatNotes:   5 * time.Second,
			Listing:     15 * time.Second,
		},
	}
}

func millis(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}
