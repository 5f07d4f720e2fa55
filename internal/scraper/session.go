package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/fragrance-scraper/internal/browser"
	"github.com/maltedev/fragrance-scraper/internal/metrics"
	"github.com/maltedev/fragrance-scraper/internal/models"
	"github.com/maltedev/fragrance-scraper/internal/parser"
	"github.com/maltedev/fragrance-scraper/internal/ratelimit"
)

const (
	kindDetail  = "detail"
	kindListing = "listing"

	accordWidthScript = `() => Array.from(document.querySelectorAll('.accord-bar'))
  .some(el => /width:\s*\d+%/.test(el.getAttribute('style') || ''))`

	flatNotesSelector = `div[style*="display: flex"][style*="padding: 0.5rem"]`
)

// Session loads pages one at a time through a browser and extracts them.
// It is not safe for concurrent use; the crawl slot serializes callers.
type Session struct {
	open      PageOpener
	extractor parser.PageExtractor
	listing   parser.ListingExtractor
	guard     *ratelimit.Guard
	policy    *ratelimit.Policy
	sleep     ratelimit.SleepFunc
	opts      Options
	logger    *slog.Logger
}

func NewSession(open PageOpener, guard *ratelimit.Guard, policy *ratelimit.Policy, opts Options, logger *slog.Logger) *Session {
	if policy == nil {
		policy = ratelimit.DefaultPolicy()
	}
	if guard == nil {
		guard = ratelimit.NewGuard(policy.Cooldown, nil)
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = browser.DefaultUserAgents
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := parser.NewFragranticaParser()
	return &Session{
		open:      open,
		extractor: p,
		listing:   p,
		guard:     guard,
		policy:    policy,
		sleep:     ratelimit.Sleep,
		opts:      opts,
		logger:    logger.With("component", "session"),
	}
}

// WithSleep replaces the sleeper used for retries, cooldowns and detours.
func (s *Session) WithSleep(sleep ratelimit.SleepFunc) *Session {
	s.sleep = sleep
	return s
}

func (s *Session) WithExtractors(detail parser.PageExtractor, listing parser.ListingExtractor) *Session {
	s.extractor = detail
	s.listing = listing
	return s
}

func (s *Session) Guard() *ratelimit.Guard {
	return s.guard
}

// LoadAndExtract loads a perfume page and extracts its record. Blocked pages
// return an error wrapping ratelimit.ErrRateLimited.
func (s *Session) LoadAndExtract(ctx context.Context, url, brandOverride string) (*models.Record, error) {
	var record *models.Record
	err := s.withRetry(ctx, url, kindDetail, func(page Page, title string) error {
		rec, err := s.extractDetail(page, url, title, brandOverride)
		if err != nil {
			return err
		}
		record = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// LoadListing loads a designer page and reads its perfume links.
func (s *Session) LoadListing(ctx context.Context, url string) (*models.BrandListing, error) {
	var listing *models.BrandListing
	err := s.withRetry(ctx, url, kindListing, func(page Page, _ string) error {
		if _, err := page.WaitForSelector("p[data-magellan]", playwright.PageWaitForSelectorOptions{
			Timeout: millis(s.opts.Waits.Listing),
		}); err != nil {
			s.logger.Warn("collection index not rendered", "url", url, "error", err)
		}

		doc, err := s.document(page)
		if err != nil {
			return err
		}
		listing = s.listing.ExtractListing(doc, url)
		metrics.ObservePage(kindListing, "ok")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

func (s *Session) withRetry(ctx context.Context, url, kind string, extract func(Page, string) error) error {
	attempts := s.policy.Attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.attempt(ctx, url, kind, extract)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == attempts {
			break
		}

		wait, reason := s.policy.RetryDelay(attempt), "retry"
		if errors.Is(err, ratelimit.ErrRateLimited) {
			wait, reason = s.policy.Cooldown, "cooldown"
		}

		s.logger.Warn("attempt failed",
			"url", url,
			"attempt", attempt,
			"max_attempts", attempts,
			"wait", wait,
			"error", err)

		metrics.ObserveDelay(reason, wait)
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}

	return fmt.Errorf("failed to load %s after %d attempts: %w", url, attempts, lastErr)
}

func (s *Session) attempt(ctx context.Context, url, kind string, extract func(Page, string) error) error {
	page, err := s.open()
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			s.logger.Debug("failed to close page", "error", err)
		}
	}()

	if err := s.prepare(page); err != nil {
		return err
	}

	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   millis(s.opts.NavigationTimeout),
	}); err != nil {
		metrics.ObservePage(kind, "error")
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	title, err := s.checkPage(page, kind)
	if err != nil {
		return err
	}

	if kind == kindDetail && s.policy.ShouldDetour() {
		s.detour(ctx, page, url)
	}

	return extract(page, title)
}

// prepare applies a random user agent and the stealth init script.
func (s *Session) prepare(page Page) error {
	ua := browser.Pick(s.opts.UserAgents, s.policy.Pick)

	if err := page.SetExtraHTTPHeaders(map[string]string{"User-Agent": ua}); err != nil {
		return fmt.Errorf("failed to set headers: %w", err)
	}
	if err := page.AddInitScript(playwright.Script{
		Content: playwright.String(browser.StealthScript(ua)),
	}); err != nil {
		return fmt.Errorf("failed to add init script: %w", err)
	}
	return nil
}

// checkPage classifies the loaded page and returns its title.
func (s *Session) checkPage(page Page, kind string) (string, error) {
	title, err := page.Title()
	if err != nil {
		return "", fmt.Errorf("failed to get page title: %w", err)
	}
	content, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}

	verdict := s.guard.Classify(title, content)
	state := s.guard.Observe(verdict)
	if verdict == ratelimit.VerdictBlocked {
		metrics.ObserveBlock()
		metrics.ObservePage(kind, "blocked")
		s.logger.Warn("page blocked", "title", title, "consecutive_blocks", state.ConsecutiveBlocks)
		return "", fmt.Errorf("%w: %s", ratelimit.ErrRateLimited, title)
	}
	return title, nil
}

func (s *Session) extractDetail(page Page, url, pageTitle, brandOverride string) (*models.Record, error) {
	s.waitForAccords(page)
	s.waitForNotes(page)

	doc, err := s.document(page)
	if err != nil {
		return nil, err
	}

	rec := s.extractor.Extract(doc, url, brandOverride)

	verdict := s.guard.ClassifyRecord(rec.ScrapedBrand, rec.Title)
	if verdict == ratelimit.VerdictOK {
		verdict = s.guard.ClassifyRecord(rec.ScrapedBrand, pageTitle)
	}
	if verdict == ratelimit.VerdictBlocked {
		state := s.guard.Observe(verdict)
		metrics.ObserveBlock()
		metrics.ObservePage(kindDetail, "blocked")
		s.logger.Warn("degraded page extracted", "url", url, "title", pageTitle, "consecutive_blocks", state.ConsecutiveBlocks)
		return nil, fmt.Errorf("%w: degraded page %q", ratelimit.ErrRateLimited, pageTitle)
	}

	metrics.ObservePage(kindDetail, "ok")
	s.logger.Debug("extracted record",
		"url", url,
		"title", rec.Title,
		"accords", len(rec.Accords),
		"layout", rec.NoteLayout)
	return rec, nil
}

func (s *Session) document(page Page) (*goquery.Document, error) {
	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to get page content: %w", err)
	}
	return parser.Document(html)
}

// waitForAccords waits for the accord bars in order and stops at the first
// section that does not render.
func (s *Session) waitForAccords(page Page) {
	w := s.opts.Waits
	steps := []struct {
		selector string
		timeout  time.Duration
	}{
		{"h6", w.Heading},
		{".grid-x", w.Grid},
		{".cell.accord-box", w.AccordBox},
	}

	for _, step := range steps {
		if _, err := page.WaitForSelector(step.selector, playwright.PageWaitForSelectorOptions{
			Timeout: millis(step.timeout),
		}); err != nil {
			s.logger.Warn("accords not rendered", "selector", step.selector, "error", err)
			return
		}
	}

	if _, err := page.WaitForFunction(accordWidthScript, nil, playwright.PageWaitForFunctionOptions{
		Timeout: millis(w.AccordWidth),
	}); err != nil {
		s.logger.Warn("accord widths not rendered", "error", err)
	}
}

func (s *Session) waitForNotes(page Page) {
	for _, step := range []struct {
		selector string
		timeout  time.Duration
	}{
		{".pyramid", s.opts.Waits.Pyramid},
		{flatNotesSelector, s.opts.Waits.FlatNotes},
	} {
		if _, err := page.WaitForSelector(step.selector, playwright.PageWaitForSelectorOptions{
			Timeout: millis(step.timeout),
		}); err != nil {
			s.logger.Debug("notes section absent", "selector", step.selector)
		}
	}
}

// detour visits an unrelated notes page and comes back. Failures are logged
// and never fail the attempt.
func (s *Session) detour(ctx context.Context, page Page, url string) {
	target := browser.Pick(s.opts.DetourPages, s.policy.Pick)
	if target == "" {
		return
	}

	s.logger.Info("taking detour", "url", url, "detour", target)

	if _, err := page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   millis(s.opts.DetourTimeout),
	}); err != nil {
		s.logger.Warn("detour navigation failed", "detour", target, "error", err)
		return
	}

	dwell := s.policy.DetourDwell()
	metrics.ObserveDelay("detour", dwell)
	if err := s.sleep(ctx, dwell); err != nil {
		s.logger.Debug("detour interrupted", "error", err)
	}

	if _, err := page.GoBack(playwright.PageGoBackOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   millis(s.opts.NavigationTimeout),
	}); err != nil {
		s.logger.Warn("detour return failed, reloading", "url", url, "error", err)
		if _, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateNetworkidle,
			Timeout:   millis(s.opts.NavigationTimeout),
		}); err != nil {
			s.logger.Warn("reload after detour failed", "url", url, "error", err)
		}
	}
}
