package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/maltedev/fragrance-scraper/internal/browser"
	"github.com/maltedev/fragrance-scraper/internal/database"
	"github.com/maltedev/fragrance-scraper/internal/ratelimit"
	"github.com/maltedev/fragrance-scraper/internal/scraper"
)

// Policy builds the pacing policy shared by the session and the scheduler.
func (c *Config) Policy() *ratelimit.Policy {
	p := ratelimit.DefaultPolicy()
	p.ItemDelayMin = c.Pacing.ItemDelayMin
	p.ItemDelayMax = c.Pacing.ItemDelayMax
	p.BatchDelayMin = c.Pacing.BatchDelayMin
	p.BatchDelayMax = c.Pacing.BatchDelayMax
	p.BatchSizeMin = c.Pacing.BatchSizeMin
	p.BatchSizeMax = c.Pacing.BatchSizeMax
	p.Cooldown = c.Pacing.Cooldown
	p.RetryStep = c.Scraper.RetryStep
	p.MaxAttempts = c.Scraper.MaxAttempts
	p.DetourChance = c.Scraper.DetourChance
	p.DetourDwellMin = c.Scraper.DetourDwellMin
	p.DetourDwellMax = c.Scraper.DetourDwellMax
	return p
}

func (c *Config) Guard() *ratelimit.Guard {
	markers := c.Scraper.BlockMarkers
	if len(markers) == 0 {
		markers = ratelimit.DefaultMarkers()
	}
	return ratelimit.NewGuard(c.Pacing.Cooldown, markers)
}

func (c *Config) ScraperOptions() scraper.Options {
	opts := scraper.DefaultOptions()
	if len(c.Scraper.UserAgents) > 0 {
		opts.UserAgents = c.Scraper.UserAgents
	}
	opts.NavigationTimeout = c.Scraper.NavigationTimeout
	opts.DetourTimeout = c.Scraper.DetourTimeout
	opts.Waits.Heading = c.Scraper.HeadingWait
	opts.Waits.Grid = c.Scraper.AccordWait
	opts.Waits.AccordBox = c.Scraper.AccordWait
	opts.Waits.AccordWidth = c.Scraper.AccordWait
	opts.Waits.Pyramid = c.Scraper.NotesWait
	opts.Waits.FlatNotes = c.Scraper.NotesWait
	opts.Waits.Listing = c.Scraper.ListingWait
	return opts
}

func (c *Config) BrowserOptions() *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = c.Browser.Headless
	opts.Timeout = c.Browser.Timeout
	opts.ViewportWidth = c.Browser.ViewportWidth
	opts.ViewportHeight = c.Browser.ViewportHeight
	opts.AcceptLanguage = c.Browser.AcceptLanguage
	opts.TimezoneID = c.Browser.TimezoneID
	opts.Locale = c.Browser.Locale
	opts.ProxyServer = c.Browser.ProxyServer
	return opts
}

func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Password: c.Database.Password,
		Database: c.Database.Name,
		SSLMode:  c.Database.SSLMode,
		MaxConns: int32(c.Database.MaxConns),
		MinConns: int32(c.Database.MinConns),
	}
}

// LogLevel maps LOG_LEVEL to a slog level. Unknown values fall back to info.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger on stdout.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel()}
	if strings.ToLower(c.Logging.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
