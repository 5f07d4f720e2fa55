package ratelimit

import (
	"strings"
	"sync"
	"time"
)

type Verdict string

const (
	VerdictOK      Verdict = "ok"
	VerdictBlocked Verdict = "blocked"
)

const (
	// TooManyRequests is the title the site serves instead of a 429 status.
	TooManyRequests = "429 Too Many Requests"

	unknownBrand = "Unknown Brand"
	siteHost     = "www.fragrantica.com"
)

// DefaultMarkers are challenge page titles treated as blocks.
func DefaultMarkers() []string {
	return []string{
		"Just a moment",
		"Checking your browser",
		"Attention Required! | Cloudflare",
	}
}

// State is the block history of one navigation session.
type State struct {
	LastVerdict       Verdict       `json:"lastVerdict"`
	ConsecutiveBlocks int           `json:"consecutiveBlocks"`
	BackoffWindow     time.Duration `json:"backoffWindow"`
	LastBlockedAt     time.Time     `json:"lastBlockedAt,omitempty"`
}

// Guard classifies loaded pages and tracks the session's block state.
type Guard struct {
	mu       sync.Mutex
	markers  []string
	cooldown time.Duration
	state    State
	now      func() time.Time
}

func NewGuard(cooldown time.Duration, markers []string) *Guard {
	if markers == nil {
		markers = DefaultMarkers()
	}
	return &Guard{
		markers:  markers,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Classify inspects the page title and the <title> element of the page
// content. Body text is not matched, since reviews quote arbitrary phrases.
func (g *Guard) Classify(title, content string) Verdict {
	for _, t := range []string{title, documentTitle(content)} {
		if t == "" {
			continue
		}
		if strings.Contains(t, TooManyRequests) {
			return VerdictBlocked
		}
		for _, m := range g.markers {
			if m != "" && strings.Contains(t, m) {
				return VerdictBlocked
			}
		}
	}
	return VerdictOK
}

// documentTitle returns the text of the first <title> element in content.
func documentTitle(content string) string {
	lower := strings.ToLower(content)
	start := strings.Index(lower, "<title")
	if start < 0 {
		return ""
	}
	open := strings.Index(lower[start:], ">")
	if open < 0 {
		return ""
	}
	start += open + 1
	end := strings.Index(lower[start:], "</title")
	if end < 0 {
		return strings.TrimSpace(content[start:])
	}
	return strings.TrimSpace(content[start : start+end])
}

// ClassifyRecord catches a degraded page that loaded without an error page:
// no brand could be read and the title is the bare host or mentions 429.
func (g *Guard) ClassifyRecord(scrapedBrand, title string) Verdict {
	if scrapedBrand != unknownBrand {
		return VerdictOK
	}
	if title == siteHost || strings.Contains(strings.ToLower(title), "429") {
		return VerdictBlocked
	}
	return VerdictOK
}

// Observe records a verdict. A success resets the state.
func (g *Guard) Observe(v Verdict) State {
	g.mu.Lock()
	defer g.mu.Unlock()

	if v == VerdictBlocked {
		g.state = State{
			LastVerdict:       VerdictBlocked,
			ConsecutiveBlocks: g.state.ConsecutiveBlocks + 1,
			BackoffWindow:     g.cooldown,
			LastBlockedAt:     g.now(),
		}
		return g.state
	}

	g.state = State{LastVerdict: v}
	return g.state
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
