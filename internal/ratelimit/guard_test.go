package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGuard_Classify(t *testing.T) {
	g := NewGuard(10*time.Minute, nil)

	tests := []struct {
		name    string
		title   string
		content string
		want    Verdict
	}{
		{"normal page", "Aventus Creed for men", "<html></html>", VerdictOK},
		{"429 title", "429 Too Many Requests", "", VerdictBlocked},
		{"429 title with suffix", "429 Too Many Requests - nginx", "", VerdictBlocked},
		{"cloudflare challenge", "Just a moment...", "", VerdictBlocked},
		{"cloudflare block", "Attention Required! | Cloudflare", "", VerdictBlocked},
		{"429 in document title only", "", "<html><head><title>429 Too Many Requests</title>", VerdictBlocked},
		{"429 mentioned in body text", "Note Lime", "<p>we got 429 Too Many Requests once</p>", VerdictOK},
		{"challenge in document title", "", "<html><head><title>Just a moment...</title></head>", VerdictBlocked},
		{"title element with attributes", "", `<title data-x="1">Attention Required! | Cloudflare</title>`, VerdictBlocked},
		{"marker in body text", "Aventus Creed for men", "<title>Aventus</title><p>Just a moment of pure joy</p>", VerdictOK},
		{"unterminated title", "", "<title>Checking your browser", VerdictBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Classify(tt.title, tt.content))
		})
	}
}

func TestGuard_ClassifyCustomMarkers(t *testing.T) {
	g := NewGuard(time.Minute, []string{"Access denied"})

	assert.Equal(t, VerdictBlocked, g.Classify("Access denied", ""))
	assert.Equal(t, VerdictOK, g.Classify("Just a moment...", ""))
	assert.Equal(t, VerdictBlocked, g.Classify("", "<title>Access denied</title>"))
}

func TestGuard_ClassifyRecord(t *testing.T) {
	g := NewGuard(10*time.Minute, nil)

	tests := []struct {
		name  string
		brand string
		title string
		want  Verdict
	}{
		{"host as title", "Unknown Brand", "www.fragrantica.com", VerdictBlocked},
		{"429 in title", "Unknown Brand", "Error 429", VerdictBlocked},
		{"unknown brand with real title", "Unknown Brand", "Santal 33", VerdictOK},
		{"known brand with host title", "Le Labo", "www.fragrantica.com", VerdictOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.ClassifyRecord(tt.brand, tt.title))
		})
	}
}

func TestGuard_ObserveFixedWindow(t *testing.T) {
	g := NewGuard(10*time.Minute, nil)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	first := g.Observe(VerdictBlocked)
	assert.Equal(t, 1, first.ConsecutiveBlocks)
	assert.Equal(t, 10*time.Minute, first.BackoffWindow)
	assert.Equal(t, now, first.LastBlockedAt)

	second := g.Observe(VerdictBlocked)
	assert.Equal(t, 2, second.ConsecutiveBlocks)
	assert.Equal(t, 10*time.Minute, second.BackoffWindow)

	reset := g.Observe(VerdictOK)
	assert.Equal(t, State{LastVerdict: VerdictOK}, reset)
	assert.Equal(t, reset, g.State())
}
