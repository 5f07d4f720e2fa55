package browser

import (
	"encoding/json"
	"fmt"
)

// DefaultUserAgents is the desktop user agent pool a page picks from.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
}

// NotesPages are harmless pages visited during a navigation detour.
var NotesPages = []string{
	"https://www.fragrantica.com/notes/Bergamot-75.html",
	"https://www.fragrantica.com/notes/Lime-78.html",
	"https://www.fragrantica.com/notes/Lemon-77.html",
	"https://www.fragrantica.com/notes/Yuzu-83.html",
	"https://www.fragrantica.com/notes/Orange-80.html",
	"https://www.fragrantica.com/notes/Neroli-17.html",
	"https://www.fragrantica.com/notes/Grapefruit-76.html",
	"https://www.fragrantica.com/notes/Mandarin-Orange-82.html",
	"https://www.fragrantica.com/notes/Petitgrain-3.html",
	"https://www.fragrantica.com/notes/Tangerine-85.html",
}

const stealthTemplate = `(() => {
  Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
  Object.defineProperty(navigator, 'userAgent', { get: () => %s });
  window.chrome = { runtime: {} };
  Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3] });
  Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
})();`

// StealthScript returns the init script that hides automation markers and
// pins navigator.userAgent to ua.
func StealthScript(ua string) string {
	quoted, _ := json.Marshal(ua)
	return fmt.Sprintf(stealthTemplate, quoted)
}

// Pick returns pool[pick(len(pool))], or "" for an empty pool.
func Pick(pool []string, pick func(n int) int) string {
	if len(pool) == 0 {
		return ""
	}
	i := pick(len(pool))
	if i < 0 || i >= len(pool) {
		i = 0
	}
	return pool[i]
}
