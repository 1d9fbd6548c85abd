package extract

import (
	"strings"
)

// BlockType describes the kind of anti-bot interstitial detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
	BlockRateLimit  BlockType = "rate_limit"
)

// DetectBlock inspects rendered page markup for challenge or captcha pages
// served in place of the requested document.
func DetectBlock(html string) BlockType {
	lower := strings.ToLower(html)

	switch {
	case strings.Contains(lower, "checking your browser"),
		strings.Contains(lower, "cf-browser-verification"),
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge"):
		return BlockCloudflare
	case strings.Contains(lower, "g-recaptcha"),
		strings.Contains(lower, "h-captcha"),
		strings.Contains(lower, "complete the captcha"),
		strings.Contains(lower, "recaptcha/api.js"):
		return BlockCaptcha
	case strings.Contains(lower, "too many requests"),
		strings.Contains(lower, "rate limit exceeded"):
		return BlockRateLimit
	}

	// A near-empty shell that only asks for JavaScript never rendered.
	if len(html) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "enable javascript") {
			return BlockJSShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return BlockJSShell
		}
	}
	return BlockNone
}
