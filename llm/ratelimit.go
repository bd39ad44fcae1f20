package llm

import (
	"net/http"
	"strconv"
	"strings"
)

// Rate limit header names. The provider reports two usage windows with a
// primary/secondary naming convention; each window carries a usage
// percentage plus optional window size and reset countdown.
const (
	HeaderPrimaryUsedPercent     = "X-Ratelimit-Primary-Used-Percent"
	HeaderPrimaryWindowMinutes   = "X-Ratelimit-Primary-Window-Minutes"
	HeaderPrimaryResetsInSeconds = "X-Ratelimit-Primary-Resets-In-Seconds"

	HeaderSecondaryUsedPercent     = "X-Ratelimit-Secondary-Used-Percent"
	HeaderSecondaryWindowMinutes   = "X-Ratelimit-Secondary-Window-Minutes"
	HeaderSecondaryResetsInSeconds = "X-Ratelimit-Secondary-Resets-In-Seconds"
)

// RateLimitWindow is a provider-reported usage quota over one rolling
// time period.
type RateLimitWindow struct {
	// UsedPercent is how much of the window's quota is consumed, 0-100.
	UsedPercent float64

	// WindowMinutes is the window length. Nil when not reported.
	WindowMinutes *int64

	// ResetsInSeconds is the countdown until the window resets.
	// Nil when not reported.
	ResetsInSeconds *int64
}

// RateLimitSnapshot is the rate limit state read from one response's
// headers. At least one window is present; a response with no recognized
// headers produces no snapshot at all rather than an empty one.
type RateLimitSnapshot struct {
	Primary   *RateLimitWindow
	Secondary *RateLimitWindow
}

// ParseRateLimitSnapshot extracts rate limit state from response headers.
// Numeric fields are parsed defensively: an invalid value is treated as
// absent, never as an error. Returns nil when neither window's
// used-percent header is present.
func ParseRateLimitSnapshot(header http.Header) *RateLimitSnapshot {
	primary := parseRateLimitWindow(header,
		HeaderPrimaryUsedPercent, HeaderPrimaryWindowMinutes, HeaderPrimaryResetsInSeconds)
	secondary := parseRateLimitWindow(header,
		HeaderSecondaryUsedPercent, HeaderSecondaryWindowMinutes, HeaderSecondaryResetsInSeconds)

	if primary == nil && secondary == nil {
		return nil
	}
	return &RateLimitSnapshot{Primary: primary, Secondary: secondary}
}

// parseRateLimitWindow reads one window's headers. The used-percent
// header is required; the window is absent without it.
func parseRateLimitWindow(header http.Header, usedKey, windowKey, resetsKey string) *RateLimitWindow {
	usedPercent, ok := parseHeaderFloat(header, usedKey)
	if !ok {
		return nil
	}
	return &RateLimitWindow{
		UsedPercent:     usedPercent,
		WindowMinutes:   parseHeaderInt(header, windowKey),
		ResetsInSeconds: parseHeaderInt(header, resetsKey),
	}
}

func parseHeaderFloat(header http.Header, key string) (float64, bool) {
	raw := strings.TrimSpace(header.Get(key))
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func parseHeaderInt(header http.Header, key string) *int64 {
	raw := strings.TrimSpace(header.Get(key))
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &value
}
