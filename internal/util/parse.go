package util

import (
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
)

var nonNumericRegex = regexp.MustCompile(`[^\d]`)

// CleanNumericString strips everything that is not a digit.
func CleanNumericString(s string) string {
	return nonNumericRegex.ReplaceAllString(s, "")
}

// SafeAtoi converts s to an int, returning 0 on any failure.
func SafeAtoi(s string) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return i
}

// ParseCount normalizes the feed's engagement counts, which arrive as
// display strings with CJK-locale unit suffixes: "1.5k" is 1500 and
// "2w" is 20000 (万 = 10,000). Anything unparseable is 0, never an error.
func ParseCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	if n, ok := parseUnitSuffix(s, "k", 1000); ok {
		return n
	}
	if n, ok := parseUnitSuffix(s, "w", 10000); ok {
		return n
	}

	return SafeAtoi(CleanNumericString(s))
}

func parseUnitSuffix(s, unit string, multiplier float64) (int, bool) {
	if !strings.HasSuffix(strings.ToLower(s), unit) {
		return 0, false
	}
	prefix := s[:len(s)-len(unit)]
	f, err := strconv.ParseFloat(strings.TrimSpace(prefix), 64)
	if err != nil {
		return 0, true // "xk" is still a unit string, just a broken one
	}
	return int(math.Round(f * multiplier)), true
}

// userAgents is rotated across requests so the feed sees a plausible mix
// of desktop browsers rather than one fingerprint hammering it.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.93 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/89.0.4389.114 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Firefox/88.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Firefox/87.0 Safari/537.36",
}

// RandomUserAgent picks one of the known user agent strings.
func RandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}
