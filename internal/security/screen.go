// Package security screens raw input before routing and keeps the audit log.
package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"jomra/internal/domain"
)

// DefaultDenylist holds the jailbreak phrases rejected out of the box.
var DefaultDenylist = []string{
	"unrestricted ai",
	"evil ai",
	"no restrictions",
	"ignore previous instructions",
	"bypass security",
}

const zeroWidth = "\u200b\u200c\u200d\u2060\ufeff"

const (
	obfuscationReason = "High perplexity - possible obfuscation detected"
	boundaryReason    = "Policy Violation: Restricted Content/Roleplay"
	safeReason        = "Passed all security layers"
)

// ScreenOptions tunes the Screener. Zero values take the defaults.
type ScreenOptions struct {
	Denylist []string
	// MinOpaqueRun is the shortest base64-alphabet run treated as encoded.
	MinOpaqueRun int
	// MinInputLen is the input length in characters above which the run
	// check applies.
	MinInputLen int
}

// Screener checks input for obfuscation, then for denylisted phrases.
type Screener struct {
	opaqueRun   *regexp.Regexp
	minInputLen int
	denylist    []string
}

// NewScreener builds a Screener.
func NewScreener(opts ScreenOptions) *Screener {
	if opts.MinOpaqueRun <= 0 {
		opts.MinOpaqueRun = 30
	}
	if opts.MinInputLen <= 0 {
		opts.MinInputLen = 20
	}
	if len(opts.Denylist) == 0 {
		opts.Denylist = DefaultDenylist
	}
	list := make([]string, 0, len(opts.Denylist))
	for _, p := range opts.Denylist {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			list = append(list, p)
		}
	}
	return &Screener{
		opaqueRun:   regexp.MustCompile(fmt.Sprintf(`\b[A-Za-z0-9+/]{%d,}\b`, opts.MinOpaqueRun)),
		minInputLen: opts.MinInputLen,
		denylist:    list,
	}
}

// Screen returns the verdict for input.
func (s *Screener) Screen(input string) domain.ScreeningResult {
	if utf8.RuneCountInString(input) > s.minInputLen && s.opaqueRun.MatchString(input) {
		return domain.ScreeningResult{Reason: obfuscationReason, Confidence: 0.95}
	}
	if strings.ContainsAny(input, zeroWidth) {
		return domain.ScreeningResult{Reason: obfuscationReason, Confidence: 0.95}
	}

	lower := strings.ToLower(input)
	for _, phrase := range s.denylist {
		if strings.Contains(lower, phrase) {
			return domain.ScreeningResult{Reason: boundaryReason, Confidence: 0.98}
		}
	}
	return domain.ScreeningResult{Safe: true, Reason: safeReason, Confidence: 1.0}
}

var _ domain.Screener = (*Screener)(nil)
