package transcribe

import (
	"regexp"
	"strings"
	"sync/atomic"
)

// ansiEscape matches CSI sequences introduced by ESC [ or the single-byte C1 CSI.
// whisper.cpp stream redraws the current line with these.
var ansiEscape = regexp.MustCompile(`(\x{9B}|\x1B\[)[0-?]*[ -/]*[@-~]`)

// DefaultNoisePatterns are captioning credits whisper hallucinates on silence.
var DefaultNoisePatterns = []string{
	"Sous-titrage Société Radio-Canada",
	"Sous-titrage",
}

// StripANSI removes terminal escape sequences and surrounding whitespace.
func StripANSI(line string) string {
	return strings.TrimSpace(ansiEscape.ReplaceAllString(line, ""))
}

// NoiseFilter drops engine output lines containing known noise substrings.
// The pattern set can be replaced at any time without blocking readers.
type NoiseFilter struct {
	patterns atomic.Pointer[[]string]
}

// NewNoiseFilter creates a filter with the given patterns. Empty patterns are ignored.
func NewNoiseFilter(patterns []string) *NoiseFilter {
	f := &NoiseFilter{}
	f.Set(patterns)
	return f
}

// Set replaces the pattern set.
func (f *NoiseFilter) Set(patterns []string) {
	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	f.patterns.Store(&cleaned)
}

// Patterns returns a copy of the current pattern set.
func (f *NoiseFilter) Patterns() []string {
	p := f.patterns.Load()
	if p == nil {
		return nil
	}
	out := make([]string, len(*p))
	copy(out, *p)
	return out
}

// IsNoise reports whether text contains any configured pattern.
func (f *NoiseFilter) IsNoise(text string) bool {
	p := f.patterns.Load()
	if p == nil {
		return false
	}
	for _, pattern := range *p {
		if strings.Contains(text, pattern) {
			return true
		}
	}
	return false
}

// Clean strips escapes from a raw line. It returns false if the line is noise.
// An empty cleaned line is returned as ok; the deduper discards it.
func (f *NoiseFilter) Clean(raw string) (string, bool) {
	text := StripANSI(raw)
	if f != nil && f.IsNoise(text) {
		return "", false
	}
	return text, true
}
