package transcribe

import "strings"

// Deduper turns the engine's repeated partial lines into incremental text.
//
// whisper.cpp stream re-prints a growing version of the current utterance on
// every step. Only the new tail is surfaced. This assumes partials grow
// monotonically; it is not a general diff.
type Deduper struct {
	last string
}

// Next returns the text to emit for a sanitized line, or false if nothing should
// be emitted. After any emission the cursor holds the full line, not the delta,
// so the next comparison is against the whole utterance seen so far.
func (d *Deduper) Next(line string) (string, bool) {
	if line == "" || line == d.last {
		return "", false
	}
	out := line
	if d.last != "" && strings.HasPrefix(line, d.last) {
		out = line[len(d.last):]
	}
	d.last = line
	return out, true
}

// Last returns the current cursor.
func (d *Deduper) Last() string { return d.last }
