package transcribe

import "testing"

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"trims_whitespace", "  hello \t", "hello"},
		{"erase_line", "\x1b[2K\rhello world", "hello world"},
		{"color_codes", "\x1b[1;32mhi\x1b[0m", "hi"},
		{"c1_csi", "\u009b2Khello", "hello"},
		{"only_escapes", "\x1b[2K\x1b[0m", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripANSI(tt.in); got != tt.want {
				t.Errorf("StripANSI(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNoiseFilterClean(t *testing.T) {
	f := NewNoiseFilter(DefaultNoisePatterns)

	tests := []struct {
		name     string
		raw      string
		wantText string
		wantOK   bool
	}{
		{"normal_line", "\x1b[2K bonjour tout le monde", "bonjour tout le monde", true},
		{"credit_line", "\x1b[2KSous-titrage Société Radio-Canada", "", false},
		{"short_credit", "Sous-titrage ST' 501", "", false},
		{"blank_line_kept_for_dedup", "   ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := f.Clean(tt.raw)
			if got != tt.wantText || ok != tt.wantOK {
				t.Errorf("Clean(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.wantText, tt.wantOK)
			}
		})
	}
}

func TestNoiseFilterSet(t *testing.T) {
	f := NewNoiseFilter([]string{"  ", "foo", ""})
	if got := f.Patterns(); len(got) != 1 || got[0] != "foo" {
		t.Fatalf("Patterns = %q, want [foo]", got)
	}
	if !f.IsNoise("a foo b") {
		t.Error("expected foo to be noise")
	}

	f.Set([]string{"bar"})
	if f.IsNoise("a foo b") {
		t.Error("foo should no longer be noise")
	}
	if !f.IsNoise("bar") {
		t.Error("expected bar to be noise")
	}
}

func TestNilNoiseFilterClean(t *testing.T) {
	var f *NoiseFilter
	got, ok := f.Clean("\x1b[0mSous-titrage")
	if !ok || got != "Sous-titrage" {
		t.Errorf("Clean = (%q, %v), want (Sous-titrage, true)", got, ok)
	}
}
