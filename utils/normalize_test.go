package utils

import "testing"

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		" A@Test.com ":    "a@test.com",
		"a@test.com":      "a@test.com",
		"":                "",
		"  MIXED@Ca.SE  ": "mixed@ca.se",
	}
	for input, want := range cases {
		if got := NormalizeEmail(input); got != want {
			t.Errorf("NormalizeEmail(%q) = %q; want %q", input, got, want)
		}
	}
}

func TestNormalizePhoneDigits(t *testing.T) {
	cases := map[string]string{
		"(555) 123-4567": "5551234567",
		"555-123-4567":   "5551234567",
		"+1 555 123 45":  "155512345",
		"no digits":      "",
		"":               "",
	}
	for input, want := range cases {
		if got := NormalizePhoneDigits(input); got != want {
			t.Errorf("NormalizePhoneDigits(%q) = %q; want %q", input, got, want)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("  Ada Lovelace "); got != "ada lovelace" {
		t.Errorf("NormalizeName = %q", got)
	}
}

func TestNormalizeHandle(t *testing.T) {
	cases := map[string]string{
		"Sparkle Cleaning Co":  "sparkle-cleaning-co",
		"  Already-Good  ":     "already-good",
		"weird!@#chars":        "weirdchars",
		"--trim-hyphens--":     "trim-hyphens",
		"UPPER_under_score":    "upper_under_score",
		"":                     "",
		"!!!":                  "",
		"spaces   in   middle": "spaces---in---middle",
	}
	for input, want := range cases {
		if got := NormalizeHandle(input); got != want {
			t.Errorf("NormalizeHandle(%q) = %q; want %q", input, got, want)
		}
	}
}
