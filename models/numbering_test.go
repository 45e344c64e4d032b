package models_test

import (
	"testing"

	"bitbucket.org/craftworks/bizmate_backend/models"
)

func TestFormatInvoiceNumber(t *testing.T) {
	cases := []struct {
		prefix  string
		counter int
		padding int
		year    int
		want    string
	}{
		{"INV-", 7, 4, 2026, "INV-0007-2026"},
		{"INV-", 12345, 4, 2026, "INV-12345-2026"},
		{"JOB", 1, 6, 2027, "JOB000001-2027"},
		{"", 42, 4, 2026, "0042-2026"},
		// non-positive padding falls back to 4
		{"INV-", 7, 0, 2026, "INV-0007-2026"},
		{"INV-", 7, -3, 2026, "INV-0007-2026"},
	}

	for _, tc := range cases {
		got := models.FormatInvoiceNumber(tc.prefix, tc.counter, tc.padding, tc.year)
		if got != tc.want {
			t.Errorf("FormatInvoiceNumber(%q, %d, %d, %d) = %q; want %q",
				tc.prefix, tc.counter, tc.padding, tc.year, got, tc.want)
		}
	}
}
