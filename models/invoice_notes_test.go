package models_test

import (
	"strings"
	"testing"

	"bitbucket.org/craftworks/bizmate_backend/models"
	"github.com/shopspring/decimal"
)

func TestFormatCents(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{7000, "$70.00"},
		{0, "$0.00"},
		{1, "$0.01"},
		{12345, "$123.45"},
		{100000, "$1000.00"},
	}
	for _, tc := range cases {
		if got := models.FormatCents(decimal.NewFromInt(tc.cents)); got != tc.want {
			t.Errorf("FormatCents(%d) = %q; want %q", tc.cents, got, tc.want)
		}
	}
}

func TestRemainingAfterDepositClampsAtZero(t *testing.T) {
	got := models.RemainingAfterDeposit(decimal.NewFromInt(10000), decimal.NewFromInt(3000))
	if got.Cmp(decimal.NewFromInt(7000)) != 0 {
		t.Fatalf("remaining = %s; want 7000", got)
	}

	// deposit larger than total never goes negative
	got = models.RemainingAfterDeposit(decimal.NewFromInt(10000), decimal.NewFromInt(12000))
	if !got.IsZero() {
		t.Fatalf("overpaid remaining = %s; want 0", got)
	}
}

func TestStripComputedNoteLines(t *testing.T) {
	notes := "Gate code 4321\nTotal: $100.00\nDeposit: $30.00\nRemaining: $70.00\nDog is friendly"
	got := models.StripComputedNoteLines(notes)
	want := "Gate code 4321\nDog is friendly"
	if got != want {
		t.Fatalf("StripComputedNoteLines = %q; want %q", got, want)
	}

	if got := models.StripComputedNoteLines(""); got != "" {
		t.Fatalf("StripComputedNoteLines(empty) = %q", got)
	}

	// indented computed lines are stripped too
	if got := models.StripComputedNoteLines("  Total: $5.00  "); got != "" {
		t.Fatalf("StripComputedNoteLines(indented) = %q; want empty", got)
	}
}

func TestRenderComputedNoteLines(t *testing.T) {
	lines := models.RenderComputedNoteLines(decimal.NewFromInt(10000), decimal.NewFromInt(3000), true)
	want := []string{"Total: $100.00", "Deposit: $30.00", "Remaining: $70.00"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v; want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q; want %q", i, lines[i], want[i])
		}
	}

	// total unknown: only the deposit renders
	lines = models.RenderComputedNoteLines(decimal.Zero, decimal.NewFromInt(3000), false)
	if len(lines) != 1 || lines[0] != "Deposit: $30.00" {
		t.Fatalf("deposit-only lines = %v", lines)
	}

	// nothing known, nothing rendered
	if lines := models.RenderComputedNoteLines(decimal.Zero, decimal.Zero, false); lines != nil {
		t.Fatalf("empty lines = %v; want nil", lines)
	}
}

func TestDisplayNotesComposesStoredAndComputed(t *testing.T) {
	invoice := &models.Invoice{
		Notes:            "Gate code 4321",
		TotalAmount:      decimal.NewFromInt(10000),
		DepositAmount:    decimal.NewFromInt(3000),
		RemainingBalance: decimal.NewFromInt(7000),
	}
	got := invoice.DisplayNotes()
	if !strings.HasPrefix(got, "Gate code 4321\n") {
		t.Fatalf("DisplayNotes should lead with stored notes; got %q", got)
	}
	if !strings.Contains(got, "Remaining: $70.00") {
		t.Fatalf("DisplayNotes missing remaining line; got %q", got)
	}

	// stale computed lines in stored notes never duplicate
	invoice.Notes = "Total: $999.00\nGate code 4321"
	got = invoice.DisplayNotes()
	if strings.Contains(got, "$999.00") {
		t.Fatalf("DisplayNotes kept a stale computed line; got %q", got)
	}
	if strings.Count(got, "Total:") != 1 {
		t.Fatalf("DisplayNotes should render exactly one Total line; got %q", got)
	}
}
