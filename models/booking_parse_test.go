package models_test

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/craftworks/bizmate_backend/models"
	"bitbucket.org/craftworks/bizmate_backend/utils"
)

func TestCreateOrReuseJobRequiresCustomer(t *testing.T) {
	ctx := utils.SetBusinessIdInContext(context.Background(), "b-1")
	booking := &models.BookingRequest{ExternalId: "bk-9"}
	if _, err := models.CreateOrReuseJobForBooking(ctx, nil, booking); err == nil {
		t.Fatal("nil customer must be rejected before touching the database")
	}
}

func TestParseBookingTimeFormats(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "iso with fractional seconds",
			input: "2026-03-01T10:00:00.500Z",
			want:  time.Date(2026, 3, 1, 10, 0, 0, 500_000_000, time.UTC),
		},
		{
			name:  "iso with zone",
			input: "2026-03-01T10:00:00Z",
			want:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "iso without zone",
			input: "2026-03-01T10:00:00",
			want:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "epoch seconds",
			input: "1767225600",
			want:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "epoch milliseconds",
			input: "1767225600000",
			want:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "epoch with fraction",
			input: "1767225600.75",
			want:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "surrounding whitespace",
			input: "  2026-03-01T10:00:00Z  ",
			want:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := models.ParseBookingTime(tc.input)
			if got == nil {
				t.Fatalf("ParseBookingTime(%q) = nil; want %s", tc.input, tc.want)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("ParseBookingTime(%q) = %s; want %s", tc.input, got, tc.want)
			}
		})
	}
}

func TestParseBookingTimeRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "   ", "not a date", "tomorrow", "2026-13-45"} {
		if got := models.ParseBookingTime(input); got != nil {
			t.Fatalf("ParseBookingTime(%q) = %s; want nil", input, got)
		}
	}
}

func TestDeriveJobTitle(t *testing.T) {
	cases := []struct {
		serviceType  string
		customerName string
		want         string
	}{
		{"Deep Clean", "Ada Lovelace", "Deep Clean - Ada Lovelace"},
		{"Deep Clean", "", "Deep Clean"},
		{"", "Ada Lovelace", "Ada Lovelace booking"},
		{"", "", "New booking"},
		{"  Deep Clean  ", "  Ada Lovelace  ", "Deep Clean - Ada Lovelace"},
	}

	for _, tc := range cases {
		if got := models.DeriveJobTitle(tc.serviceType, tc.customerName); got != tc.want {
			t.Errorf("DeriveJobTitle(%q, %q) = %q; want %q", tc.serviceType, tc.customerName, got, tc.want)
		}
	}
}
