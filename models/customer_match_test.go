package models_test

import (
	"testing"

	"bitbucket.org/craftworks/bizmate_backend/models"
)

func TestMatchCustomerEmailWinsOverEverything(t *testing.T) {
	byEmail := &models.Customer{ID: 1, Name: "Someone Else", Email: "a@test.com"}
	byName := &models.Customer{ID: 2, Name: "Ada Lovelace", Email: "other@test.com"}
	candidates := []*models.Customer{byName, byEmail}

	got := models.MatchCustomer(candidates, " A@Test.com ", "", "Ada Lovelace")
	if got == nil || got.ID != byEmail.ID {
		t.Fatalf("expected email match (id=1); got %+v", got)
	}
}

func TestMatchCustomerPhoneIgnoresFormatting(t *testing.T) {
	candidates := []*models.Customer{
		{ID: 1, Name: "Ada", Phone: "(555) 123-4567"},
		{ID: 2, Name: "Bob", Mobile: "+1 555 999 0000"},
	}

	got := models.MatchCustomer(candidates, "", "555-123-4567", "")
	if got == nil || got.ID != 1 {
		t.Fatalf("expected phone match (id=1); got %+v", got)
	}

	got = models.MatchCustomer(candidates, "", "15559990000", "")
	if got == nil || got.ID != 2 {
		t.Fatalf("expected mobile match (id=2); got %+v", got)
	}
}

func TestMatchCustomerNameIsLastResort(t *testing.T) {
	candidates := []*models.Customer{
		{ID: 1, Name: "ada lovelace", Email: "ada@test.com", Phone: "5551234567"},
	}

	// neither email nor phone hit, name still matches case-insensitively
	got := models.MatchCustomer(candidates, "new@test.com", "5550000000", "  ADA LOVELACE ")
	if got == nil || got.ID != 1 {
		t.Fatalf("expected name match (id=1); got %+v", got)
	}
}

func TestMatchCustomerNoMatch(t *testing.T) {
	candidates := []*models.Customer{
		{ID: 1, Name: "Ada", Email: "ada@test.com", Phone: "5551234567"},
	}

	if got := models.MatchCustomer(candidates, "bob@test.com", "5559999999", "Bob"); got != nil {
		t.Fatalf("expected nil; got %+v", got)
	}
	if got := models.MatchCustomer(nil, "ada@test.com", "", ""); got != nil {
		t.Fatalf("expected nil on empty candidates; got %+v", got)
	}
	// blank contact fields never match blank candidate fields
	if got := models.MatchCustomer(candidates, "", "", ""); got != nil {
		t.Fatalf("expected nil on blank booking contact; got %+v", got)
	}
}
