package models

import (
	"context"
	"testing"
)

func TestNewCustomerValidatePhoneNumbers(t *testing.T) {
	cases := []struct {
		name    string
		input   NewCustomer
		wantErr bool
	}{
		{"valid phone", NewCustomer{Name: "Ada", Phone: "(212) 555-0123"}, false},
		{"valid mobile", NewCustomer{Name: "Ada", Mobile: "+1 212-555-0198"}, false},
		{"no contact fields", NewCustomer{Name: "Ada"}, false},
		{"undialable phone", NewCustomer{Name: "Ada", Phone: "not a number"}, true},
		{"too short", NewCustomer{Name: "Ada", Phone: "12345"}, true},
		{"bad mobile", NewCustomer{Name: "Ada", Mobile: "999"}, true},
		{"bad email", NewCustomer{Name: "Ada", Email: "nope"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.input.validate(context.Background(), "b-1", 0)
			if tc.wantErr && err == nil {
				t.Fatal("expected a validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
