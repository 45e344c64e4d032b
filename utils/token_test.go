package utils

import (
	"strings"
	"testing"
)

func TestJwtRoundTrip(t *testing.T) {
	token, err := JwtGenerate(42, "owner@sparkle.test", "Owner")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("token is not a JWT: %q", token)
	}

	parsed, err := JwtValidate(token)
	if err != nil {
		t.Fatalf("JwtValidate: %v", err)
	}
	if !parsed.Valid {
		t.Fatal("token should be valid")
	}
	claim, ok := parsed.Claims.(*JwtCustomClaim)
	if !ok {
		t.Fatalf("claims type = %T", parsed.Claims)
	}
	if claim.ID != 42 || claim.Username != "owner@sparkle.test" || claim.Role != "Owner" {
		t.Fatalf("claim = %+v", claim)
	}
	if claim.ExpiresAt <= claim.IssuedAt {
		t.Fatalf("expiry %d not after issue %d", claim.ExpiresAt, claim.IssuedAt)
	}
}

func TestJwtValidateRejectsTampering(t *testing.T) {
	token, err := JwtGenerate(1, "staff@sparkle.test", "Staff")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if parsed, err := JwtValidate(tampered); err == nil && parsed.Valid {
		t.Fatal("tampered signature must not validate")
	}

	if parsed, err := JwtValidate("not-a-token"); err == nil && parsed.Valid {
		t.Fatal("garbage must not validate")
	}
}

func TestTokenHourLifespanDefaults(t *testing.T) {
	t.Setenv("TOKEN_HOUR_LIFESPAN", "")
	if got := tokenHourLifespan(); got != 24 {
		t.Fatalf("lifespan = %d; want default 24", got)
	}
	t.Setenv("TOKEN_HOUR_LIFESPAN", "-3")
	if got := tokenHourLifespan(); got != 24 {
		t.Fatalf("lifespan = %d; want default 24 for negatives", got)
	}
	t.Setenv("TOKEN_HOUR_LIFESPAN", "6")
	if got := tokenHourLifespan(); got != 6 {
		t.Fatalf("lifespan = %d; want 6", got)
	}
}
