package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trailmarks/gamification-backend/pkg/config"
	"github.com/trailmarks/gamification-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "trailmarks",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	userID := uuid.New()

	signed, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		UserID: userID,
		Role:   enums.RoleUser,
	})
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}

	claims, err := ParseAccessToken(cfg, signed)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("unexpected user id %s", claims.UserID)
	}
	if claims.Role != enums.RoleUser {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
	if claims.IsAdmin() {
		t.Fatal("user token should not be admin")
	}
}

func TestMintAccessTokenInvalidRole(t *testing.T) {
	_, err := MintAccessToken(testJWTConfig(), time.Now(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.Role("owner"),
	})
	if err == nil {
		t.Fatal("expected error for invalid role")
	}
}

func TestParseAccessTokenExpired(t *testing.T) {
	cfg := testJWTConfig()
	signed, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleService,
	})
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}

	if _, err := ParseAccessToken(cfg, signed); err == nil {
		t.Fatal("expected expired token to fail validation")
	}
}

func TestParseAccessTokenWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	signed, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}

	other := cfg
	other.Issuer = "someone-else"
	if _, err := ParseAccessToken(other, signed); err == nil {
		t.Fatal("expected issuer mismatch to fail validation")
	}
}
