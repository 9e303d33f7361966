// Package auth issues ephemeral guest identities. Each browser gets a
// signed token whose subject UUID is the player/connection identifier
// used everywhere else. Keys live only in process memory, so tokens die
// with the server — which is the intent, nothing here persists.
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	tokenTTL time.Duration
)

// Init generates a fresh ed25519 key pair and reads TOKEN_EXPIRE_TIME
// (a Go duration; empty or "never" disables expiry). Must run before
// any token is minted.
func Init() error {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("generate ed25519 key pair: %w", err)
	}

	raw := os.Getenv("TOKEN_EXPIRE_TIME")
	if raw == "" || raw == "never" || raw == "0" {
		tokenTTL = 0
		return nil
	}
	tokenTTL, err = time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse TOKEN_EXPIRE_TIME: %w", err)
	}
	return nil
}

// NewGuestToken mints a guest identity and its signed token.
func NewGuestToken() (uuid.UUID, string, error) {
	guestID := uuid.New()
	claims := jwt.MapClaims{"sub": guestID.String()}
	if tokenTTL > 0 {
		claims["exp"] = time.Now().Add(tokenTTL).Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(privateKey)
	if err != nil {
		return uuid.Nil, "", err
	}
	return guestID, token, nil
}

// VerifyToken checks a guest token and returns its subject UUID.
func VerifyToken(tokenString string) (uuid.UUID, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse token: %w", err)
	}

	sub, err := t.Claims.GetSubject()
	if err != nil || sub == "" {
		return uuid.Nil, fmt.Errorf("token missing subject")
	}
	guestID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("token subject is not a UUID: %w", err)
	}
	return guestID, nil
}
