package engine

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/golang-jwt/jwt/v4"
)

const jwtExpiry = 60 * time.Second

var ErrInvalidJWTSecret = errors.New("invalid JWT secret")

// LoadJWTSecret parses a 32 byte hex secret. When value is not a hex string it
// is read as the path of a file holding the secret.
func LoadJWTSecret(value string) ([32]byte, error) {
	var secret [32]byte
	raw := strings.TrimSpace(value)
	if raw == "" {
		return secret, fmt.Errorf("%w: empty", ErrInvalidJWTSecret)
	}
	if !isHexSecret(raw) {
		data, err := os.ReadFile(raw)
		if err != nil {
			return secret, fmt.Errorf("failed to read JWT secret file %s: %w", raw, err)
		}
		raw = strings.TrimSpace(string(data))
	}
	b := common.FromHex(raw)
	if len(b) != len(secret) {
		return secret, fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidJWTSecret, len(b))
	}
	copy(secret[:], b)
	return secret, nil
}

func isHexSecret(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 { //nolint:mnd
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

// newJWTToken signs an HS256 token with the iat claim the engine API requires.
func newJWTToken(secret [32]byte, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(jwtExpiry).Unix(),
	})
	return token.SignedString(secret[:])
}

// jwtAuth attaches a fresh bearer token to every request.
func jwtAuth(secret [32]byte) rpc.HTTPAuth {
	return func(h http.Header) error {
		token, err := newJWTToken(secret, time.Now())
		if err != nil {
			return fmt.Errorf("failed to sign JWT token: %w", err)
		}
		h.Set("Authorization", "Bearer "+token)
		return nil
	}
}
