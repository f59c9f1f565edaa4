package internal

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/google/uuid"
)

const tokenLogPrefixLen = 8

// NewToken returns a random, URL-safe token value.
func NewToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ParseToken validates the shape of a caller-supplied token value.
func ParseToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("empty token")
	}
	id, err := uuid.Parse(token)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// HashToken derives the storage key of a token so raw values never reach the backend.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// RedactToken keeps a short prefix of token for logs.
func RedactToken(token string) string {
	if len(token) <= tokenLogPrefixLen {
		return "***"
	}
	return token[:tokenLogPrefixLen] + "***"
}
