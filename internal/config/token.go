package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

const (
	keychainService = "garita"
	keychainAccount = "api_token"
	tokenEnvVar     = "GARITA_API_TOKEN"
)

// GetAPIToken returns the API bearer token. The GARITA_API_TOKEN environment
// variable wins; otherwise the platform secret store is consulted. Returns
// an error when no token is configured.
func GetAPIToken() (string, error) {
	if tok := strings.TrimSpace(os.Getenv(tokenEnvVar)); tok != "" {
		return tok, nil
	}
	data, err := keychainGet(keychainService, keychainAccount)
	if err != nil {
		return "", fmt.Errorf("no API token configured: set %s or run the server once to generate one", tokenEnvVar)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", fmt.Errorf("no API token configured: set %s or run the server once to generate one", tokenEnvVar)
	}
	return tok, nil
}

// EnsureAPIToken returns the API token, generating and persisting a fresh
// one when none exists yet. The server calls this on startup so the first
// run works without manual setup.
func EnsureAPIToken() (string, error) {
	if tok, err := GetAPIToken(); err == nil {
		return tok, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	tok := hex.EncodeToString(buf)

	if err := keychainSet(keychainService, keychainAccount, tok); err != nil {
		return "", fmt.Errorf("storing token: %w", err)
	}
	return tok, nil
}
