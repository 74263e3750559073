package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"fieldsync/internal/config"

	"golang.org/x/oauth2"
)

func readConfigFile(name string) ([]byte, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("%s not found in %s: %w", name, dir, err)
	}

	return b, nil
}

func saveToken(name string, token *oauth2.Token) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}

	b, err := json.Marshal(token)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b, 0600); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	fmt.Printf("Token saved to %s\n", path)
	return nil
}

func loadToken(name, provider string) (*oauth2.Token, error) {
	b, err := readConfigFile(name)
	if err != nil {
		return nil, fmt.Errorf("%s auth needed. Please run 'fieldsync auth %s' first: %w", provider, provider, err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(b, &token); err != nil {
		return nil, fmt.Errorf("failed to parse %s token: %w", provider, err)
	}

	return &token, nil
}

// freshToken refreshes token if needed and persists the new one.
func freshToken(ts oauth2.TokenSource, old *oauth2.Token, name string) (*oauth2.Token, error) {
	token, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	if token.AccessToken != old.AccessToken {
		_ = saveToken(name, token)
	}

	return token, nil
}
