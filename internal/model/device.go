package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadOrCreateDeviceID returns the identifier of this capture device, stored
// in dir/device-id. Uploads and inserted readings are tagged with it.
func LoadOrCreateDeviceID(dir string) (string, error) {
	idPath := filepath.Join(dir, "device-id")

	if data, err := os.ReadFile(idPath); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate device id: %w", err)
	}
	id := hex.EncodeToString(b)

	if err := os.WriteFile(idPath, []byte(id), 0644); err != nil {
		return "", fmt.Errorf("failed to save device id: %w", err)
	}

	return id, nil
}
