package app

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/charlesng35/feedsync/pkg/crypto"
)

const credentialKeyBytes = 32

// ApplyRuntimeDefaults ensures the credential encryption key is populated even
// when no configuration file is supplied. It returns a map describing which
// keys were generated so callers can log the event without exposing values.
// A key generated here only applies on first run; afterwards the value
// persisted in the settings table wins.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Credentials.EncryptionKey) == "" {
		buf, err := crypto.RandomBytes(credentialKeyBytes)
		if err != nil {
			return nil, fmt.Errorf("generate credential encryption key: %w", err)
		}
		cfg.Credentials.EncryptionKey = hex.EncodeToString(buf)
		generated["credentials.encryption_key"] = true
	}

	return generated, nil
}
