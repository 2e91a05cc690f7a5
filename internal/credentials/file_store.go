package credentials

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charlesng35/feedsync/pkg/crypto"
)

const (
	envelopeVersion = 1
	saltBytes       = 16
)

// envelope is the on-disk format: a fresh KDF salt per write plus the
// AES-256-GCM sealed token pair.
type envelope struct {
	Version int    `json:"version"`
	Salt    string `json:"salt"`
	Payload string `json:"payload"`
}

// FileStore persists the token pair encrypted at rest. Writes go through a
// temp file and rename so readers never observe a partial pair.
type FileStore struct {
	path   string
	secret []byte
	params crypto.Argon2Parameters

	mu sync.Mutex
}

// NewFileStore constructs a FileStore writing to path, deriving the
// encryption key from secret with Argon2id.
func NewFileStore(path string, secret []byte) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("credentials: path is required")
	}
	if len(secret) == 0 {
		return nil, errors.New("credentials: secret is required")
	}

	return &FileStore{
		path:   path,
		secret: secret,
		params: crypto.DefaultArgon2Params(),
	}, nil
}

// Tokens loads and decrypts the stored pair. A missing file means no session
// and returns (nil, nil).
func (s *FileStore) Tokens(ctx context.Context) (*TokenPair, error) {
	if s == nil {
		return nil, errors.New("credentials: file store not initialised")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credentials: read %s: %w", s.path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("credentials: parse envelope: %w", err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("credentials: unsupported envelope version %d", env.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("credentials: decode salt: %w", err)
	}

	key, err := crypto.DeriveKeyArgon2id(s.secret, salt, s.params)
	if err != nil {
		return nil, fmt.Errorf("credentials: derive key: %w", err)
	}

	plaintext, err := crypto.Decrypt(env.Payload, key)
	if err != nil {
		return nil, fmt.Errorf("credentials: decrypt: %w", err)
	}

	var pair TokenPair
	if err := json.Unmarshal(plaintext, &pair); err != nil {
		return nil, fmt.Errorf("credentials: decode pair: %w", err)
	}
	return &pair, nil
}

// Save encrypts and atomically replaces the stored pair.
func (s *FileStore) Save(ctx context.Context, pair TokenPair) error {
	if s == nil {
		return errors.New("credentials: file store not initialised")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if pair.AccessToken == "" {
		return errors.New("credentials: access token is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	plaintext, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("credentials: encode pair: %w", err)
	}

	salt, err := crypto.RandomBytes(saltBytes)
	if err != nil {
		return fmt.Errorf("credentials: generate salt: %w", err)
	}

	key, err := crypto.DeriveKeyArgon2id(s.secret, salt, s.params)
	if err != nil {
		return fmt.Errorf("credentials: derive key: %w", err)
	}

	payload, err := crypto.Encrypt(plaintext, key)
	if err != nil {
		return fmt.Errorf("credentials: encrypt: %w", err)
	}

	raw, err := json.Marshal(envelope{
		Version: envelopeVersion,
		Salt:    base64.StdEncoding.EncodeToString(salt),
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("credentials: encode envelope: %w", err)
	}

	return s.writeAtomic(raw)
}

// Clear removes the stored pair. Clearing an absent pair is not an error.
func (s *FileStore) Clear(ctx context.Context) error {
	if s == nil {
		return errors.New("credentials: file store not initialised")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("credentials: remove %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) writeAtomic(raw []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("credentials: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("credentials: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("credentials: chmod temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("credentials: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("credentials: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("credentials: replace %s: %w", s.path, err)
	}
	return nil
}
