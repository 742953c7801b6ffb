package infra

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

const (
	storeKeyFile = ".storekey"
	storeKeyLen  = 32
)

// FileKeyProvider holds the SQLCipher passphrase of store.db. The key lives
// hex-encoded next to the database so the daemon and the CLI open the same
// store without prompting.
type FileKeyProvider struct {
	path string
}

// NewFileKeyProvider returns the provider for the store in dataDir.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{path: filepath.Join(dataDir, storeKeyFile)}
}

func checkKeyLen(key []byte) error {
	if len(key) != storeKeyLen {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), storeKeyLen)
	}
	return nil
}

func (p *FileKeyProvider) GetKey() ([]byte, error) {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read store key: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode store key: %w", err)
	}
	if err := checkKeyLen(key); err != nil {
		return nil, err
	}
	return key, nil
}

// StoreKey replaces the key file atomically. Only the owner can read it.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if err := checkKeyLen(key); err != nil {
		return err
	}
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, storeKeyFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create store key: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(hex.EncodeToString(key)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write store key: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write store key: %w", err)
	}
	// CreateTemp already uses 0600.
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("failed to install store key: %w", err)
	}
	return nil
}

func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.path)
	return err == nil
}

// createKey writes key only if no key file exists yet. It reports false when
// another process got there first.
func (p *FileKeyProvider) createKey(key []byte) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return false, fmt.Errorf("failed to create data directory: %w", err)
	}
	f, err := os.OpenFile(p.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create store key: %w", err)
	}
	_, werr := f.WriteString(hex.EncodeToString(key))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(p.path)
		return false, fmt.Errorf("failed to write store key: %w", werr)
	}
	return true, nil
}

// GenerateKey returns a fresh random store key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, storeKeyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate store key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the store key, creating it on first run. When the daemon
// and the CLI start together, both end up with whichever key was written first.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	fp, ok := provider.(*FileKeyProvider)
	if !ok {
		if err := provider.StoreKey(key); err != nil {
			return nil, err
		}
		return key, nil
	}
	created, err := fp.createKey(key)
	if err != nil {
		return nil, err
	}
	if !created {
		return fp.GetKey()
	}
	return key, nil
}

var _ domain.KeyProvider = (*FileKeyProvider)(nil)
