package core

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// CredentialResolver resolves a taxpayer's portal password when the
// intake request omits it.
type CredentialResolver interface {
	Password(ctx context.Context, cuit string) (string, error)
}

// FileCredentialStore resolves passwords from a YAML file mapping CUIT
// to password. The file is read once and cached; Reload refreshes it.
type FileCredentialStore struct {
	path string

	mu        sync.RWMutex
	passwords map[string]string
}

// NewFileCredentialStore loads the credential file eagerly so a missing
// or malformed file fails at startup, not on the first run.
func NewFileCredentialStore(path string) (*FileCredentialStore, error) {
	s := &FileCredentialStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the credential file.
func (s *FileCredentialStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading credential file %s: %w", s.path, ErrPasswordServiceUnavailable)
	}
	passwords := make(map[string]string)
	if err := yaml.Unmarshal(data, &passwords); err != nil {
		return fmt.Errorf("parsing credential file %s: %w", s.path, ErrPasswordServiceUnavailable)
	}

	s.mu.Lock()
	s.passwords = passwords
	s.mu.Unlock()
	return nil
}

func (s *FileCredentialStore) Password(ctx context.Context, cuit string) (string, error) {
	s.mu.RLock()
	password, ok := s.passwords[cuit]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("cuit %s: %w", cuit, ErrPasswordNotFound)
	}
	return password, nil
}

// StaticCredentials is an in-memory resolver used by tests.
type StaticCredentials map[string]string

func (s StaticCredentials) Password(ctx context.Context, cuit string) (string, error) {
	if password, ok := s[cuit]; ok {
		return password, nil
	}
	return "", fmt.Errorf("cuit %s: %w", cuit, ErrPasswordNotFound)
}
