package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
)

// CredentialStore keeps the session credentials as one file per key inside
// a directory owned by the session.
type CredentialStore struct {
	dir string
}

func NewCredentialStore(dir string) *CredentialStore {
	return &CredentialStore{dir: dir}
}

func (s *CredentialStore) Dir() string { return s.dir }

// Exists reports whether at least one credential file is present.
func (s *CredentialStore) Exists() bool {
	names, err := s.files()
	return err == nil && len(names) > 0
}

// Load returns every credential file keyed by name. A missing directory is
// an empty store.
func (s *CredentialStore) Load() (map[string][]byte, error) {
	names, err := s.files()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrCredentialsLoad, err)
	}
	out := make(map[string][]byte, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", config.ErrCredentialsLoad, err)
		}
		out[name] = data
	}
	return out, nil
}

// Save writes the given files, replacing existing ones with the same name.
func (s *CredentialStore) Save(files map[string][]byte) error {
	if err := os.MkdirAll(s.dir, config.DirPermUserRWX); err != nil {
		return fmt.Errorf("%s: %w", config.ErrCredentialsSave, err)
	}
	for name, data := range files {
		if name != filepath.Base(name) {
			return fmt.Errorf("%s: invalid name %q", config.ErrCredentialsSave, name)
		}
		if err := os.WriteFile(filepath.Join(s.dir, name), data, config.FilePermUserRW); err != nil {
			return fmt.Errorf("%s: %w", config.ErrCredentialsSave, err)
		}
	}
	return nil
}

// Purge deletes every credential file. It keeps going past individual
// failures and returns them joined.
func (s *CredentialStore) Purge() error {
	names, err := s.files()
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrCredentialsPurge, err)
	}
	var errs []error
	for _, name := range names {
		path := filepath.Join(s.dir, name)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn(config.MsgPurgeFailed,
				config.LogKeyComponent, config.CompSession,
				config.LogKeyFile, path,
				config.LogKeyError, err,
			)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s: %w", config.ErrCredentialsPurge, errors.Join(errs...))
	}
	return nil
}

func (s *CredentialStore) files() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
