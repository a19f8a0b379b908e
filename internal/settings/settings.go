// Package settings persists the operator's scalar preferences (the
// monitored player identifier and the reply language) in a small TOML file.
//
// Writes take a cross-process lock on a sibling ".lock" file and replace the
// settings file atomically, so a crash never leaves a truncated file and two
// processes sharing the file do not interleave updates.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/gofrs/flock"
	"golang.org/x/text/language"
)

// DefaultLanguage is reported when no language has been saved.
const DefaultLanguage = "en"

// ErrUnsupportedLanguage is returned for language codes other than
// [SupportedLanguages].
var ErrUnsupportedLanguage = errors.New("unsupported language")

// SupportedLanguages lists the accepted language codes in display order.
var SupportedLanguages = []string{"de", "en"}

// Settings is the on-disk document.
type Settings struct {
	PlayerID string `toml:"player_id,omitempty"`
	Language string `toml:"language,omitempty"`
}

// Store reads and writes a settings file.
//
// Store satisfies playerwatch.IdentifierStore. It is safe for concurrent
// use.
type Store struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

// Open returns a Store for path, creating the parent directory if needed.
// The file itself is created on first write.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("settings path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating settings directory for '%s': %w", path, err)
	}
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Path returns the settings file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the settings. A missing file yields empty settings.
func (s *Store) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.RLock(); err != nil {
		return Settings{}, fmt.Errorf("locking settings file '%s': %w", s.path, err)
	}
	defer func() { _ = s.lock.Unlock() }()

	return s.read()
}

// Update applies fn to the current settings and writes the result.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("locking settings file '%s': %w", s.path, err)
	}
	defer func() { _ = s.lock.Unlock() }()

	current, err := s.read()
	if err != nil {
		return err
	}
	fn(&current)
	return s.write(current)
}

// LoadIdentifier returns the saved player identifier.
func (s *Store) LoadIdentifier() (string, bool, error) {
	cur, err := s.Load()
	if err != nil {
		return "", false, err
	}
	id := strings.TrimSpace(cur.PlayerID)
	return id, id != "", nil
}

// SaveIdentifier replaces the saved player identifier.
func (s *Store) SaveIdentifier(id string) error {
	return s.Update(func(cur *Settings) {
		cur.PlayerID = id
	})
}

// Language returns the saved language, or [DefaultLanguage]. An unreadable
// or unsupported stored value also falls back to the default.
func (s *Store) Language() string {
	cur, err := s.Load()
	if err != nil {
		return DefaultLanguage
	}
	code, err := NormalizeLanguage(cur.Language)
	if err != nil {
		return DefaultLanguage
	}
	return code
}

// SaveLanguage normalizes and saves a language code, returning the stored
// form.
func (s *Store) SaveLanguage(code string) (string, error) {
	normalized, err := NormalizeLanguage(code)
	if err != nil {
		return "", err
	}
	if err := s.Update(func(cur *Settings) {
		cur.Language = normalized
	}); err != nil {
		return "", err
	}
	return normalized, nil
}

// NormalizeLanguage parses a BCP 47 code and reduces it to one of
// [SupportedLanguages], so "EN", "en-US" and "de_AT" are accepted.
func NormalizeLanguage(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("%w: empty", ErrUnsupportedLanguage)
	}

	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}
	base, _ := tag.Base()
	for _, supported := range SupportedLanguages {
		if base.String() == supported {
			return supported, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
}

func (s *Store) read() (Settings, error) {
	var cur Settings
	if _, err := toml.DecodeFile(s.path, &cur); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Settings{}, nil
		}
		return Settings{}, fmt.Errorf("settings file '%s' could not be parsed: %w", s.path, err)
	}
	return cur, nil
}

// write encodes to a temp file in the same directory and renames it over
// the settings file.
func (s *Store) write(cur Settings) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp settings file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := toml.NewEncoder(tmp).Encode(cur); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("setting settings file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp settings file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing settings file '%s': %w", s.path, err)
	}
	return nil
}
