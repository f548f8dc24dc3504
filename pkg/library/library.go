// Package library keeps named favorite macros in a single JSON file. The file
// maps each name to a macro document:
//
//	{"warmup": {"version": 1, "events": [...]}, ...}
package library

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/offlinefirst/tinymacro/pkg/macro"
	"github.com/offlinefirst/tinymacro/pkg/macrofile"
)

var (
	// ErrNotFound is returned for an unknown favorite name.
	ErrNotFound = errors.New("favorite not found")
	// ErrInvalidName is returned for blank names.
	ErrInvalidName = errors.New("favorite name must not be blank")
	// ErrCorrupt is returned when the library file is not a JSON object.
	ErrCorrupt = errors.New("favorites file is corrupt")
)

// Entry describes one stored favorite.
type Entry struct {
	Name     string  `json:"name"`
	Events   int     `json:"events"`
	Duration float64 `json:"duration"`
}

// Library is a file-backed favorites store. Methods are safe for concurrent
// use within one process.
type Library struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// Open returns a library stored at path. The file is created on first write.
func Open(path string, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Library{path: path, logger: logger}
}

// Path returns the backing file.
func (l *Library) Path() string {
	return l.path
}

func (l *Library) readLocked() ([]byte, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return []byte("{}"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read favorites: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []byte("{}"), nil
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, l.path)
	}
	return data, nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}

// escapePath makes a name safe to use as a single gjson/sjson path segment.
func escapePath(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', ':', '!', '=', '<', '>', '%', '(', ')', '"', ',', '[', ']', '{', '}':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Names returns the stored favorite names in sorted order.
func (l *Library) Names() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := l.readLocked()
	if err != nil {
		return nil, err
	}
	var names []string
	gjson.ParseBytes(data).ForEach(func(key, _ gjson.Result) bool {
		names = append(names, key.String())
		return true
	})
	sort.Strings(names)
	return names, nil
}

// List returns an entry per favorite, sorted by name. Entries that fail to
// decode are reported with zero events and logged.
func (l *Library) List() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := l.readLocked()
	if err != nil {
		return nil, err
	}
	var entries []Entry
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		entry := Entry{Name: key.String()}
		m, err := macrofile.DecodeResult(value)
		if err != nil {
			l.logger.Warn("favorite unreadable", "name", entry.Name, "error", err)
		} else {
			entry.Events = m.Len()
			entry.Duration = m.Duration()
		}
		entries = append(entries, entry)
		return true
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Get decodes the favorite stored under name.
func (l *Library) Get(name string) (macro.Macro, error) {
	name, err := normalizeName(name)
	if err != nil {
		return macro.Macro{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := l.readLocked()
	if err != nil {
		return macro.Macro{}, err
	}
	value := gjson.GetBytes(data, escapePath(name))
	if !value.Exists() {
		return macro.Macro{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	m, err := macrofile.DecodeResult(value)
	if err != nil {
		return macro.Macro{}, fmt.Errorf("favorite %q: %w", name, err)
	}
	return m, nil
}

// Put stores m under name, replacing any existing favorite of that name.
func (l *Library) Put(name string, m macro.Macro) error {
	name, err := normalizeName(name)
	if err != nil {
		return err
	}
	if m.IsEmpty() {
		return macrofile.ErrEmptyMacro
	}
	doc, err := macrofile.Encode(m)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := l.readLocked()
	if err != nil {
		return err
	}
	updated, err := sjson.SetRawBytes(data, escapePath(name), doc)
	if err != nil {
		return fmt.Errorf("store favorite %q: %w", name, err)
	}
	if err := macrofile.WriteFileAtomic(l.path, updated); err != nil {
		return err
	}
	l.logger.Info("favorite saved", "name", name, "events", m.Len())
	return nil
}

// Delete removes the favorite stored under name.
func (l *Library) Delete(name string) error {
	name, err := normalizeName(name)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := l.readLocked()
	if err != nil {
		return err
	}
	path := escapePath(name)
	if !gjson.GetBytes(data, path).Exists() {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	updated, err := sjson.DeleteBytes(data, path)
	if err != nil {
		return fmt.Errorf("delete favorite %q: %w", name, err)
	}
	if err := macrofile.WriteFileAtomic(l.path, updated); err != nil {
		return err
	}
	l.logger.Info("favorite deleted", "name", name)
	return nil
}
