package venue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps venues in memory and persists them to a JSON or YAML
// file (chosen by extension) on every change.
type FileStore struct {
	mu            sync.RWMutex
	path          string
	defaultRadius float64
	venues        []Venue
	byID          map[string]int
}

// OpenFile loads path into a FileStore. A missing file yields an empty
// store that is created on the first write.
func OpenFile(path string, defaultRadius float64) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("venue file path is required")
	}
	if defaultRadius <= 0 {
		defaultRadius = DefaultRadius
	}
	s := &FileStore{path: filepath.Clean(path), defaultRadius: defaultRadius}

	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.reindex()
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read venue file: %w", err)
	}

	var loaded []Venue
	if s.isYAML() {
		err = yaml.Unmarshal(raw, &loaded)
	} else {
		err = json.Unmarshal(raw, &loaded)
	}
	if err != nil {
		return nil, fmt.Errorf("decode venue file %s: %w", s.path, err)
	}
	for i, v := range loaded {
		nv, err := normalize(v, s.defaultRadius)
		if err != nil {
			return nil, fmt.Errorf("venue %d (%q): %w", i, v.ID, err)
		}
		if nv.ID == "" {
			return nil, fmt.Errorf("venue %d: %w: id is required", i, ErrInvalid)
		}
		s.venues = append(s.venues, nv)
	}
	s.reindex()
	if len(s.byID) != len(s.venues) {
		return nil, fmt.Errorf("decode venue file %s: %w: duplicate ids", s.path, ErrInvalid)
	}
	return s, nil
}

// Resolve implements Directory.
func (s *FileStore) Resolve(_ context.Context, id string) (Venue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return Venue{}, ErrNotFound
	}
	return s.venues[i], nil
}

// List returns all venues in file order.
func (s *FileStore) List(_ context.Context) ([]Venue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Venue(nil), s.venues...), nil
}

// Create stores v under a fresh id and rewrites the file.
func (s *FileStore) Create(_ context.Context, v Venue) (Venue, error) {
	v, err := normalize(v, s.defaultRadius)
	if err != nil {
		return Venue{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v.ID = uniqueID(Slugify(v.Name), func(id string) bool {
		_, ok := s.byID[id]
		return ok
	})
	next := append(append([]Venue(nil), s.venues...), v)
	if err := s.writeLocked(next); err != nil {
		return Venue{}, err
	}
	s.venues = next
	s.reindex()
	return v, nil
}

// Delete removes the venue with id and rewrites the file.
func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	next := make([]Venue, 0, len(s.venues)-1)
	next = append(next, s.venues[:i]...)
	next = append(next, s.venues[i+1:]...)
	if err := s.writeLocked(next); err != nil {
		return err
	}
	s.venues = next
	s.reindex()
	return nil
}

// Close is a no-op; every change is already on disk.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) reindex() {
	s.byID = make(map[string]int, len(s.venues))
	for i, v := range s.venues {
		s.byID[v.ID] = i
	}
}

func (s *FileStore) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}

func (s *FileStore) writeLocked(venues []Venue) error {
	if venues == nil {
		venues = []Venue{}
	}

	var (
		raw []byte
		err error
	)
	if s.isYAML() {
		raw, err = yaml.Marshal(venues)
	} else {
		raw, err = json.MarshalIndent(venues, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode venues: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".venues-*")
	if err != nil {
		return fmt.Errorf("write venue file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write venue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write venue file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write venue file: %w", err)
	}
	return nil
}
