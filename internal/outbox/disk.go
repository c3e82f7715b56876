package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

const (
	// FileName is the fixed key the disk store writes under its directory
	FileName = "outbox.json"
	// FormatVersion is the current version of the persisted file
	FormatVersion = 1
)

// diskFile is the persisted layout. Version 0 files are a bare JSON array
// of entries.
type diskFile struct {
	Version int      `json:"version"`
	Entries []*Entry `json:"entries"`
}

// DiskStore keeps the queue in a single JSON file. Every mutation rewrites
// the file through a temp file and a rename.
type DiskStore struct {
	logger  *zap.Logger
	path    string
	mu      sync.Mutex
	entries []*Entry
}

var _ Store = (*DiskStore)(nil)

// NewDiskStore creates a disk store rooted at dir and reads any existing file
func NewDiskStore(logger *zap.Logger, dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	s := &DiskStore{
		logger: logger.Named("outbox.store.disk"),
		path:   filepath.Join(dir, FileName),
	}
	if err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DiskStore) read() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	entries, version, err := decodeFile(data)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	s.entries = entries
	if version < FormatVersion {
		s.logger.Info("migrating outbox file",
			zap.String("path", s.path),
			zap.Int("from", version),
			zap.Int("to", FormatVersion))
		return s.write()
	}
	return nil
}

// decodeFile accepts every format version up to FormatVersion
func decodeFile(data []byte) ([]*Entry, int, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, FormatVersion, nil
	}
	if data[0] == '[' {
		var entries []*Entry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, 0, err
		}
		return entries, 0, nil
	}

	var f diskFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, 0, err
	}
	if f.Version > FormatVersion {
		return nil, f.Version, fmt.Errorf("unsupported outbox format version %d", f.Version)
	}
	return f.Entries, f.Version, nil
}

func (s *DiskStore) write() error {
	entries := s.entries
	if entries == nil {
		entries = []*Entry{}
	}
	data, err := json.MarshalIndent(diskFile{Version: FormatVersion, Entries: entries}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), FileName+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Load implements Store.Load
func (s *DiskStore) Load(_ context.Context) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// Append implements Store.Append
func (s *DiskStore) Append(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, e)
	if err := s.write(); err != nil {
		s.entries = s.entries[:len(s.entries)-1]
		return err
	}
	return nil
}

// Remove implements Store.Remove
func (s *DiskStore) Remove(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if _, ok := drop[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(s.entries) {
		return nil
	}

	prev := s.entries
	s.entries = kept
	if err := s.write(); err != nil {
		s.entries = prev
		return err
	}
	return nil
}

// Close implements Store.Close
func (s *DiskStore) Close() error { return nil }
