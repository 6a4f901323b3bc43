package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"council-ai/internal/domain"
)

const (
	historyFile = "history.json"
	statsFile   = "stats.json"
)

// FileHistoryStore implements domain.HistoryStore as a single JSON array.
// Every mutation rewrites the file through a temp file and rename, so a
// crash leaves either the old or the new log on disk.
type FileHistoryStore struct {
	path string
	mu   sync.RWMutex
	msgs []domain.Message
}

// NewFileHistoryStore opens the history file in dir, creating dir if needed.
func NewFileHistoryStore(dir string) (*FileHistoryStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("historystore: create dir: %w", err)
	}
	s := &FileHistoryStore{path: filepath.Join(dir, historyFile)}
	if err := readJSON(s.path, &s.msgs); err != nil {
		return nil, fmt.Errorf("historystore: load: %w", err)
	}
	return s, nil
}

func (s *FileHistoryStore) Load(_ context.Context) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Message, len(s.msgs))
	copy(out, s.msgs)
	return out, nil
}

func (s *FileHistoryStore) Append(_ context.Context, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(append([]domain.Message(nil), s.msgs...), msgs...)
	if err := writeJSON(s.path, next); err != nil {
		return domain.NewDomainError("FileHistoryStore.Append", domain.ErrStore, err.Error())
	}
	s.msgs = next
	return nil
}

// DropOldest removes the first n messages. n beyond the length empties the log.
func (s *FileHistoryStore) DropOldest(_ context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n = min(n, len(s.msgs))
	next := append([]domain.Message(nil), s.msgs[n:]...)
	if err := writeJSON(s.path, next); err != nil {
		return domain.NewDomainError("FileHistoryStore.DropOldest", domain.ErrStore, err.Error())
	}
	s.msgs = next
	return nil
}

func (s *FileHistoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeJSON(s.path, []domain.Message{}); err != nil {
		return domain.NewDomainError("FileHistoryStore.Clear", domain.ErrStore, err.Error())
	}
	s.msgs = nil
	return nil
}

// FileStatsStore implements domain.StatsStore as a JSON object keyed by
// agent id.
type FileStatsStore struct {
	path  string
	mu    sync.RWMutex
	stats map[string]domain.AgentStats
}

// NewFileStatsStore opens the stats file in dir, creating dir if needed.
func NewFileStatsStore(dir string) (*FileStatsStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("statsstore: create dir: %w", err)
	}
	s := &FileStatsStore{
		path:  filepath.Join(dir, statsFile),
		stats: make(map[string]domain.AgentStats),
	}
	if err := readJSON(s.path, &s.stats); err != nil {
		return nil, fmt.Errorf("statsstore: load: %w", err)
	}
	if s.stats == nil {
		s.stats = make(map[string]domain.AgentStats)
	}
	return s, nil
}

// Get returns zero counters for an agent that has never been scored.
func (s *FileStatsStore) Get(_ context.Context, agentID string) (domain.AgentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stats[agentID]
	if !ok {
		return domain.AgentStats{AgentID: agentID}, nil
	}
	return st, nil
}

// All returns every entry sorted by agent id.
func (s *FileStatsStore) All(_ context.Context) ([]domain.AgentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AgentStats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (s *FileStatsStore) Record(_ context.Context, agentID string, v domain.Verdict) (domain.AgentStats, error) {
	if agentID == "" {
		return domain.AgentStats{}, domain.NewDomainError("FileStatsStore.Record", domain.ErrInvalidInput, "empty agent id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats[agentID]
	st.AgentID = agentID
	st.Apply(v)

	next := make(map[string]domain.AgentStats, len(s.stats)+1)
	for k, old := range s.stats {
		next[k] = old
	}
	next[agentID] = st
	if err := writeJSON(s.path, next); err != nil {
		return domain.AgentStats{}, domain.NewDomainError("FileStatsStore.Record", domain.ErrStore, err.Error())
	}
	s.stats = next
	return st, nil
}

func (s *FileStatsStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeJSON(s.path, map[string]domain.AgentStats{}); err != nil {
		return domain.NewDomainError("FileStatsStore.Reset", domain.ErrStore, err.Error())
	}
	s.stats = make(map[string]domain.AgentStats)
	return nil
}

// readJSON decodes path into v. A missing or empty file leaves v untouched.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeJSON atomically writes v as indented JSON (temp file + rename, 0600).
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

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
	if err := os.Chmod(tmpName, 0600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

var (
	_ domain.HistoryStore = (*FileHistoryStore)(nil)
	_ domain.StatsStore   = (*FileStatsStore)(nil)
)
