package store

import (
	"fmt"
	"os"
	"path/filepath"

	"council-ai/internal/domain"
	"council-ai/internal/infra/config"
)

// dbFile is the SQLite database name inside the data dir.
const dbFile = "council.db"

// Stores bundles the history and stats stores of one backend.
type Stores struct {
	History domain.HistoryStore
	Stats   domain.StatsStore
	close   func() error
}

// Close releases the backend. Safe to call on file stores.
func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open builds the history and stats stores selected by cfg.Backend.
func Open(cfg config.StorageConfig) (*Stores, error) {
	dir := config.ExpandHome(cfg.DataDir)
	switch cfg.Backend {
	case "", "file":
		h, err := NewFileHistoryStore(dir)
		if err != nil {
			return nil, err
		}
		st, err := NewFileStatsStore(dir)
		if err != nil {
			return nil, err
		}
		return &Stores{History: h, Stats: st}, nil

	case "sqlite":
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		db, err := NewSQLiteStore(filepath.Join(dir, dbFile))
		if err != nil {
			return nil, err
		}
		return &Stores{History: db.History(), Stats: db.Stats(), close: db.Close}, nil
	}
	return nil, domain.NewDomainError("store.Open", domain.ErrInvalidInput,
		fmt.Sprintf("unknown storage backend %q (want file or sqlite)", cfg.Backend))
}
