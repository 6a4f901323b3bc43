package store

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"council-ai/internal/domain"
)

// YAMLProjectStore implements domain.ProjectStore as a YAML file inside the
// workspace, normally .council/project.yaml.
type YAMLProjectStore struct {
	path string
	mu   sync.RWMutex
}

// NewYAMLProjectStore returns a store for the file at path. The file is
// created on first Save.
func NewYAMLProjectStore(path string) *YAMLProjectStore {
	return &YAMLProjectStore{path: path}
}

// Path returns the settings file location.
func (s *YAMLProjectStore) Path() string { return s.path }

func (s *YAMLProjectStore) Load(_ context.Context) (domain.ProjectSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p domain.ProjectSettings
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return p, domain.NewDomainError("YAMLProjectStore.Load", domain.ErrStore, err.Error())
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return domain.ProjectSettings{}, domain.NewDomainError("YAMLProjectStore.Load", domain.ErrStore,
			fmt.Sprintf("parse %s: %v", s.path, err))
	}
	return p, nil
}

func (s *YAMLProjectStore) Save(_ context.Context, p domain.ProjectSettings) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return domain.NewDomainError("YAMLProjectStore.Save", domain.ErrStore, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.path, data); err != nil {
		return domain.NewDomainError("YAMLProjectStore.Save", domain.ErrStore, err.Error())
	}
	return nil
}

var _ domain.ProjectStore = (*YAMLProjectStore)(nil)
