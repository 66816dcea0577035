package storage

import (
	"context"
	"errors"
	"sync"

	"neurosim/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	configs     map[string]model.ConfigRecord
	runs        map[string]model.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.configs = make(map[string]model.ConfigRecord)
	s.runs = make(map[string]model.RunRecord)
	return nil
}

func (s *MemoryStore) SaveConfig(_ context.Context, config model.ConfigRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	config.Values = cloneValues(config.Values)
	s.configs[config.ID] = config
	return nil
}

func (s *MemoryStore) GetConfig(_ context.Context, id string) (model.ConfigRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	config, ok := s.configs[id]
	if !ok {
		return model.ConfigRecord{}, false, nil
	}
	config.Values = cloneValues(config.Values)
	return config, true, nil
}

func (s *MemoryStore) ListConfigs(_ context.Context) ([]model.ConfigRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ConfigRecord, 0, len(s.configs))
	for _, config := range s.configs {
		config.Values = cloneValues(config.Values)
		out = append(out, config)
	}
	sortConfigs(out)
	return out, nil
}

func (s *MemoryStore) DeleteConfig(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.configs[id]
	delete(s.configs, id)
	return ok, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	run.Values = cloneValues(run.Values)
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	run.Values = cloneValues(run.Values)
	return run, true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, runMetadata(run))
	}
	sortRuns(out)
	return out, nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.runs[id]
	delete(s.runs, id)
	return ok, nil
}
