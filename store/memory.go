package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alimasry/typing-replay/replay"
)

type docRecord struct {
	info    DocumentInfo
	history []replay.Sequence
}

// MemoryStore is an in-memory implementation of DocumentStore.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*docRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*docRecord)}
}

func (s *MemoryStore) Create(_ context.Context, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; ok {
		return exists(id)
	}
	now := time.Now()
	s.docs[id] = &docRecord{
		info: DocumentInfo{ID: id, Content: content, CreatedAt: now, UpdatedAt: now},
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.docs[id]
	if !ok {
		return nil, notFound(id)
	}
	info := rec.info
	return &info, nil
}

// List returns all documents ordered by id.
func (s *MemoryStore) List(_ context.Context) ([]DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]DocumentInfo, 0, len(s.docs))
	for _, rec := range s.docs {
		result = append(result, rec.info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) UpdateContent(_ context.Context, id, content string, version int) error {
	return s.update(id, func(rec *docRecord) error {
		rec.info.Content = content
		rec.info.Version = version
		return nil
	})
}

func (s *MemoryStore) AppendOperation(_ context.Context, id string, seq replay.Sequence, version int) error {
	return s.update(id, func(rec *docRecord) error {
		if version != len(rec.history)+1 {
			return conflict(id, version, len(rec.history))
		}
		rec.history = append(rec.history, seq)
		return nil
	})
}

func (s *MemoryStore) GetOperations(_ context.Context, id string, fromVersion int) ([]replay.Sequence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.docs[id]
	if !ok {
		return nil, notFound(id)
	}
	if fromVersion < 0 || fromVersion > len(rec.history) {
		return nil, fmt.Errorf("document %q: invalid version %d", id, fromVersion)
	}
	ops := make([]replay.Sequence, len(rec.history)-fromVersion)
	copy(ops, rec.history[fromVersion:])
	return ops, nil
}

func (s *MemoryStore) update(id string, fn func(rec *docRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.docs[id]
	if !ok {
		return notFound(id)
	}
	if err := fn(rec); err != nil {
		return err
	}
	rec.info.UpdatedAt = time.Now()
	return nil
}

// historyLen returns the number of stored operations for id, or -1.
func (s *MemoryStore) historyLen(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[id]
	if !ok {
		return -1
	}
	return len(rec.history)
}

// load inserts a record read from elsewhere unless id is already present.
func (s *MemoryStore) load(info DocumentInfo, history []replay.Sequence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[info.ID]; !ok {
		s.docs[info.ID] = &docRecord{info: info, history: history}
	}
}

// snapshot returns id's info and the operations from index from onwards.
func (s *MemoryStore) snapshot(id string, from int) (DocumentInfo, []replay.Sequence, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[id]
	if !ok {
		return DocumentInfo{}, nil, 0, false
	}
	var pending []replay.Sequence
	if from < len(rec.history) {
		pending = make([]replay.Sequence, len(rec.history)-from)
		copy(pending, rec.history[from:])
	}
	return rec.info, pending, len(rec.history), true
}
