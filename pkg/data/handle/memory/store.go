package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bagel-payroll/bagel-server/pkg/data/handle"
)

type store struct {
	mu        sync.RWMutex
	records   map[string]*handle.Record
	lastIndex uint64
}

func New() handle.Store {
	return &store{
		records: make(map[string]*handle.Record),
	}
}

func (s *store) reset() {
	s.mu.Lock()
	s.records = make(map[string]*handle.Record)
	s.lastIndex = 0
	s.mu.Unlock()
}

// Put implements handle.Store.Put
func (s *store) Put(_ context.Context, record *handle.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.Handle]; ok {
		return handle.ErrExists
	}

	s.lastIndex++
	record.Id = s.lastIndex
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	cloned := record.Clone()
	s.records[record.Handle] = &cloned
	return nil
}

// Get implements handle.Store.Get
func (s *store) Get(_ context.Context, id string) (*handle.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.records[id]
	if !ok {
		return nil, handle.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}
