package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bagel-payroll/bagel-server/pkg/data/account"
)

type store struct {
	mu        sync.RWMutex
	records   map[string]*account.Record
	lastIndex uint64
}

func New() account.Store {
	return &store{
		records: make(map[string]*account.Record),
	}
}

func (s *store) reset() {
	s.mu.Lock()
	s.records = make(map[string]*account.Record)
	s.lastIndex = 0
	s.mu.Unlock()
}

// Get implements account.Store.Get
func (s *store) Get(_ context.Context, address string) (*account.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.records[address]
	if !ok {
		return nil, account.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

// GetMany implements account.Store.GetMany
func (s *store) GetMany(_ context.Context, addresses ...string) ([]*account.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*account.Record, 0, len(addresses))
	for _, address := range addresses {
		item, ok := s.records[address]
		if !ok {
			continue
		}

		cloned := item.Clone()
		res = append(res, &cloned)
	}
	return res, nil
}

// PutAll implements account.Store.PutAll
func (s *store) PutAll(_ context.Context, records ...*account.Record) error {
	for _, record := range records {
		if err := record.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, record := range records {
		if record.IsDeleted() {
			delete(s.records, record.Address)
			continue
		}

		if existing, ok := s.records[record.Address]; ok {
			record.Id = existing.Id
			record.CreatedAt = existing.CreatedAt
		} else {
			s.lastIndex++
			record.Id = s.lastIndex
			if record.CreatedAt.IsZero() {
				record.CreatedAt = now
			}
		}
		record.LastUpdatedAt = now

		cloned := record.Clone()
		s.records[record.Address] = &cloned
	}

	return nil
}

// GetAllByOwner implements account.Store.GetAllByOwner
func (s *store) GetAllByOwner(_ context.Context, owner string, dataPrefix []byte) ([]*account.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []*account.Record
	for _, item := range s.records {
		if item.Owner != owner {
			continue
		}
		if len(dataPrefix) > 0 && !item.HasDataPrefix(dataPrefix) {
			continue
		}

		cloned := item.Clone()
		res = append(res, &cloned)
	}

	if len(res) == 0 {
		return nil, account.ErrNotFound
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].Address < res[j].Address
	})
	return res, nil
}
