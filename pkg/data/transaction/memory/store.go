package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bagel-payroll/bagel-server/pkg/data/transaction"
	"github.com/bagel-payroll/bagel-server/pkg/database/query"
)

type store struct {
	mu        sync.Mutex
	records   []*transaction.Record
	lastIndex uint64
}

type ById []*transaction.Record

func (a ById) Len() int      { return len(a) }
func (a ById) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a ById) Less(i, j int) bool {
	return a[i].Id < a[j].Id
}

func New() transaction.Store {
	return &store{
		records: make([]*transaction.Record, 0),
	}
}

func (s *store) reset() {
	s.mu.Lock()
	s.records = make([]*transaction.Record, 0)
	s.lastIndex = 0
	s.mu.Unlock()
}

// Put implements transaction.Store.Put
func (s *store) Put(_ context.Context, data *transaction.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if data.CreatedAt.IsZero() {
		data.CreatedAt = time.Now()
	}

	for index, item := range s.records {
		if item.Signature == data.Signature {
			data.Id = item.Id
			data.CreatedAt = item.CreatedAt

			clone := data.Clone()
			s.records[index] = &clone
			return nil
		}
	}

	s.lastIndex++
	data.Id = s.lastIndex

	clone := data.Clone()
	s.records = append(s.records, &clone)
	return nil
}

// Get implements transaction.Store.Get
func (s *store) Get(_ context.Context, sig string) (*transaction.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.records {
		if item.Signature == sig {
			clone := item.Clone()
			return &clone, nil
		}
	}

	return nil, transaction.ErrNotFound
}

// GetAllByAccount implements transaction.Store.GetAllByAccount
func (s *store) GetAllByAccount(_ context.Context, account string, opts ...query.Option) ([]*transaction.Record, error) {
	req, err := query.DefaultPaginationHandler(opts...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var cursor uint64
	if len(req.Cursor) > 0 {
		cursor = req.Cursor.ToUint64()
	}

	all := make([]*transaction.Record, 0)
	for _, record := range s.records {
		if cursor > 0 {
			if req.SortBy == query.Ascending && record.Id <= cursor {
				continue
			}
			if req.SortBy == query.Descending && record.Id >= cursor {
				continue
			}
		}

		for _, item := range record.Accounts {
			if item == account {
				clone := record.Clone()
				all = append(all, &clone)
				break
			}
		}
	}

	sort.Sort(ById(all))

	if req.SortBy == query.Descending {
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
		}
	}

	if len(all) == 0 {
		return nil, transaction.ErrNotFound
	}

	if req.Limit > 0 && uint64(len(all)) > req.Limit {
		all = all[:req.Limit]
	}
	return all, nil
}
