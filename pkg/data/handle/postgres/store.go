package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/bagel-payroll/bagel-server/pkg/data/handle"
)

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) handle.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// Put implements handle.Store.Put
func (s *store) Put(ctx context.Context, record *handle.Record) error {
	m, err := toModel(record)
	if err != nil {
		return err
	}

	if err := m.dbInsert(ctx, s.db); err != nil {
		return err
	}

	record.Id = uint64(m.Id.Int64)
	record.CreatedAt = m.CreatedAt.UTC()
	return nil
}

// Get implements handle.Store.Get
func (s *store) Get(ctx context.Context, id string) (*handle.Record, error) {
	m, err := dbGet(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return fromModel(m)
}
