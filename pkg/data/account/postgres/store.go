package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/bagel-payroll/bagel-server/pkg/data/account"
	pg "github.com/bagel-payroll/bagel-server/pkg/database/postgres"
)

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) account.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// Get implements account.Store.Get
func (s *store) Get(ctx context.Context, address string) (*account.Record, error) {
	m, err := dbGet(ctx, s.db, address)
	if err != nil {
		return nil, err
	}
	return fromModel(m), nil
}

// GetMany implements account.Store.GetMany
func (s *store) GetMany(ctx context.Context, addresses ...string) ([]*account.Record, error) {
	models, err := dbGetMany(ctx, s.db, addresses...)
	if err != nil {
		return nil, err
	}

	res := make([]*account.Record, len(models))
	for i, m := range models {
		res[i] = fromModel(m)
	}
	return res, nil
}

// PutAll implements account.Store.PutAll
func (s *store) PutAll(ctx context.Context, records ...*account.Record) error {
	models := make([]*model, len(records))
	for i, record := range records {
		m, err := toModel(record)
		if err != nil {
			return err
		}
		models[i] = m
	}

	return pg.ExecuteInTx(ctx, s.db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		for i, m := range models {
			if records[i].IsDeleted() {
				if err := m.txDelete(ctx, tx); err != nil {
					return err
				}
				continue
			}

			if err := m.txUpsert(ctx, tx); err != nil {
				return err
			}

			res := fromModel(m)
			res.CopyTo(records[i])
		}
		return nil
	})
}

// GetAllByOwner implements account.Store.GetAllByOwner
func (s *store) GetAllByOwner(ctx context.Context, owner string, dataPrefix []byte) ([]*account.Record, error) {
	models, err := dbGetAllByOwner(ctx, s.db, owner, dataPrefix)
	if err != nil {
		return nil, err
	}

	res := make([]*account.Record, len(models))
	for i, m := range models {
		res[i] = fromModel(m)
	}
	return res, nil
}
