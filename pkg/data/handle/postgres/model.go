package postgres

import (
	"context"
	"database/sql"
	"math/big"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/bagel-payroll/bagel-server/pkg/data/handle"
	pg "github.com/bagel-payroll/bagel-server/pkg/database/postgres"
)

const (
	tableName = "bagel__core_handle"

	allColumns = `id, handle, value, created_at`
)

type model struct {
	Id        sql.NullInt64 `db:"id"`
	Handle    string        `db:"handle"`
	Value     string        `db:"value"`
	CreatedAt time.Time     `db:"created_at"`
}

func toModel(obj *handle.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now()
	}

	return &model{
		Id:        sql.NullInt64{Int64: int64(obj.Id), Valid: obj.Id > 0},
		Handle:    obj.Handle,
		Value:     obj.Value.String(),
		CreatedAt: obj.CreatedAt.UTC(),
	}, nil
}

func fromModel(obj *model) (*handle.Record, error) {
	value, ok := new(big.Int).SetString(obj.Value, 10)
	if !ok {
		return nil, errors.Errorf("invalid value stored for handle %s", obj.Handle)
	}

	return &handle.Record{
		Id:        uint64(obj.Id.Int64),
		Handle:    obj.Handle,
		Value:     value,
		CreatedAt: obj.CreatedAt.UTC(),
	}, nil
}

func (m *model) dbInsert(ctx context.Context, db *sqlx.DB) error {
	return pg.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + tableName + `
			(handle, value, created_at)
			VALUES ($1,$2,$3)
			ON CONFLICT (handle) DO NOTHING
			RETURNING ` + allColumns + `;`

		err := tx.QueryRowxContext(ctx, query,
			m.Handle,
			m.Value,
			m.CreatedAt,
		).StructScan(m)
		return pg.CheckNoRows(err, handle.ErrExists)
	})
}

func dbGet(ctx context.Context, db *sqlx.DB, id string) (*model, error) {
	res := &model{}

	query := `SELECT ` + allColumns + ` FROM ` + tableName + ` WHERE handle = $1 LIMIT 1;`
	err := db.GetContext(ctx, res, query, id)
	if err != nil {
		return nil, pg.CheckNoRows(err, handle.ErrNotFound)
	}
	return res, nil
}
