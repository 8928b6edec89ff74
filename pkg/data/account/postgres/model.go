package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bagel-payroll/bagel-server/pkg/data/account"
	pg "github.com/bagel-payroll/bagel-server/pkg/database/postgres"
)

const (
	tableName = "bagel__core_account"

	allColumns = `id, address, owner, lamports, data, executable, slot, created_at, last_updated_at`
)

type model struct {
	Id            sql.NullInt64 `db:"id"`
	Address       string        `db:"address"`
	Owner         string        `db:"owner"`
	Lamports      int64         `db:"lamports"`
	Data          []byte        `db:"data"`
	Executable    bool          `db:"executable"`
	Slot          int64         `db:"slot"`
	CreatedAt     time.Time     `db:"created_at"`
	LastUpdatedAt time.Time     `db:"last_updated_at"`
}

func toModel(obj *account.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = now
	}

	data := obj.Data
	if data == nil {
		data = []byte{}
	}

	return &model{
		Id:            sql.NullInt64{Int64: int64(obj.Id), Valid: obj.Id > 0},
		Address:       obj.Address,
		Owner:         obj.Owner,
		Lamports:      int64(obj.Lamports),
		Data:          data,
		Executable:    obj.Executable,
		Slot:          int64(obj.Slot),
		CreatedAt:     obj.CreatedAt.UTC(),
		LastUpdatedAt: now.UTC(),
	}, nil
}

func fromModel(obj *model) *account.Record {
	return &account.Record{
		Id:            uint64(obj.Id.Int64),
		Address:       obj.Address,
		Owner:         obj.Owner,
		Lamports:      uint64(obj.Lamports),
		Data:          obj.Data,
		Executable:    obj.Executable,
		Slot:          uint64(obj.Slot),
		CreatedAt:     obj.CreatedAt.UTC(),
		LastUpdatedAt: obj.LastUpdatedAt.UTC(),
	}
}

func (m *model) txUpsert(ctx context.Context, tx *sqlx.Tx) error {
	query := `INSERT INTO ` + tableName + `
		(address, owner, lamports, data, executable, slot, created_at, last_updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (address) DO UPDATE
		SET
			owner 			= $2,
			lamports 		= $3,
			data 			= $4,
			executable 		= $5,
			slot 			= $6,
			last_updated_at = $8
			WHERE ` + tableName + `.address = $1
		RETURNING ` + allColumns + `;`

	return tx.QueryRowxContext(ctx, query,
		m.Address,
		m.Owner,
		m.Lamports,
		m.Data,
		m.Executable,
		m.Slot,
		m.CreatedAt,
		m.LastUpdatedAt,
	).StructScan(m)
}

func (m *model) txDelete(ctx context.Context, tx *sqlx.Tx) error {
	query := `DELETE FROM ` + tableName + ` WHERE address = $1;`
	_, err := tx.ExecContext(ctx, query, m.Address)
	return err
}

func dbGet(ctx context.Context, db *sqlx.DB, address string) (*model, error) {
	res := &model{}

	query := `SELECT ` + allColumns + ` FROM ` + tableName + ` WHERE address = $1 LIMIT 1;`
	err := db.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, pg.CheckNoRows(err, account.ErrNotFound)
	}
	return res, nil
}

func dbGetMany(ctx context.Context, db *sqlx.DB, addresses ...string) ([]*model, error) {
	res := []*model{}
	if len(addresses) == 0 {
		return res, nil
	}

	query, args, err := sqlx.In(`SELECT `+allColumns+` FROM `+tableName+` WHERE address IN (?);`, addresses)
	if err != nil {
		return nil, err
	}

	err = db.SelectContext(ctx, &res, db.Rebind(query), args...)
	if err != nil && !pg.IsNoRows(err) {
		return nil, err
	}
	return res, nil
}

func dbGetAllByOwner(ctx context.Context, db *sqlx.DB, owner string, dataPrefix []byte) ([]*model, error) {
	res := []*model{}

	var err error
	if len(dataPrefix) == 0 {
		query := `SELECT ` + allColumns + ` FROM ` + tableName + `
			WHERE owner = $1
			ORDER BY address ASC;`
		err = db.SelectContext(ctx, &res, query, owner)
	} else {
		query := `SELECT ` + allColumns + ` FROM ` + tableName + `
			WHERE owner = $1 AND substring(data from 1 for $2) = $3
			ORDER BY address ASC;`
		err = db.SelectContext(ctx, &res, query, owner, len(dataPrefix), dataPrefix)
	}

	if err != nil {
		return nil, pg.CheckNoRows(err, account.ErrNotFound)
	}
	if len(res) == 0 {
		return nil, account.ErrNotFound
	}
	return res, nil
}
