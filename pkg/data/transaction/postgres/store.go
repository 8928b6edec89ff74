package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/bagel-payroll/bagel-server/pkg/data/transaction"
	pg "github.com/bagel-payroll/bagel-server/pkg/database/postgres"
	"github.com/bagel-payroll/bagel-server/pkg/database/query"
)

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) transaction.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// Put implements transaction.Store.Put
func (s *store) Put(ctx context.Context, record *transaction.Record) error {
	// Be careful in this func, the "tx" variable refers to a database
	// transaction, not the incoming solana transaction record

	txModel, err := toTxModel(record)
	if err != nil {
		return err
	}

	return pg.ExecuteInTx(ctx, s.db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		if err := txModel.txSave(ctx, tx); err != nil {
			return err
		}

		for _, account := range record.Accounts {
			accountModel := &transactionAccountModel{
				TransactionId: record.Signature,
				Account:       account,
			}
			if err := accountModel.txSave(ctx, tx); err != nil {
				return err
			}
		}

		record.Id = uint64(txModel.Id.Int64)
		record.CreatedAt = txModel.CreatedAt
		return nil
	})
}

// Get implements transaction.Store.Get
func (s *store) Get(ctx context.Context, sig string) (*transaction.Record, error) {
	txModel, err := dbGetTx(ctx, s.db, sig)
	if err != nil {
		return nil, err
	}

	accounts, err := dbGetAllTxAccounts(ctx, s.db, sig)
	if err != nil {
		return nil, err
	}

	return fromTxModel(txModel, accounts), nil
}

// GetAllByAccount implements transaction.Store.GetAllByAccount
func (s *store) GetAllByAccount(ctx context.Context, account string, opts ...query.Option) ([]*transaction.Record, error) {
	req, err := query.DefaultPaginationHandler(opts...)
	if err != nil {
		return nil, err
	}

	models, err := dbGetAllByAccount(ctx, s.db, account, req.Cursor, req.Limit, req.SortBy)
	if err != nil {
		return nil, err
	}

	res := make([]*transaction.Record, len(models))
	for i, txModel := range models {
		accounts, err := dbGetAllTxAccounts(ctx, s.db, txModel.Signature)
		if err != nil {
			return nil, err
		}
		res[i] = fromTxModel(txModel, accounts)
	}
	return res, nil
}
