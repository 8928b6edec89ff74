package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bagel-payroll/bagel-server/pkg/data/transaction"
	pg "github.com/bagel-payroll/bagel-server/pkg/database/postgres"
	q "github.com/bagel-payroll/bagel-server/pkg/database/query"
)

const (
	tableNameTx        = "bagel__core_transaction"
	tableNameTxAccount = "bagel__core_transactionaccount"

	txColumns = `id, signature, slot, block_time, raw_data, fee, has_errors, err, logs, return_data, confirmation_state, created_at`
)

type transactionModel struct {
	Id                sql.NullInt64 `db:"id"`
	Signature         string        `db:"signature"`
	Slot              int64         `db:"slot"`
	BlockTime         time.Time     `db:"block_time"`
	Data              []byte        `db:"raw_data"`
	Fee               int64         `db:"fee"`
	HasErrors         bool          `db:"has_errors"`
	Err               string        `db:"err"`
	Logs              string        `db:"logs"`
	ReturnData        []byte        `db:"return_data"`
	ConfirmationState uint          `db:"confirmation_state"`
	CreatedAt         time.Time     `db:"created_at"`
}

type transactionAccountModel struct {
	Id            sql.NullInt64 `db:"id"`
	TransactionId string        `db:"transaction_id"`
	Account       string        `db:"account"`
}

func toTxModel(obj *transaction.Record) (*transactionModel, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now()
	}

	return &transactionModel{
		Id:                sql.NullInt64{Int64: int64(obj.Id), Valid: obj.Id > 0},
		Signature:         obj.Signature,
		Slot:              int64(obj.Slot),
		BlockTime:         obj.BlockTime.UTC(),
		Data:              obj.Data,
		Fee:               int64(obj.Fee),
		HasErrors:         obj.HasErrors,
		Err:               obj.Err,
		Logs:              strings.Join(obj.Logs, "\n"),
		ReturnData:        obj.ReturnData,
		ConfirmationState: uint(obj.ConfirmationState),
		CreatedAt:         obj.CreatedAt.UTC(),
	}, nil
}

func fromTxModel(obj *transactionModel, accounts []*transactionAccountModel) *transaction.Record {
	var logs []string
	if len(obj.Logs) > 0 {
		logs = strings.Split(obj.Logs, "\n")
	}

	var keys []string
	for _, account := range accounts {
		keys = append(keys, account.Account)
	}

	return &transaction.Record{
		Id:                uint64(obj.Id.Int64),
		Signature:         obj.Signature,
		Slot:              uint64(obj.Slot),
		BlockTime:         obj.BlockTime.UTC(),
		Data:              obj.Data,
		Fee:               uint64(obj.Fee),
		HasErrors:         obj.HasErrors,
		Err:               obj.Err,
		Logs:              logs,
		ReturnData:        obj.ReturnData,
		Accounts:          keys,
		ConfirmationState: transaction.Confirmation(obj.ConfirmationState),
		CreatedAt:         obj.CreatedAt.UTC(),
	}
}

func (m *transactionModel) txSave(ctx context.Context, tx *sqlx.Tx) error {
	query := `INSERT INTO ` + tableNameTx + `
		(
			signature, slot, block_time, raw_data, fee, has_errors,
			err, logs, return_data, confirmation_state, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (signature) DO UPDATE
		SET
			slot 				= $2,
			block_time 			= $3,
			fee 				= $5,
			has_errors 			= $6,
			err 				= $7,
			logs 				= $8,
			return_data 		= $9,
			confirmation_state 	= $10
			WHERE ` + tableNameTx + `.signature = $1
		RETURNING ` + txColumns + `;`

	return tx.QueryRowxContext(ctx, query,
		m.Signature,
		m.Slot,
		m.BlockTime,
		m.Data,
		m.Fee,
		m.HasErrors,
		m.Err,
		m.Logs,
		m.ReturnData,
		m.ConfirmationState,
		m.CreatedAt,
	).StructScan(m)
}

func (m *transactionAccountModel) txSave(ctx context.Context, tx *sqlx.Tx) error {
	query := `INSERT INTO ` + tableNameTxAccount + `
		(transaction_id, account)
		VALUES ($1,$2)
		ON CONFLICT (transaction_id, account) DO NOTHING;`

	_, err := tx.ExecContext(ctx, query, m.TransactionId, m.Account)
	return err
}

func dbGetTx(ctx context.Context, db *sqlx.DB, sig string) (*transactionModel, error) {
	res := &transactionModel{}

	query := `SELECT ` + txColumns + ` FROM ` + tableNameTx + ` WHERE signature = $1;`
	err := db.GetContext(ctx, res, query, sig)
	if err != nil {
		return nil, pg.CheckNoRows(err, transaction.ErrNotFound)
	}
	return res, nil
}

func dbGetAllTxAccounts(ctx context.Context, db *sqlx.DB, sig string) ([]*transactionAccountModel, error) {
	res := []*transactionAccountModel{}

	query := `SELECT id, transaction_id, account FROM ` + tableNameTxAccount + ` WHERE transaction_id = $1 ORDER BY id ASC;`
	err := db.SelectContext(ctx, &res, query, sig)
	if err != nil && !pg.IsNoRows(err) {
		return nil, err
	}
	return res, nil
}

func dbGetAllByAccount(ctx context.Context, db *sqlx.DB, account string, cursor q.Cursor, limit uint64, direction q.Ordering) ([]*transactionModel, error) {
	res := []*transactionModel{}

	query, opts := q.PaginateQuery(
		`SELECT `+txColumns+` FROM `+tableNameTx+`
			WHERE (signature IN (SELECT transaction_id FROM `+tableNameTxAccount+` WHERE account = $1))`,
		[]interface{}{account},
		cursor,
		limit,
		direction,
	)

	err := db.SelectContext(ctx, &res, query, opts...)
	if err != nil {
		return nil, pg.CheckNoRows(err, transaction.ErrNotFound)
	}
	if len(res) == 0 {
		return nil, transaction.ErrNotFound
	}
	return res, nil
}
