package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/external"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/bagel-payroll/bagel-server/pkg/cache"
	"github.com/bagel-payroll/bagel-server/pkg/data/account"
	"github.com/bagel-payroll/bagel-server/pkg/data/handle"
	"github.com/bagel-payroll/bagel-server/pkg/data/transaction"
	pg "github.com/bagel-payroll/bagel-server/pkg/database/postgres"
	"github.com/bagel-payroll/bagel-server/pkg/database/query"
	"github.com/bagel-payroll/bagel-server/pkg/metrics"

	account_memory_client "github.com/bagel-payroll/bagel-server/pkg/data/account/memory"
	handle_memory_client "github.com/bagel-payroll/bagel-server/pkg/data/handle/memory"
	transaction_memory_client "github.com/bagel-payroll/bagel-server/pkg/data/transaction/memory"

	account_postgres_client "github.com/bagel-payroll/bagel-server/pkg/data/account/postgres"
	handle_postgres_client "github.com/bagel-payroll/bagel-server/pkg/data/handle/postgres"
	transaction_postgres_client "github.com/bagel-payroll/bagel-server/pkg/data/transaction/postgres"
)

const (
	metricsStructName = "data.provider"

	maxAccountCacheSize = 100000
	accountCacheTTL     = 5 * time.Second // Keep this relatively small

	maxTransactionHistoryReqSize = 1024
)

type DatabaseData interface {
	// Accounts
	// --------------------------------------------------------------------------------
	GetAccount(ctx context.Context, address string) (*account.Record, error)
	GetAccounts(ctx context.Context, addresses ...string) ([]*account.Record, error)
	GetAllAccountsByOwner(ctx context.Context, owner string, dataPrefix []byte) ([]*account.Record, error)
	SaveAccounts(ctx context.Context, records ...*account.Record) error

	// Transactions
	// --------------------------------------------------------------------------------
	GetTransaction(ctx context.Context, sig string) (*transaction.Record, error)
	GetAllTransactionsByAccount(ctx context.Context, address string, opts ...query.Option) ([]*transaction.Record, error)
	SaveTransaction(ctx context.Context, record *transaction.Record) error

	// Handles
	// --------------------------------------------------------------------------------
	GetHandle(ctx context.Context, id string) (*handle.Record, error)
	SaveHandle(ctx context.Context, record *handle.Record) error

	// CommitTransaction atomically persists a processed transaction along with
	// every account it modified.
	CommitTransaction(ctx context.Context, record *transaction.Record, accounts ...*account.Record) error

	// ExecuteInTx executes fn with a single DB transaction that is scoped to
	// the call. Stores called within fn share that transaction.
	ExecuteInTx(ctx context.Context, isolation sql.IsolationLevel, fn func(ctx context.Context) error) error
}

type DatabaseProvider struct {
	accounts     account.Store
	transactions transaction.Store
	handles      handle.Store

	// Values are nil when the account is known not to exist
	accountCache *cache.Cache[string, *account.Record]

	db *sqlx.DB
}

// NewDatabaseProvider opens a postgres connection pool and returns a provider
// backed by it.
func NewDatabaseProvider(dbConfig *pg.Config) (DatabaseData, error) {
	var db *sql.DB
	var err error
	if dbConfig.UseAwsIam {
		awsConfig, err := external.LoadDefaultAWSConfig()
		if err != nil {
			return nil, errors.Wrap(err, "error loading aws config")
		}

		db, err = pg.NewWithAwsIam(
			dbConfig.User,
			dbConfig.Host,
			fmt.Sprint(dbConfig.Port),
			dbConfig.DbName,
			awsConfig,
		)
		if err != nil {
			return nil, err
		}
	} else {
		db, err = pg.NewWithUsernameAndPassword(
			dbConfig.User,
			dbConfig.Password,
			dbConfig.Host,
			fmt.Sprint(dbConfig.Port),
			dbConfig.DbName,
		)
		if err != nil {
			return nil, err
		}
	}

	if dbConfig.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(dbConfig.MaxOpenConnections)
	}
	if dbConfig.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(dbConfig.MaxIdleConnections)
	}
	db.SetConnMaxIdleTime(time.Hour)
	db.SetConnMaxLifetime(time.Hour)

	return &DatabaseProvider{
		accounts:     account_postgres_client.New(db),
		transactions: transaction_postgres_client.New(db),
		handles:      handle_postgres_client.New(db),

		accountCache: newAccountCache(),

		db: sqlx.NewDb(db, "pgx"),
	}, nil
}

// NewTestDatabaseProvider returns a provider backed by in-memory stores.
func NewTestDatabaseProvider() DatabaseData {
	return &DatabaseProvider{
		accounts:     account_memory_client.New(),
		transactions: transaction_memory_client.New(),
		handles:      handle_memory_client.New(),

		accountCache: newAccountCache(),
	}
}

func (dp *DatabaseProvider) ExecuteInTx(ctx context.Context, isolation sql.IsolationLevel, fn func(ctx context.Context) error) error {
	if dp.db == nil {
		return fn(ctx)
	}

	return pg.ExecuteTxWithinCtx(ctx, dp.db, isolation, fn)
}

// Accounts
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) GetAccount(ctx context.Context, address string) (*account.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetAccount")
	defer tracer.End()

	if record, ok := dp.getCachedAccount(address); ok {
		if record == nil {
			return nil, account.ErrNotFound
		}
		return record, nil
	}

	record, err := dp.accounts.Get(ctx, address)
	if err == account.ErrNotFound {
		dp.setCachedAccount(address, nil)
		return nil, err
	} else if err != nil {
		tracer.OnError(err)
		return nil, err
	}

	dp.setCachedAccount(address, record)
	return record, nil
}
func (dp *DatabaseProvider) GetAccounts(ctx context.Context, addresses ...string) ([]*account.Record, error) {
	var res []*account.Record
	var missing []string
	for _, address := range addresses {
		record, ok := dp.getCachedAccount(address)
		if !ok {
			missing = append(missing, address)
			continue
		}
		if record != nil {
			res = append(res, record)
		}
	}

	if len(missing) == 0 {
		return res, nil
	}

	fetched, err := dp.accounts.GetMany(ctx, missing...)
	if err != nil {
		return nil, err
	}

	found := make(map[string]struct{})
	for _, record := range fetched {
		found[record.Address] = struct{}{}
		dp.setCachedAccount(record.Address, record)
		res = append(res, record)
	}
	for _, address := range missing {
		if _, ok := found[address]; !ok {
			dp.setCachedAccount(address, nil)
		}
	}
	return res, nil
}
func (dp *DatabaseProvider) GetAllAccountsByOwner(ctx context.Context, owner string, dataPrefix []byte) ([]*account.Record, error) {
	return dp.accounts.GetAllByOwner(ctx, owner, dataPrefix)
}
func (dp *DatabaseProvider) SaveAccounts(ctx context.Context, records ...*account.Record) error {
	if err := dp.accounts.PutAll(ctx, records...); err != nil {
		return err
	}

	for _, record := range records {
		dp.setCachedAccount(record.Address, record)
	}
	return nil
}

// Transactions
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) GetTransaction(ctx context.Context, sig string) (*transaction.Record, error) {
	return dp.transactions.Get(ctx, sig)
}
func (dp *DatabaseProvider) GetAllTransactionsByAccount(ctx context.Context, address string, opts ...query.Option) ([]*transaction.Record, error) {
	req, err := query.DefaultPaginationHandlerWithLimit(maxTransactionHistoryReqSize, opts...)
	if err != nil {
		return nil, err
	}

	return dp.transactions.GetAllByAccount(
		ctx,
		address,
		query.WithCursor(req.Cursor),
		query.WithDirection(req.SortBy),
		query.WithLimit(req.Limit),
	)
}
func (dp *DatabaseProvider) SaveTransaction(ctx context.Context, record *transaction.Record) error {
	return dp.transactions.Put(ctx, record)
}

// Handles
// --------------------------------------------------------------------------------
func (dp *DatabaseProvider) GetHandle(ctx context.Context, id string) (*handle.Record, error) {
	return dp.handles.Get(ctx, id)
}
func (dp *DatabaseProvider) SaveHandle(ctx context.Context, record *handle.Record) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "SaveHandle")
	defer tracer.End()

	err := dp.handles.Put(ctx, record)
	if err != nil {
		tracer.OnError(err)
	}
	return err
}

func (dp *DatabaseProvider) CommitTransaction(ctx context.Context, record *transaction.Record, accounts ...*account.Record) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "CommitTransaction")
	defer tracer.End()

	if err := record.Validate(); err != nil {
		return err
	}
	for _, item := range accounts {
		if err := item.Validate(); err != nil {
			return err
		}
	}

	err := dp.ExecuteInTx(ctx, sql.LevelDefault, func(ctx context.Context) error {
		if len(accounts) > 0 {
			if err := dp.accounts.PutAll(ctx, accounts...); err != nil {
				return errors.Wrap(err, "error saving accounts")
			}
		}

		if err := dp.transactions.Put(ctx, record); err != nil {
			return errors.Wrap(err, "error saving transaction")
		}
		return nil
	})
	if err != nil {
		tracer.OnError(err)
		return err
	}

	// Only refresh the cache once the DB transaction is committed
	for _, record := range accounts {
		dp.setCachedAccount(record.Address, record)
	}
	return nil
}

func newAccountCache() *cache.Cache[string, *account.Record] {
	return cache.New(maxAccountCacheSize, cache.WithTTL[string, *account.Record](accountCacheTTL))
}

func (dp *DatabaseProvider) getCachedAccount(address string) (*account.Record, bool) {
	record, ok := dp.accountCache.Get(address)
	if !ok {
		return nil, false
	}
	if record == nil {
		return nil, true
	}

	cloned := record.Clone()
	return &cloned, true
}

func (dp *DatabaseProvider) setCachedAccount(address string, record *account.Record) {
	var cloned *account.Record
	if record != nil && !record.IsDeleted() {
		c := record.Clone()
		cloned = &c
	}
	dp.accountCache.Put(address, cloned)
}
