package main

import (
	"context"
	"crypto/ed25519"
	"net/http"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"

	"github.com/bagel-payroll/bagel-server/pkg/app"
	async_crank "github.com/bagel-payroll/bagel-server/pkg/async/crank"
	"github.com/bagel-payroll/bagel-server/pkg/data"
	"github.com/bagel-payroll/bagel-server/pkg/lock"
	etcd_lock "github.com/bagel-payroll/bagel-server/pkg/lock/etcd"
	"github.com/bagel-payroll/bagel-server/pkg/lock/local"
	"github.com/bagel-payroll/bagel-server/pkg/payroll"
	inco_client "github.com/bagel-payroll/bagel-server/pkg/solana/inco"
	"github.com/bagel-payroll/bagel-server/pkg/svm"
	bagel_program "github.com/bagel-payroll/bagel-server/pkg/svm/programs/bagel"
	"github.com/bagel-payroll/bagel-server/pkg/svm/programs/inco"
	"github.com/bagel-payroll/bagel-server/pkg/svm/programs/magicblock"
	"github.com/bagel-payroll/bagel-server/pkg/svm/programs/shadowwire"
	"github.com/bagel-payroll/bagel-server/pkg/svm/rpc"
)

const (
	locksKey = "locks"
)

// validator runs a single node bank with the payroll program and its devnet
// collaborators, serves it over JSON-RPC, and cranks salary accrual.
type validator struct {
	log *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	bank   *svm.Bank
	server *rpc.Server

	etcdClient  *v3.Client
	etcdLocks   *etcd_lock.LockManager
	registry    *registry
	crankDoneCh chan struct{}

	stopOnce   sync.Once
	shutdownCh chan struct{}
}

func newValidator() *validator {
	return &validator{
		log:        logrus.StandardLogger().WithField("type", "validator"),
		shutdownCh: make(chan struct{}),
	}
}

// Init implements app.App.
func (v *validator) Init(ctx context.Context, rawConfig app.Config, _ *newrelic.Application) error {
	config, err := decodeValidatorConfig(rawConfig)
	if err != nil {
		return err
	}

	v.ctx, v.cancel = context.WithCancel(ctx)

	db, err := newDatabase(config)
	if err != nil {
		return err
	}

	v.bank, err = newBank(v.ctx, db)
	if err != nil {
		return err
	}
	v.server = rpc.NewServer(v.bank)

	var locks lock.Manager = local.NewLockManager()
	if config.usesEtcd() {
		if err := v.initEtcd(config); err != nil {
			return err
		}
		locks = v.etcdLocks
	}

	if config.EnableCrank {
		if err := v.startCrank(config, locks); err != nil {
			return err
		}
	}

	v.log.WithFields(logrus.Fields{
		"node":     config.NodeID,
		"postgres": config.usesPostgres(),
		"etcd":     config.usesEtcd(),
		"crank":    config.EnableCrank,
	}).Info("validator initialized")
	return nil
}

func newDatabase(config validatorConfig) (data.DatabaseData, error) {
	if !config.usesPostgres() {
		return data.NewTestDatabaseProvider(), nil
	}

	db, err := data.NewDatabaseProvider(&config.Database)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}
	return db, nil
}

func newBank(ctx context.Context, db data.DatabaseData) (*svm.Bank, error) {
	lightning := inco.NewLightning(inco_client.DevnetNetworkKeyPair(), db)

	payroll, err := bagel_program.New()
	if err != nil {
		return nil, err
	}

	bank, err := svm.NewBank(
		ctx,
		db,
		time.Now,
		svm.WithEnvConfigs(),
		lightning,
		inco.NewToken(lightning),
		magicblock.New(),
		shadowwire.New(),
		payroll,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize bank")
	}
	return bank, nil
}

func (v *validator) initEtcd(config validatorConfig) error {
	client, err := v3.New(v3.Config{
		Endpoints:   config.EtcdEndpoints,
		DialTimeout: config.EtcdDialTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "failed to connect to etcd")
	}
	v.etcdClient = client

	v.etcdLocks, err = etcd_lock.NewLockManager(client, config.EtcdRootKey+"/"+locksKey, config.EtcdLockTTL, config.NodeID)
	if err != nil {
		return err
	}

	v.registry, err = newRegistry(v.ctx, client, config.EtcdRootKey, config.EtcdLockTTL, nodeInfo{
		ID:         config.NodeID,
		RPCAddress: config.AdvertiseAddress,
		StartedAt:  time.Now().UTC(),
	})
	return err
}

func (v *validator) startCrank(config validatorConfig, locks lock.Manager) error {
	cranker, generated, err := config.crankerKey()
	if err != nil {
		return err
	}

	crankerAddress := cranker.Public().(ed25519.PublicKey)
	if generated {
		result, err := v.bank.Airdrop(v.ctx, crankerAddress, config.CrankerFunding)
		if err != nil {
			return errors.Wrap(err, "failed to fund cranker")
		}
		if result.Err != nil {
			return errors.Wrap(result.Err, "failed to fund cranker")
		}
	}

	client, err := payroll.NewClient(payroll.NewBankSubmitter(v.bank), inco_client.DevnetNetworkKey(), payroll.WithEnvConfigs())
	if err != nil {
		return err
	}

	crank := async_crank.New(client, cranker, locks, async_crank.WithEnvConfigs())

	v.crankDoneCh = make(chan struct{})
	go func() {
		defer close(v.crankDoneCh)

		err := crank.Start(v.ctx, config.CrankInterval)
		if err != nil && err != context.Canceled {
			v.log.WithError(err).Error("accrual crank stopped")
		}
	}()

	v.log.WithField("cranker", base58.Encode(crankerAddress)).Info("accrual crank started")
	return nil
}

// RegisterWithGRPC implements app.App. The validator only serves the
// standard health service.
func (v *validator) RegisterWithGRPC(_ *grpc.Server) {
}

// HTTPHandler implements app.App.
func (v *validator) HTTPHandler() http.Handler {
	return v.server.Handler()
}

// ShutdownChan implements app.App.
func (v *validator) ShutdownChan() <-chan struct{} {
	return v.shutdownCh
}

// Stop implements app.App.
func (v *validator) Stop() {
	v.stopOnce.Do(func() {
		if v.cancel != nil {
			v.cancel()
		}

		if v.crankDoneCh != nil {
			<-v.crankDoneCh
		}
		if v.registry != nil {
			v.registry.close()
		}
		if v.etcdLocks != nil {
			v.etcdLocks.Close()
		}
		if v.etcdClient != nil {
			if err := v.etcdClient.Close(); err != nil {
				v.log.WithError(err).Warn("failed to close etcd client")
			}
		}

		close(v.shutdownCh)
	})
}
