package async_crank

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/bagel-payroll/bagel-server/pkg/async"
	"github.com/bagel-payroll/bagel-server/pkg/lock"
	"github.com/bagel-payroll/bagel-server/pkg/payroll"
)

const (
	reacquireDelay = time.Second
)

type service struct {
	log  *logrus.Entry
	conf *conf

	client  *payroll.Client
	cranker ed25519.PrivateKey
	locks   lock.Manager
	now     func() time.Time
}

// New returns the accrual crank. Only the instance holding the crank lock
// submits accruals; the others wait for it to fail over.
func New(client *payroll.Client, cranker ed25519.PrivateKey, locks lock.Manager, configProvider ConfigProvider) async.Service {
	return &service{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"service": "accrual_crank",
			"cranker": base58.Encode(cranker.Public().(ed25519.PublicKey)),
		}),
		conf:    configProvider(),
		client:  client,
		cranker: cranker,
		locks:   locks,
		now:     time.Now,
	}
}

func (p *service) Start(ctx context.Context, interval time.Duration) error {
	log := p.log.WithField("method", "Start")

	leadership, err := p.locks.Create(ctx, p.conf.lockName.Get(ctx))
	if err != nil {
		return err
	}

	for {
		lostCh, err := leadership.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			log.WithError(err).Warn("failure acquiring crank lock")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reacquireDelay):
			}
			continue
		}

		log.Info("acquired crank lock")
		err = p.worker(ctx, lostCh, interval)

		if unlockErr := leadership.Unlock(context.Background()); unlockErr != nil {
			log.WithError(unlockErr).Warn("failure releasing crank lock")
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("crank lock lost, waiting to reacquire")
	}
}
