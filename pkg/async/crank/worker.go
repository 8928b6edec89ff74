package async_crank

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/mr-tron/base58"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"github.com/bagel-payroll/bagel-server/pkg/metrics"
	"github.com/bagel-payroll/bagel-server/pkg/payroll"
	"github.com/bagel-payroll/bagel-server/pkg/retry"
)

var (
	errLockLost = errors.New("crank lock lost")
)

// roundSummary describes one pass over every employee entry.
type roundSummary struct {
	listed   int
	eligible int
	accrued  int
	failed   int
	batches  int
	paused   bool
}

func (p *service) worker(serviceCtx context.Context, lostCh <-chan struct{}, interval time.Duration) error {
	workerCtx, cancel := context.WithCancel(serviceCtx)
	defer cancel()

	go func() {
		select {
		case <-lostCh:
			cancel()
		case <-workerCtx.Done():
		}
	}()

	err := retry.Loop(
		func() error {
			select {
			case <-workerCtx.Done():
				return workerCtx.Err()
			case <-time.After(interval):
			}

			tracedCtx := workerCtx
			if nr, ok := serviceCtx.Value(metrics.NewRelicContextKey).(*newrelic.Application); ok {
				m := nr.StartTransaction("async__accrual_crank__round")
				defer m.End()
				tracedCtx = newrelic.NewContext(workerCtx, m)
			}

			start := time.Now()
			summary, err := p.crank(tracedCtx)
			if err != nil {
				p.log.WithError(err).Warn("failure running crank round")
				return err
			}

			p.recordRound(tracedCtx, summary, time.Since(start))
			return nil
		},
		retry.NonRetriableErrors(context.Canceled),
	)

	select {
	case <-lostCh:
		return errLockLost
	default:
		return err
	}
}

// crank accrues every active, non-delegated employee entry whose last action
// is at least the minimum accrual interval old.
func (p *service) crank(ctx context.Context) (*roundSummary, error) {
	log := p.log.WithField("method", "crank")
	summary := &roundSummary{}

	vault, err := p.client.GetMasterVault(ctx)
	if err == payroll.ErrAccountNotFound {
		log.Debug("vault not initialized")
		return summary, nil
	} else if err != nil {
		return nil, err
	}
	if !vault.IsActive {
		summary.paused = true
		log.Debug("vault paused")
		return summary, nil
	}

	employees, err := p.client.GetEmployeeEntries(ctx)
	if err != nil {
		return nil, err
	}
	summary.listed = len(employees)

	cutoff := p.now().Add(-p.conf.minAccrualInterval.Get(ctx)).Unix()

	var eligible []*payroll.EmployeeRecord
	for _, employee := range employees {
		if !employee.Entry.IsActive || employee.Entry.LastAction > cutoff {
			continue
		}
		eligible = append(eligible, employee)
	}
	summary.eligible = len(eligible)

	// Stalest entries go first
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].Entry.LastAction < eligible[j].Entry.LastAction
	})

	batchSize := int(p.conf.batchSize.Get(ctx))
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	for start := 0; start < len(eligible); start += batchSize {
		end := start + batchSize
		if end > len(eligible) {
			end = len(eligible)
		}
		batch := eligible[start:end]
		summary.batches++

		_, err := p.client.AccrueBatch(ctx, p.cranker, batch)
		if err == nil {
			summary.accrued += len(batch)
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// One bad entry fails the whole batch, so find it
		log.WithError(err).WithField("batch_size", len(batch)).Debug("batch failed, accruing entries individually")
		for _, employee := range batch {
			if _, err := p.client.Accrue(ctx, p.cranker, employee.Entry.BusinessEntry, employee.Address); err != nil {
				summary.failed++
				log.WithError(err).WithFields(logrus.Fields{
					"business": base58.Encode(employee.Entry.BusinessEntry),
					"employee": base58.Encode(employee.Address),
				}).Warn("failure accruing employee")
				continue
			}
			summary.accrued++
		}
	}

	return summary, nil
}
