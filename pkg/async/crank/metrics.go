package async_crank

import (
	"context"
	"time"

	"github.com/bagel-payroll/bagel-server/pkg/metrics"
)

const (
	crankRoundEventName      = "AccrualCrankRound"
	accruedEmployeesMetric   = "AccrualCrank/accrued_employees"
	failedEmployeesMetric    = "AccrualCrank/failed_employees"
	crankRoundDurationMetric = "AccrualCrank/round_duration"
)

func (p *service) recordRound(ctx context.Context, summary *roundSummary, elapsed time.Duration) {
	metrics.RecordEvent(ctx, crankRoundEventName, map[string]interface{}{
		"listed":   summary.listed,
		"eligible": summary.eligible,
		"accrued":  summary.accrued,
		"failed":   summary.failed,
		"batches":  summary.batches,
		"paused":   summary.paused,
	})
	metrics.RecordCount(ctx, accruedEmployeesMetric, uint64(summary.accrued))
	metrics.RecordCount(ctx, failedEmployeesMetric, uint64(summary.failed))
	metrics.RecordDuration(ctx, crankRoundDurationMetric, elapsed)
}
