package metrics

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

type newRelicContextKey struct{}

// NewRelicContextKey is the context key holding the *newrelic.Application
// that metrics and events are reported to.
var NewRelicContextKey = newRelicContextKey{}

// WithApplication returns a copy of ctx that reports to app. A nil app
// leaves ctx untouched, and recording becomes a no-op.
func WithApplication(ctx context.Context, app *newrelic.Application) context.Context {
	if app == nil {
		return ctx
	}
	return context.WithValue(ctx, NewRelicContextKey, app)
}

// ApplicationFromContext returns the application installed by WithApplication.
func ApplicationFromContext(ctx context.Context) (*newrelic.Application, bool) {
	nr, ok := ctx.Value(NewRelicContextKey).(*newrelic.Application)
	return nr, ok && nr != nil
}

// RecordCount records a count metric
func RecordCount(ctx context.Context, metricName string, count uint64) {
	if nr, ok := ApplicationFromContext(ctx); ok {
		nr.RecordCustomMetric(metricName, float64(count))
	}
}

// RecordDuration records a duration metric in milliseconds
func RecordDuration(ctx context.Context, metricName string, duration time.Duration) {
	if nr, ok := ApplicationFromContext(ctx); ok {
		nr.RecordCustomMetric(metricName, float64(duration/time.Millisecond))
	}
}

// RecordEvent records a custom event. Attributes must never carry amounts or
// account keys, and nil attributes are omitted.
func RecordEvent(ctx context.Context, eventName string, attributes map[string]interface{}) {
	nr, ok := ApplicationFromContext(ctx)
	if !ok {
		return
	}

	filtered := make(map[string]interface{}, len(attributes))
	for k, v := range attributes {
		if v != nil {
			filtered[k] = v
		}
	}
	nr.RecordCustomEvent(eventName, filtered)
}
