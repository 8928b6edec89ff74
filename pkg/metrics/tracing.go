package metrics

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// MethodTracer observes a single method call. It adds a segment to the
// transaction in the context, if any, and reports the call's latency and
// failures as custom metrics to the application in the context, if any.
//
// A nil *MethodTracer is valid and does nothing.
type MethodTracer struct {
	name  string
	start time.Time

	txn *newrelic.Transaction
	seg *newrelic.Segment
	app *newrelic.Application

	failed bool
}

// TraceMethodCall starts tracing structOrPackageName.methodName. It returns
// nil when ctx carries neither a transaction nor an application.
func TraceMethodCall(ctx context.Context, structOrPackageName, methodName string) *MethodTracer {
	txn := newrelic.FromContext(ctx)
	app, _ := ApplicationFromContext(ctx)
	if txn == nil && app == nil {
		return nil
	}

	t := &MethodTracer{
		name:  structOrPackageName + "/" + methodName,
		start: time.Now(),
		txn:   txn,
		app:   app,
	}
	if txn != nil {
		t.seg = txn.StartSegment(structOrPackageName + " " + methodName)
	}
	return t
}

// AddAttribute attaches metadata to the method's segment.
func (t *MethodTracer) AddAttribute(key string, value interface{}) {
	if t == nil || t.seg == nil {
		return
	}
	t.seg.AddAttribute(key, value)
}

// OnError marks the call as failed. A nil err is ignored.
func (t *MethodTracer) OnError(err error) {
	if t == nil || err == nil {
		return
	}

	t.failed = true
	if t.txn != nil {
		t.txn.NoticeError(err)
	}
}

// End completes the trace.
func (t *MethodTracer) End() {
	if t == nil {
		return
	}

	if t.seg != nil {
		t.seg.End()
	}

	if t.app != nil {
		t.app.RecordCustomMetric("Method/"+t.name+"/duration_ms", float64(time.Since(t.start)/time.Millisecond))
		if t.failed {
			t.app.RecordCustomMetric("Method/"+t.name+"/errors", 1)
		}
	}
}
