package metrics

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
)

const rejectionAttributeKey = "rejection"

// TraceMethodCall starts a segment named "<struct or package>.<method>" in the
// transaction carried by ctx. Without a transaction the returned tracer is nil,
// and every MethodTracer method is a no-op on nil.
func TraceMethodCall(ctx context.Context, structOrPackageName, methodName string) *MethodTracer {
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return nil
	}

	return &MethodTracer{
		txn: txn,
		seg: txn.StartSegment(structOrPackageName + "." + methodName),
	}
}

// MethodTracer collects analytics for a method call within an existing trace
type MethodTracer struct {
	txn *newrelic.Transaction
	seg *newrelic.Segment
}

func (t *MethodTracer) AddAttribute(key string, value interface{}) {
	if t == nil {
		return
	}
	t.seg.AddAttribute(key, value)
}

func (t *MethodTracer) AddAttributes(attributes map[string]interface{}) {
	for key, value := range attributes {
		t.AddAttribute(key, value)
	}
}

// OnError reports an unexpected failure of the traced method
func (t *MethodTracer) OnError(err error) {
	if t == nil || err == nil {
		return
	}
	t.txn.NoticeError(err)
}

// OnRejection annotates the trace with why a request was refused, without
// reporting it as an error.
func (t *MethodTracer) OnRejection(reason string) {
	t.AddAttribute(rejectionAttributeKey, reason)
}

func (t *MethodTracer) End() {
	if t == nil {
		return
	}
	t.seg.End()
}
