package executor

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/tokadapt-server/pkg/metrics"
	"github.com/code-payments/tokadapt-server/pkg/solana"
)

const (
	metricsStructName = "executor"

	rejectionEventName         = "TokadaptTransactionRejected"
	commitDurationMetricName   = "Tokadapt/Executor/CommitDuration"
	committedInstructionMetric = "Tokadapt/Executor/CommittedInstructions"
)

func recordRejectionEvent(ctx context.Context, key solana.TransactionErrorKey, simulated bool) {
	metrics.RecordEvent(ctx, rejectionEventName, map[string]interface{}{
		"error":     string(key),
		"simulated": simulated,
	})
}

func recordCommit(ctx context.Context, instructions int, duration time.Duration) {
	metrics.RecordCount(ctx, committedInstructionMetric, uint64(instructions))
	metrics.RecordDuration(ctx, commitDurationMetricName, duration)
}

func observeFailure(tracer *metrics.MethodTracer, err error) {
	var txErr *solana.TransactionError
	if errors.As(err, &txErr) {
		tracer.OnRejection(string(txErr.ErrorKey()))
		return
	}
	tracer.OnError(err)
}
