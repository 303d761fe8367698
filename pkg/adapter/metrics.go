package adapter

import (
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"

	"github.com/code-payments/tokadapt-server/pkg/metrics"
)

const (
	metricsStructName = "adapter.processor"

	exchangeEventName     = "TokadaptExchange"
	decommissionEventName = "TokadaptDecommission"
)

func recordExchangeEvent(ctx context.Context, state ed25519.PublicKey, amount uint64, delegated bool) {
	metrics.RecordEvent(ctx, exchangeEventName, map[string]interface{}{
		"state":     base58.Encode(state),
		"amount":    amount,
		"delegated": delegated,
	})
}

func recordDecommissionEvent(ctx context.Context, state ed25519.PublicKey, swept uint64) {
	metrics.RecordEvent(ctx, decommissionEventName, map[string]interface{}{
		"state": base58.Encode(state),
		"swept": swept,
	})
}
