package sponsor

import (
	"context"
	"fmt"

	"github.com/streamtip/sponsord/internal/ledger"
)

// GasEstimator derives a safe fee budget via simulate-then-scale. The buffer
// exists precisely so a second simulation after the real budget is substituted
// is unnecessary.
type GasEstimator struct {
	gateway   ledger.Gateway
	buffer    float64
	minBudget uint64
}

func NewGasEstimator(gw ledger.Gateway, buffer float64, minBudget uint64) *GasEstimator {
	if buffer < 1.0 {
		buffer = 1.0
	}
	return &GasEstimator{
		gateway:   gw,
		buffer:    buffer,
		minBudget: minBudget,
	}
}

// EstimateBudget dry-runs the serialized transaction (built with a placeholder
// budget), scales the net cost by the buffer, and floors the result. A
// non-success simulation is surfaced verbatim: it usually means the built
// operation itself is wrong, so automatic retries would only repeat the error.
func (g *GasEstimator) EstimateBudget(ctx context.Context, txBytes []byte) (uint64, error) {
	result, err := g.gateway.DryRunTransaction(ctx, txBytes)
	if err != nil {
		return 0, fmt.Errorf("estimate budget: %w", err)
	}
	if !result.Effects.Status.Success() {
		return 0, fmt.Errorf("%w: %s", ErrSimulationFailed, result.Effects.Status.Error)
	}

	net := result.Effects.GasUsed.NetCost()
	scaled := uint64(float64(net) * g.buffer)
	if scaled < g.minBudget {
		return g.minBudget, nil
	}
	return scaled, nil
}
