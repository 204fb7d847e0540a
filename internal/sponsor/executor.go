package sponsor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/streamtip/sponsord/internal/ledger"
	"github.com/streamtip/sponsord/pkg/retry"
)

// SubmitResult reports a finalized submission.
type SubmitResult struct {
	Digest string
	Status string
}

// Executor owns the two signing phases of a sponsored transaction. The sponsor
// signs first, server-side; the payer signs out-of-band on the caller's side;
// Submit combines both and executes. There is no payer-signed state tracked
// here.
type Executor struct {
	gateway     ledger.Gateway
	sponsor     *Keypair
	retryWindow time.Duration
	log         *slog.Logger
}

func NewExecutor(gw ledger.Gateway, sponsorKey *Keypair, retryWindow time.Duration, log *slog.Logger) *Executor {
	if retryWindow <= 0 {
		retryWindow = 15 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		gateway:     gw,
		sponsor:     sponsorKey,
		retryWindow: retryWindow,
		log:         log,
	}
}

// SignAsSponsor produces the sponsor's detached signature over the exact built
// bytes. It only accepts transactions produced by this process's Builder, so
// the sponsor never pays for a transaction whose shape it did not control.
func (e *Executor) SignAsSponsor(tx *BuiltTransaction) string {
	return e.sponsor.SignTransaction(tx.raw)
}

// Submit combines both signatures and executes. Transport faults are retried
// with the same bytes inside a bounded window, but never blindly: each retry is
// preceded by a digest lookup, since a timed-out submission may already have
// finalized. Stale-reference rejections and execution failures are terminal.
func (e *Executor) Submit(ctx context.Context, txBytes []byte, sponsorSig, payerSig string) (*SubmitResult, error) {
	if sponsorSig == "" {
		return nil, fmt.Errorf("%w: missing sponsor signature", ErrSubmission)
	}
	if payerSig == "" {
		return nil, fmt.Errorf("%w: missing payer signature", ErrSubmission)
	}

	digest := TransactionDigest(txBytes)
	signatures := []string{payerSig, sponsorSig}

	var result *ledger.ExecuteResult
	op := func() error {
		res, err := e.gateway.ExecuteTransaction(ctx, txBytes, signatures)
		if err == nil {
			result = res
			return nil
		}

		if ledger.IsStaleReference(err) {
			// The pinned coin was consumed by a concurrent transaction. The
			// same bytes can never succeed; the caller must rebuild.
			return retry.Permanent(fmt.Errorf("stale object reference: %v: %w", err, ErrSubmission))
		}

		if errors.Is(err, ledger.ErrTransport) {
			// Outcome unknown: the transaction may have finalized. Resolve by
			// digest before allowing another attempt.
			if res, lookupErr := e.gateway.GetTransaction(ctx, digest); lookupErr == nil && res != nil && res.Digest != "" {
				result = res
				return nil
			}
			return fmt.Errorf("%v: %w", err, ErrSubmission)
		}

		return retry.Permanent(fmt.Errorf("%v: %w", err, ErrSubmission))
	}

	err := retry.Exponential(op, retry.ExponentialConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxElapsedTime:  e.retryWindow,
		OnRetry: func(err error, next time.Duration) {
			e.log.Warn("submission fault, retrying", "digest", digest, "next", next, "error", err)
		},
	})
	if err != nil {
		return nil, err
	}

	if result.Effects != nil && !result.Effects.Status.Success() {
		return nil, fmt.Errorf("%w: %s", ErrExecutionFailed, result.Effects.Status.Error)
	}

	status := "success"
	if result.Effects == nil {
		status = "submitted"
	}
	return &SubmitResult{Digest: result.Digest, Status: status}, nil
}
