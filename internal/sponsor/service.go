package sponsor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/streamtip/sponsord/internal/ledger"
	"github.com/streamtip/sponsord/internal/store/donationstore"
)

// Policy is deployment configuration, not protocol: the donation floor, the
// fee asset, and the placeholder budget used for dry runs.
type Policy struct {
	MinDonation          uint64
	GasCoinType          string
	PlaceholderGasBudget uint64
}

// PreparedDonation is what the caller needs to finish the flow: the exact
// bytes to sign and the sponsor's half of the signature pair.
type PreparedDonation struct {
	TxBytes          []byte
	SponsorSignature string
	Digest           string
	GasBudget        uint64
	CorrelationRef   string
}

// Service drives the sponsorship pipeline: validate, select, estimate, build,
// sponsor-sign. Requests are handled independently and concurrently; the one
// shared resource is the sponsor's gas coin, pinned by exact version, so two
// in-flight requests may race and exactly one submission wins.
type Service struct {
	gateway   ledger.Gateway
	estimator *GasEstimator
	builder   *Builder
	executor  *Executor
	sponsor   *Keypair
	records   *donationstore.Store
	policy    Policy
	log       *slog.Logger
}

func NewService(
	gw ledger.Gateway,
	estimator *GasEstimator,
	builder *Builder,
	executor *Executor,
	sponsorKey *Keypair,
	records *donationstore.Store,
	policy Policy,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		gateway:   gw,
		estimator: estimator,
		builder:   builder,
		executor:  executor,
		sponsor:   sponsorKey,
		records:   records,
		policy:    policy,
		log:       log,
	}
}

// Prepare validates the intent, selects coins, estimates gas, builds the
// final transaction, and signs it as sponsor. The amount floor is enforced
// here, before any ledger call; the caller's own checks are never trusted.
func (s *Service) Prepare(ctx context.Context, intent TransferIntent) (*PreparedDonation, error) {
	if err := intent.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if intent.AmountMinorUnits < s.policy.MinDonation {
		return nil, fmt.Errorf("%w: got %d, minimum %d",
			ErrBelowMinimum, intent.AmountMinorUnits, s.policy.MinDonation)
	}
	if intent.CorrelationRef == "" {
		intent.CorrelationRef = uuid.NewString()
	}

	sel, err := SelectCoin(ctx, s.gateway, intent.Payer, intent.AssetType, intent.AmountMinorUnits)
	if err != nil {
		return nil, err
	}

	gasCoin, err := s.selectGasCoin(ctx)
	if err != nil {
		return nil, err
	}

	// Build once with a placeholder budget for the dry run, then rebuild with
	// the real budget. The budget is part of the signed bytes, so the rebuild
	// is mandatory; the estimator's buffer makes a second simulation
	// unnecessary.
	draft, err := s.builder.Build(ctx, intent, sel, gasCoin, s.policy.PlaceholderGasBudget)
	if err != nil {
		return nil, err
	}
	budget, err := s.estimator.EstimateBudget(ctx, draft.Bytes())
	if err != nil {
		return nil, err
	}
	final, err := s.builder.Build(ctx, intent, sel, gasCoin, budget)
	if err != nil {
		return nil, err
	}

	sponsorSig := s.executor.SignAsSponsor(final)

	record := &donationstore.Record{
		Digest:           final.Digest(),
		CorrelationRef:   intent.CorrelationRef,
		Payer:            intent.Payer,
		Beneficiary:      intent.Beneficiary,
		AmountMinorUnits: intent.AmountMinorUnits,
		GasBudget:        budget,
		Status:           donationstore.StatusSponsorSigned,
	}
	if err := s.records.Save(record); err != nil {
		// Bookkeeping only; the request itself is still sound.
		s.log.Warn("failed to save donation record", "digest", final.Digest(), "error", err)
	}

	s.log.Info("sponsored donation prepared",
		"digest", final.Digest(),
		"payer", intent.Payer,
		"beneficiary", intent.Beneficiary,
		"amount", intent.AmountMinorUnits,
		"gas_budget", budget,
		"merged_coins", len(sel.MergeSources),
	)

	return &PreparedDonation{
		TxBytes:          final.Bytes(),
		SponsorSignature: sponsorSig,
		Digest:           final.Digest(),
		GasBudget:        budget,
		CorrelationRef:   intent.CorrelationRef,
	}, nil
}

// selectGasCoin pins the sponsor's first gas coin by exact reference. Known
// limitation: concurrent requests pin the same coin and only one submission
// succeeds on-chain; the loser gets a stale-reference rejection. Survivable
// (no funds move) and detectable, so it is not serialized with a lock.
func (s *Service) selectGasCoin(ctx context.Context) (ledger.ObjectRef, error) {
	coins, err := s.gateway.GetCoins(ctx, s.sponsor.Address(), s.policy.GasCoinType)
	if err != nil {
		return ledger.ObjectRef{}, fmt.Errorf("select gas coin: %w", err)
	}
	if len(coins) == 0 {
		return ledger.ObjectRef{}, fmt.Errorf("sponsor %s holds no gas coins: %w",
			s.sponsor.Address(), ErrNoCoinsFound)
	}
	return coins[0].Ref(), nil
}

// Submit combines the payer's signature with the sponsor's and executes.
// Record updates after a successful on-chain step must never fail silently:
// a failed write is logged for manual reconciliation, and no compensating
// on-chain action is ever taken.
func (s *Service) Submit(ctx context.Context, txBytes []byte, sponsorSig, payerSig string) (*SubmitResult, error) {
	digest := TransactionDigest(txBytes)

	result, err := s.executor.Submit(ctx, txBytes, sponsorSig, payerSig)
	if err != nil {
		status := donationstore.StatusSubmitted
		if IsFatal(err) {
			status = donationstore.StatusRejected
		}
		if updateErr := s.records.UpdateStatus(digest, status); updateErr != nil {
			s.log.Warn("failed to update donation record", "digest", digest, "error", updateErr)
		}
		return nil, err
	}

	if updateErr := s.records.UpdateStatus(result.Digest, donationstore.StatusFinalized); updateErr != nil {
		s.log.Error("donation finalized on-chain but record update failed, manual reconciliation required",
			"digest", result.Digest, "error", updateErr)
	}

	s.log.Info("sponsored donation finalized", "digest", result.Digest, "status", result.Status)
	return result, nil
}

// PrepareAndSubmit is the server-driven variant for custodial payer keys:
// both signing phases happen in-process.
func (s *Service) PrepareAndSubmit(ctx context.Context, intent TransferIntent, payer *Keypair) (*SubmitResult, error) {
	if payer == nil {
		return nil, fmt.Errorf("custodial payer key is required")
	}
	if payer.Address() != intent.Payer {
		return nil, fmt.Errorf("custodial key address %s does not match intent payer %s",
			payer.Address(), intent.Payer)
	}

	prepared, err := s.Prepare(ctx, intent)
	if err != nil {
		return nil, err
	}
	payerSig := payer.SignTransaction(prepared.TxBytes)
	return s.Submit(ctx, prepared.TxBytes, prepared.SponsorSignature, payerSig)
}

// ResolveSubmitted re-checks records stuck in the submitted state against the
// ledger, for operators reconciling after crashes or timeouts.
func (s *Service) ResolveSubmitted(ctx context.Context) error {
	records, err := s.records.ListByStatus(donationstore.StatusSubmitted)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	digests := make([]string, 0, len(records))
	for _, r := range records {
		digests = append(digests, r.Digest)
	}

	results, err := s.gateway.BatchGetTransactions(ctx, digests)
	if err != nil {
		return fmt.Errorf("resolve submitted records: %w", err)
	}

	for _, r := range records {
		res, ok := results[r.Digest]
		if !ok {
			continue // not on-chain; leave for the next pass
		}
		status := donationstore.StatusFinalized
		if res.Effects != nil && !res.Effects.Status.Success() {
			status = donationstore.StatusRejected
		}
		if err := s.records.UpdateStatus(r.Digest, status); err != nil {
			s.log.Warn("failed to resolve donation record", "digest", r.Digest, "error", err)
		}
	}
	return nil
}

// IsFatal reports whether the ledger finalized a failure for these exact
// bytes, meaning a retry can never succeed without a rebuild.
func IsFatal(err error) bool {
	return errors.Is(err, ErrExecutionFailed)
}
