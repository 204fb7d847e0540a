package sponsor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamtip/sponsord/internal/ledger"
	"github.com/streamtip/sponsord/internal/store/donationstore"
	"github.com/streamtip/sponsord/pkg/kvstore"
)

type serviceFixture struct {
	gw      *fakeGateway
	svc     *Service
	sponsor *Keypair
	records *donationstore.Store
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	gw := newFakeGateway()
	sponsor, err := GenerateKeypair()
	require.NoError(t, err)

	records := donationstore.New(kvstore.NewMemoryStore(kvstore.JSON))
	policy := Policy{
		MinDonation:          500_000_000,
		GasCoinType:          "0x2::sui::SUI",
		PlaceholderGasBudget: 50_000_000,
	}
	svc := NewService(
		gw,
		NewGasEstimator(gw, 1.2, 2_000_000),
		NewBuilder(gw, "0xpkg", sponsor.Address()),
		NewExecutor(gw, sponsor, 2*time.Second, nil),
		sponsor,
		records,
		policy,
		nil,
	)
	return &serviceFixture{gw: gw, svc: svc, sponsor: sponsor, records: records}
}

func (f *serviceFixture) fundPayer(addr string) {
	f.gw.setCoins(addr, "0x2::sui::SUI", coin("payer-coin", 1, "5000000000"))
}

func (f *serviceFixture) fundSponsor() {
	f.gw.setCoins(f.sponsor.Address(), "0x2::sui::SUI", coin("sponsor-gas", 1, "10000000000"))
}

func TestServicePrepare(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid intent rejected before any ledger call", func(t *testing.T) {
		f := newServiceFixture(t)
		intent := testIntent()
		intent.Payer = "no-prefix"

		_, err := f.svc.Prepare(ctx, intent)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Zero(t, f.gw.totalCalls())
	})

	t.Run("below minimum rejected before any ledger call", func(t *testing.T) {
		f := newServiceFixture(t)
		intent := testIntent()
		intent.AmountMinorUnits = 499_999_999

		_, err := f.svc.Prepare(ctx, intent)
		assert.ErrorIs(t, err, ErrBelowMinimum)
		assert.Zero(t, f.gw.totalCalls())
	})

	t.Run("happy path", func(t *testing.T) {
		f := newServiceFixture(t)
		f.fundPayer("0x1111")
		f.fundSponsor()

		prepared, err := f.svc.Prepare(ctx, testIntent())
		require.NoError(t, err)

		assert.Equal(t, TransactionDigest(prepared.TxBytes), prepared.Digest)
		assert.Equal(t, "corr-1", prepared.CorrelationRef)
		// Default dry run nets 1.3M, buffered to 1.56M; the floor wins.
		assert.Equal(t, uint64(2_000_000), prepared.GasBudget)

		signer, err := VerifyTransactionSignature(prepared.TxBytes, prepared.SponsorSignature)
		require.NoError(t, err)
		assert.Equal(t, f.sponsor.Address(), signer)

		rec, err := f.records.Get(prepared.Digest)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, donationstore.StatusSponsorSigned, rec.Status)
		assert.Equal(t, "corr-1", rec.CorrelationRef)
	})

	t.Run("correlation ref generated when absent", func(t *testing.T) {
		f := newServiceFixture(t)
		f.fundPayer("0x1111")
		f.fundSponsor()

		intent := testIntent()
		intent.CorrelationRef = ""
		prepared, err := f.svc.Prepare(ctx, intent)
		require.NoError(t, err)
		assert.NotEmpty(t, prepared.CorrelationRef)
	})

	t.Run("payer without funds", func(t *testing.T) {
		f := newServiceFixture(t)
		f.fundSponsor()

		_, err := f.svc.Prepare(ctx, testIntent())
		assert.ErrorIs(t, err, ErrNoCoinsFound)
	})

	t.Run("sponsor without gas coins", func(t *testing.T) {
		f := newServiceFixture(t)
		f.fundPayer("0x1111")

		_, err := f.svc.Prepare(ctx, testIntent())
		assert.ErrorIs(t, err, ErrNoCoinsFound)
	})

	t.Run("simulation failure propagated", func(t *testing.T) {
		f := newServiceFixture(t)
		f.fundPayer("0x1111")
		f.fundSponsor()
		f.gw.dryRun = &ledger.DryRunResult{
			Effects: ledger.Effects{Status: ledger.ExecutionStatus{Status: "failure", Error: "MovePrimitiveRuntimeError"}},
		}

		_, err := f.svc.Prepare(ctx, testIntent())
		assert.ErrorIs(t, err, ErrSimulationFailed)
	})
}

func TestServiceSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("full flow finalizes the record", func(t *testing.T) {
		f := newServiceFixture(t)
		payer, err := GenerateKeypair()
		require.NoError(t, err)
		f.fundPayer(payer.Address())
		f.fundSponsor()

		intent := testIntent()
		intent.Payer = payer.Address()

		prepared, err := f.svc.Prepare(ctx, intent)
		require.NoError(t, err)

		payerSig := payer.SignTransaction(prepared.TxBytes)
		res, err := f.svc.Submit(ctx, prepared.TxBytes, prepared.SponsorSignature, payerSig)
		require.NoError(t, err)
		assert.Equal(t, prepared.Digest, res.Digest)

		rec, err := f.records.Get(prepared.Digest)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, donationstore.StatusFinalized, rec.Status)
	})

	t.Run("execution failure marks the record rejected", func(t *testing.T) {
		f := newServiceFixture(t)
		payer, err := GenerateKeypair()
		require.NoError(t, err)
		f.fundPayer(payer.Address())
		f.fundSponsor()

		intent := testIntent()
		intent.Payer = payer.Address()
		prepared, err := f.svc.Prepare(ctx, intent)
		require.NoError(t, err)

		f.gw.execFn = func(txBytes []byte, _ []string) (*ledger.ExecuteResult, error) {
			return &ledger.ExecuteResult{
				Digest:  TransactionDigest(txBytes),
				Effects: &ledger.Effects{Status: ledger.ExecutionStatus{Status: "failure", Error: "MoveAbort"}},
			}, nil
		}

		payerSig := payer.SignTransaction(prepared.TxBytes)
		_, err = f.svc.Submit(ctx, prepared.TxBytes, prepared.SponsorSignature, payerSig)
		assert.ErrorIs(t, err, ErrExecutionFailed)

		rec, err := f.records.Get(prepared.Digest)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, donationstore.StatusRejected, rec.Status)
	})
}

func TestServicePrepareAndSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("custodial key must match payer", func(t *testing.T) {
		f := newServiceFixture(t)
		other, err := GenerateKeypair()
		require.NoError(t, err)

		_, err = f.svc.PrepareAndSubmit(ctx, testIntent(), other)
		assert.Error(t, err)
		assert.Zero(t, f.gw.totalCalls())
	})

	t.Run("custodial flow", func(t *testing.T) {
		f := newServiceFixture(t)
		payer, err := GenerateKeypair()
		require.NoError(t, err)
		f.fundPayer(payer.Address())
		f.fundSponsor()

		intent := testIntent()
		intent.Payer = payer.Address()

		res, err := f.svc.PrepareAndSubmit(ctx, intent, payer)
		require.NoError(t, err)
		assert.Equal(t, "success", res.Status)
	})
}

func TestServiceResolveSubmitted(t *testing.T) {
	ctx := context.Background()

	t.Run("finalizes records found on-chain", func(t *testing.T) {
		f := newServiceFixture(t)
		require.NoError(t, f.records.Save(&donationstore.Record{Digest: "d1", Status: donationstore.StatusSubmitted}))
		require.NoError(t, f.records.Save(&donationstore.Record{Digest: "d2", Status: donationstore.StatusSubmitted}))
		require.NoError(t, f.records.Save(&donationstore.Record{Digest: "d3", Status: donationstore.StatusSubmitted}))

		f.gw.txns["d1"] = &ledger.ExecuteResult{
			Digest:  "d1",
			Effects: &ledger.Effects{Status: ledger.ExecutionStatus{Status: "success"}},
		}
		f.gw.txns["d2"] = &ledger.ExecuteResult{
			Digest:  "d2",
			Effects: &ledger.Effects{Status: ledger.ExecutionStatus{Status: "failure", Error: "MoveAbort"}},
		}

		require.NoError(t, f.svc.ResolveSubmitted(ctx))

		r1, _ := f.records.Get("d1")
		assert.Equal(t, donationstore.StatusFinalized, r1.Status)
		r2, _ := f.records.Get("d2")
		assert.Equal(t, donationstore.StatusRejected, r2.Status)
		r3, _ := f.records.Get("d3")
		assert.Equal(t, donationstore.StatusSubmitted, r3.Status, "unknown digests stay pending")
	})
}
