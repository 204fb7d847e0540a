package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamtip/sponsord/internal/ledger"
)

// queryGateway scripts QueryEvents responses; the rest of the Gateway surface
// is unused by the poller.
type queryGateway struct {
	page *ledger.EventPage
	err  error
}

func (g *queryGateway) QueryEvents(ctx context.Context, eventType string, limit int, descending bool) (*ledger.EventPage, error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.page != nil {
		return g.page, nil
	}
	return &ledger.EventPage{}, nil
}

func (g *queryGateway) GetCoins(context.Context, string, string) ([]ledger.Coin, error) {
	return nil, nil
}
func (g *queryGateway) GetReferenceGasPrice(context.Context) (uint64, error) { return 0, nil }
func (g *queryGateway) DryRunTransaction(context.Context, []byte) (*ledger.DryRunResult, error) {
	return nil, nil
}
func (g *queryGateway) ExecuteTransaction(context.Context, []byte, []string) (*ledger.ExecuteResult, error) {
	return nil, nil
}
func (g *queryGateway) GetTransaction(context.Context, string) (*ledger.ExecuteResult, error) {
	return nil, nil
}
func (g *queryGateway) BatchGetTransactions(context.Context, []string) (map[string]*ledger.ExecuteResult, error) {
	return nil, nil
}
func (g *queryGateway) Close() error { return nil }

func donationEvent(digest string, seq, ts uint64, beneficiary string) ledger.Event {
	payload, _ := json.Marshal(onChainDonation{
		Donor:            "0xdonor",
		Beneficiary:      beneficiary,
		AmountMinorUnits: "1000000000",
		CorrelationRef:   "corr-" + digest,
	})
	return ledger.Event{
		ID:          ledger.EventID{TxDigest: digest, EventSeq: strconv.FormatUint(seq, 10)},
		ParsedJSON:  payload,
		TimestampMs: strconv.FormatUint(ts, 10),
	}
}

func drain(out chan TransferEvent) []TransferEvent {
	var got []TransferEvent
	for {
		select {
		case ev := <-out:
			got = append(got, ev)
		default:
			return got
		}
	}
}

func TestPoller(t *testing.T) {
	ctx := context.Background()
	const eventType = "0xpkg::donation::DonationReceived"

	newPoller := func(gw *queryGateway, out chan TransferEvent, beneficiaries ...string) *Poller {
		return NewPoller(gw, eventType, time.Second, 20, beneficiaries, out, nil)
	}

	t.Run("initial poll positions cursor silently", func(t *testing.T) {
		gw := &queryGateway{page: &ledger.EventPage{Data: []ledger.Event{
			donationEvent("tx2", 0, 2000, "0xbene"),
			donationEvent("tx1", 0, 1000, "0xbene"),
		}}}
		out := make(chan TransferEvent, 16)
		p := newPoller(gw, out)

		require.NoError(t, p.pollOnce(ctx))
		assert.Empty(t, drain(out), "history must not be replayed on startup")

		cur := p.Cursor()
		require.NotNil(t, cur)
		assert.Equal(t, "tx2", cur.TxDigest)
		assert.Equal(t, uint64(2000), cur.TimestampMs)
	})

	t.Run("emits only events above the cursor", func(t *testing.T) {
		gw := &queryGateway{page: &ledger.EventPage{Data: []ledger.Event{
			donationEvent("tx1", 0, 1000, "0xbene"),
		}}}
		out := make(chan TransferEvent, 16)
		p := newPoller(gw, out)
		require.NoError(t, p.pollOnce(ctx)) // init

		gw.page = &ledger.EventPage{Data: []ledger.Event{
			donationEvent("tx3", 0, 3000, "0xbene"),
			donationEvent("tx2", 0, 2000, "0xbene"),
			donationEvent("tx1", 0, 1000, "0xbene"),
		}}
		require.NoError(t, p.pollOnce(ctx))

		got := drain(out)
		require.Len(t, got, 2)
		assert.Equal(t, "tx3", got[0].LedgerTxID)
		assert.Equal(t, "tx2", got[1].LedgerTxID)
		assert.Equal(t, SourcePoll, got[0].Source)
		assert.Equal(t, uint64(1_000_000_000), got[0].AmountMinorUnits)

		cur := p.Cursor()
		require.NotNil(t, cur)
		assert.Equal(t, "tx3", cur.TxDigest)
	})

	t.Run("no new events leaves cursor unchanged", func(t *testing.T) {
		page := &ledger.EventPage{Data: []ledger.Event{donationEvent("tx1", 0, 1000, "0xbene")}}
		gw := &queryGateway{page: page}
		out := make(chan TransferEvent, 16)
		p := newPoller(gw, out)
		require.NoError(t, p.pollOnce(ctx))

		require.NoError(t, p.pollOnce(ctx))
		assert.Empty(t, drain(out))
		assert.Equal(t, "tx1", p.Cursor().TxDigest)
	})

	t.Run("poll failure never touches the cursor", func(t *testing.T) {
		gw := &queryGateway{page: &ledger.EventPage{Data: []ledger.Event{donationEvent("tx1", 0, 1000, "0xbene")}}}
		out := make(chan TransferEvent, 16)
		p := newPoller(gw, out)
		require.NoError(t, p.pollOnce(ctx))
		before := p.Cursor()

		gw.err = errors.New("node unavailable")
		assert.Error(t, p.pollOnce(ctx))
		assert.Equal(t, before, p.Cursor())

		// Recovery picks up where it left off.
		gw.err = nil
		gw.page = &ledger.EventPage{Data: []ledger.Event{
			donationEvent("tx2", 0, 2000, "0xbene"),
			donationEvent("tx1", 0, 1000, "0xbene"),
		}}
		require.NoError(t, p.pollOnce(ctx))
		got := drain(out)
		require.Len(t, got, 1)
		assert.Equal(t, "tx2", got[0].LedgerTxID)
	})

	t.Run("beneficiary filter", func(t *testing.T) {
		gw := &queryGateway{page: &ledger.EventPage{}}
		out := make(chan TransferEvent, 16)
		p := newPoller(gw, out, "0xwanted")
		require.NoError(t, p.pollOnce(ctx)) // init on empty page

		gw.page = &ledger.EventPage{Data: []ledger.Event{
			donationEvent("tx2", 0, 2000, "0xother"),
			donationEvent("tx1", 0, 1000, "0xwanted"),
		}}
		require.NoError(t, p.pollOnce(ctx))

		got := drain(out)
		require.Len(t, got, 1)
		assert.Equal(t, "0xwanted", got[0].Beneficiary)
	})

	t.Run("malformed payload is skipped, not fatal", func(t *testing.T) {
		gw := &queryGateway{page: &ledger.EventPage{}}
		out := make(chan TransferEvent, 16)
		p := newPoller(gw, out)
		require.NoError(t, p.pollOnce(ctx))

		broken := ledger.Event{
			ID:          ledger.EventID{TxDigest: "txbad", EventSeq: "0"},
			ParsedJSON:  json.RawMessage(`{not json`),
			TimestampMs: "3000",
		}
		gw.page = &ledger.EventPage{Data: []ledger.Event{
			broken,
			donationEvent("tx1", 0, 2000, "0xbene"),
		}}
		require.NoError(t, p.pollOnce(ctx))

		got := drain(out)
		require.Len(t, got, 1)
		assert.Equal(t, "tx1", got[0].LedgerTxID)
		assert.Equal(t, "txbad", p.Cursor().TxDigest, "cursor still advances past the bad event")
	})

	t.Run("same-timestamp event is not re-emitted when cursor falls off the page", func(t *testing.T) {
		gw := &queryGateway{page: &ledger.EventPage{Data: []ledger.Event{
			donationEvent("tx2", 0, 2000, "0xbene"),
			donationEvent("tx1", 0, 2000, "0xbene"),
		}}}
		out := make(chan TransferEvent, 16)
		p := newPoller(gw, out)
		require.NoError(t, p.pollOnce(ctx)) // cursor at tx2, ts 2000

		// tx2 has scrolled out of the window; tx1 shares its timestamp and
		// was already at or before the cursor.
		gw.page = &ledger.EventPage{Data: []ledger.Event{
			donationEvent("tx3", 0, 3000, "0xbene"),
			donationEvent("tx1", 0, 2000, "0xbene"),
		}}
		require.NoError(t, p.pollOnce(ctx))

		got := drain(out)
		require.Len(t, got, 1)
		assert.Equal(t, "tx3", got[0].LedgerTxID)
	})

	t.Run("cursor advances monotonically across polls", func(t *testing.T) {
		gw := &queryGateway{page: &ledger.EventPage{}}
		out := make(chan TransferEvent, 64)
		p := newPoller(gw, out)
		require.NoError(t, p.pollOnce(ctx))

		for i := 1; i <= 5; i++ {
			gw.page = &ledger.EventPage{Data: []ledger.Event{
				donationEvent(fmt.Sprintf("tx%d", i), 0, uint64(i*1000), "0xbene"),
			}}
			require.NoError(t, p.pollOnce(ctx))
			assert.Equal(t, uint64(i*1000), p.Cursor().TimestampMs)
		}
		assert.Len(t, drain(out), 5)
	})
}
