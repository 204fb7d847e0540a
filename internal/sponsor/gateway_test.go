package sponsor

import (
	"context"
	"sync"

	"github.com/streamtip/sponsord/internal/ledger"
)

// fakeGateway scripts ledger responses for pipeline tests.
type fakeGateway struct {
	mu    sync.Mutex
	calls map[string]int

	coins     map[string][]ledger.Coin // owner|coinType
	coinsErr  error
	gasPrice  uint64
	dryRun    *ledger.DryRunResult
	dryRunErr error

	execFn func(txBytes []byte, signatures []string) (*ledger.ExecuteResult, error)
	txns   map[string]*ledger.ExecuteResult
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		calls:    map[string]int{},
		coins:    map[string][]ledger.Coin{},
		gasPrice: 1000,
		txns:     map[string]*ledger.ExecuteResult{},
	}
}

func (f *fakeGateway) record(method string) {
	f.mu.Lock()
	f.calls[method]++
	f.mu.Unlock()
}

func (f *fakeGateway) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *fakeGateway) setCoins(owner, coinType string, coins ...ledger.Coin) {
	f.coins[owner+"|"+coinType] = coins
}

func (f *fakeGateway) GetCoins(ctx context.Context, owner, coinType string) ([]ledger.Coin, error) {
	f.record("GetCoins")
	if f.coinsErr != nil {
		return nil, f.coinsErr
	}
	return f.coins[owner+"|"+coinType], nil
}

func (f *fakeGateway) GetReferenceGasPrice(ctx context.Context) (uint64, error) {
	f.record("GetReferenceGasPrice")
	return f.gasPrice, nil
}

func (f *fakeGateway) DryRunTransaction(ctx context.Context, txBytes []byte) (*ledger.DryRunResult, error) {
	f.record("DryRunTransaction")
	if f.dryRunErr != nil {
		return nil, f.dryRunErr
	}
	if f.dryRun != nil {
		return f.dryRun, nil
	}
	return &ledger.DryRunResult{
		Effects: ledger.Effects{
			Status:  ledger.ExecutionStatus{Status: "success"},
			GasUsed: ledger.GasUsed{ComputationCost: "1000000", StorageCost: "500000", StorageRebate: "200000"},
		},
	}, nil
}

func (f *fakeGateway) ExecuteTransaction(ctx context.Context, txBytes []byte, signatures []string) (*ledger.ExecuteResult, error) {
	f.record("ExecuteTransaction")
	if f.execFn != nil {
		return f.execFn(txBytes, signatures)
	}
	return &ledger.ExecuteResult{
		Digest:  TransactionDigest(txBytes),
		Effects: &ledger.Effects{Status: ledger.ExecutionStatus{Status: "success"}},
	}, nil
}

func (f *fakeGateway) QueryEvents(ctx context.Context, eventType string, limit int, descending bool) (*ledger.EventPage, error) {
	f.record("QueryEvents")
	return &ledger.EventPage{}, nil
}

func (f *fakeGateway) GetTransaction(ctx context.Context, digest string) (*ledger.ExecuteResult, error) {
	f.record("GetTransaction")
	if res, ok := f.txns[digest]; ok {
		return res, nil
	}
	return nil, &ledger.RPCError{Code: -32602, Message: "transaction not found"}
}

func (f *fakeGateway) BatchGetTransactions(ctx context.Context, digests []string) (map[string]*ledger.ExecuteResult, error) {
	f.record("BatchGetTransactions")
	results := make(map[string]*ledger.ExecuteResult)
	for _, d := range digests {
		if res, ok := f.txns[d]; ok {
			results[d] = res
		}
	}
	return results, nil
}

func (f *fakeGateway) Close() error { return nil }

func coin(id string, version uint64, balance string) ledger.Coin {
	return ledger.Coin{
		CoinType:     "0x2::sui::SUI",
		CoinObjectID: id,
		Version:      itoa(version),
		Digest:       "digest-" + id,
		Balance:      balance,
	}
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var b [20]byte
	i := len(b)
	for v > 0 {
		i--
		b[i] = byte('0' + v%10)
		v /= 10
	}
	return string(b[i:])
}
