package ledger

import "context"

// Gateway is the ledger boundary consumed by the sponsorship and event packages.
// The remote node is a trusted external service; only its contract is modeled.
type Gateway interface {
	// GetCoins enumerates all coins of coinType owned by owner, following pages.
	GetCoins(ctx context.Context, owner, coinType string) ([]Coin, error)

	// GetReferenceGasPrice returns the current epoch's reference gas price.
	GetReferenceGasPrice(ctx context.Context) (uint64, error)

	// DryRunTransaction simulates serialized transaction bytes without committing.
	DryRunTransaction(ctx context.Context, txBytes []byte) (*DryRunResult, error)

	// ExecuteTransaction submits serialized bytes with the given signature
	// envelopes and waits for execution effects.
	ExecuteTransaction(ctx context.Context, txBytes []byte, signatures []string) (*ExecuteResult, error)

	// QueryEvents returns events of eventType, newest-first when descending.
	QueryEvents(ctx context.Context, eventType string, limit int, descending bool) (*EventPage, error)

	// GetTransaction fetches a finalized transaction by digest. Used to resolve
	// unknown submission outcomes before any retry.
	GetTransaction(ctx context.Context, digest string) (*ExecuteResult, error)

	// BatchGetTransactions resolves many digests concurrently. Digests the
	// ledger does not know are absent from the result.
	BatchGetTransactions(ctx context.Context, digests []string) (map[string]*ExecuteResult, error)

	Close() error
}
