package sponsor

import (
	"context"
	"fmt"
	"sort"

	"github.com/streamtip/sponsord/internal/ledger"
)

// Selection is the outcome of coin selection for one spend. When MergeSources
// is non-empty the merge is expressed as an operation prepended to the same
// transaction, never as a separate submission, so selection and spend stay
// atomic.
type Selection struct {
	Primary      ledger.Coin
	MergeSources []ledger.Coin
	Total        uint64
}

// SelectCoin picks one spendable coin of coinType owned by owner with balance
// >= required. If no single coin suffices but the combined balance does, the
// largest coins are merged into the primary until the requirement is met.
func SelectCoin(ctx context.Context, gw ledger.Gateway, owner, coinType string, required uint64) (*Selection, error) {
	coins, err := gw.GetCoins(ctx, owner, coinType)
	if err != nil {
		return nil, fmt.Errorf("select coin: %w", err)
	}
	if len(coins) == 0 {
		return nil, fmt.Errorf("%w: owner %s holds no %s", ErrNoCoinsFound, owner, coinType)
	}

	// Largest first, so a merge touches as few coins as possible.
	sort.Slice(coins, func(i, j int) bool {
		return coins[i].BalanceUint() > coins[j].BalanceUint()
	})

	if coins[0].BalanceUint() >= required {
		return &Selection{Primary: coins[0], Total: coins[0].BalanceUint()}, nil
	}

	sel := &Selection{Primary: coins[0], Total: coins[0].BalanceUint()}
	for _, c := range coins[1:] {
		sel.MergeSources = append(sel.MergeSources, c)
		sel.Total += c.BalanceUint()
		if sel.Total >= required {
			return sel, nil
		}
	}

	return nil, fmt.Errorf("%w: owner %s has %d of %s, need %d",
		ErrInsufficientBalance, owner, sel.Total, coinType, required)
}
