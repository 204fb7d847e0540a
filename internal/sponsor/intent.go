package sponsor

import (
	"errors"
	"fmt"
	"strings"
)

// TransferIntent is the caller-supplied description of a donation. Immutable
// once created; CorrelationRef is embedded in the on-chain call so off-chain
// consumers can match ledger events back to application records.
type TransferIntent struct {
	Payer            string
	Beneficiary      string
	AssetType        string
	AmountMinorUnits uint64
	CorrelationRef   string
}

// Validate checks shape only; the amount floor is policy and enforced by the
// Service.
func (i TransferIntent) Validate() error {
	if err := validateAddress(i.Payer); err != nil {
		return fmt.Errorf("payer: %w", err)
	}
	if err := validateAddress(i.Beneficiary); err != nil {
		return fmt.Errorf("beneficiary: %w", err)
	}
	if i.AssetType == "" {
		return errors.New("asset type is required")
	}
	if i.AmountMinorUnits == 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

func validateAddress(addr string) error {
	if addr == "" {
		return errors.New("address is required")
	}
	if !strings.HasPrefix(addr, "0x") {
		return fmt.Errorf("address %q must be 0x-prefixed", addr)
	}
	return nil
}
