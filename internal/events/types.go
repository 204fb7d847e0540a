package events

import "time"

type Source string

const (
	SourcePush Source = "push"
	SourcePoll Source = "poll"
)

// TransferEvent is one observation of a finalized donation. The same
// real-world transfer may be observed once per source; LedgerTxID is the
// dedup key and downstream consumers see each id exactly once.
type TransferEvent struct {
	LedgerTxID       string    `json:"ledgerTxId"`
	Payer            string    `json:"payerAddress"`
	Beneficiary      string    `json:"beneficiaryAddress"`
	AmountMinorUnits uint64    `json:"amountMinorUnits"`
	CorrelationRef   string    `json:"correlationRef"`
	DonorDisplayName string    `json:"donorDisplayName,omitempty"`
	Message          string    `json:"message,omitempty"`
	ObservedAt       time.Time `json:"observedAt"`
	Source           Source    `json:"source"`
}
