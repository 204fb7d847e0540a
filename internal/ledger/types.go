package ledger

import (
	"encoding/json"
	"strconv"
)

// Coin is one fungible-asset object owned by an address at a specific version.
// Numeric fields arrive as decimal strings on the wire.
type Coin struct {
	CoinType     string `json:"coinType"`
	CoinObjectID string `json:"coinObjectId"`
	Version      string `json:"version"`
	Digest       string `json:"digest"`
	Balance      string `json:"balance"`
}

func (c Coin) BalanceUint() uint64 {
	v, _ := strconv.ParseUint(c.Balance, 10, 64)
	return v
}

// Ref pins the coin at its exact version. A transaction built against a Ref
// fails with a stale-reference error if the object was consumed in between.
func (c Coin) Ref() ObjectRef {
	v, _ := strconv.ParseUint(c.Version, 10, 64)
	return ObjectRef{
		ObjectID: c.CoinObjectID,
		Version:  v,
		Digest:   c.Digest,
	}
}

type ObjectRef struct {
	ObjectID string `json:"objectId"`
	Version  uint64 `json:"version"`
	Digest   string `json:"digest"`
}

type coinPage struct {
	Data        []Coin `json:"data"`
	NextCursor  string `json:"nextCursor"`
	HasNextPage bool   `json:"hasNextPage"`
}

type ExecutionStatus struct {
	Status string `json:"status"` // "success" | "failure"
	Error  string `json:"error,omitempty"`
}

func (s ExecutionStatus) Success() bool { return s.Status == "success" }

type GasUsed struct {
	ComputationCost         string `json:"computationCost"`
	StorageCost             string `json:"storageCost"`
	StorageRebate           string `json:"storageRebate"`
	NonRefundableStorageFee string `json:"nonRefundableStorageFee"`
}

// NetCost is computation + storage + non-refundable fee minus the rebate,
// clamped at zero.
func (g GasUsed) NetCost() uint64 {
	cost := parseUint(g.ComputationCost) + parseUint(g.StorageCost) + parseUint(g.NonRefundableStorageFee)
	rebate := parseUint(g.StorageRebate)
	if cost > rebate {
		return cost - rebate
	}
	return 0
}

func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

type Effects struct {
	Status  ExecutionStatus `json:"status"`
	GasUsed GasUsed         `json:"gasUsed"`
}

// DryRunResult is the outcome of a non-committing simulation.
type DryRunResult struct {
	Effects Effects `json:"effects"`
}

// ExecuteResult reports a submitted (or previously finalized) transaction.
type ExecuteResult struct {
	Digest  string   `json:"digest"`
	Effects *Effects `json:"effects,omitempty"`
}

type EventID struct {
	TxDigest string `json:"txDigest"`
	EventSeq string `json:"eventSeq"`
}

func (id EventID) Seq() uint64 {
	v, _ := strconv.ParseUint(id.EventSeq, 10, 64)
	return v
}

type Event struct {
	ID          EventID         `json:"id"`
	ParsedJSON  json.RawMessage `json:"parsedJson"`
	TimestampMs string          `json:"timestampMs"`
}

func (e Event) Timestamp() uint64 {
	return parseUint(e.TimestampMs)
}

type EventPage struct {
	Data        []Event `json:"data"`
	HasNextPage bool    `json:"hasNextPage"`
}
