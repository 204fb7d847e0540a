package donationstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streamtip/sponsord/pkg/kvstore"
)

const recordKeyPrefix = "donation/record/"

type Status string

// Lifecycle: Built -> SponsorSigned -> Submitted -> {Finalized | Rejected}.
// Payer signing happens out-of-band and is not a tracked state.
const (
	StatusBuilt         Status = "built"
	StatusSponsorSigned Status = "sponsor_signed"
	StatusSubmitted     Status = "submitted"
	StatusFinalized     Status = "finalized"
	StatusRejected      Status = "rejected"
)

// Record is the server's bookkeeping for one sponsored transaction, keyed by
// the digest of the built bytes. It is what makes an unknown submission
// outcome resolvable and a partial failure reconcilable.
type Record struct {
	Digest           string    `json:"digest"`
	CorrelationRef   string    `json:"correlation_ref"`
	Payer            string    `json:"payer"`
	Beneficiary      string    `json:"beneficiary"`
	AmountMinorUnits uint64    `json:"amount_minor_units"`
	GasBudget        uint64    `json:"gas_budget"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Store struct {
	kv kvstore.KVStore
}

func New(kv kvstore.KVStore) *Store {
	return &Store{kv: kv}
}

func (s *Store) recordKey(digest string) string {
	return recordKeyPrefix + digest
}

func (s *Store) Save(r *Record) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if err := s.kv.SetAny(s.recordKey(r.Digest), r); err != nil {
		return fmt.Errorf("save record %s: %w", r.Digest, err)
	}
	return nil
}

// Get returns the record for a digest, or nil if unknown.
func (s *Store) Get(digest string) (*Record, error) {
	var r Record
	found, err := s.kv.GetAny(s.recordKey(digest), &r)
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", digest, err)
	}
	if !found {
		return nil, nil
	}
	return &r, nil
}

func (s *Store) UpdateStatus(digest string, status Status) error {
	r, err := s.Get(digest)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("update record %s: not found", digest)
	}
	r.Status = status
	return s.Save(r)
}

// ListByStatus returns all records currently in the given status.
func (s *Store) ListByStatus(status Status) ([]*Record, error) {
	pairs, err := s.kv.List(recordKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	records := make([]*Record, 0)
	for _, pair := range pairs {
		var r Record
		if err := json.Unmarshal(pair.Value, &r); err != nil {
			continue // skip malformed entries
		}
		if r.Status == status {
			records = append(records, &r)
		}
	}
	return records, nil
}
