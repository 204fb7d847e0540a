package sponsor

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/streamtip/sponsord/internal/ledger"
)

const (
	txFormatVersion = 1

	opKindMergeCoins = 0x01
	opKindDonate     = 0x02

	// expirationNone: sponsored transactions must not race caller-side
	// latency, so they never expire on their own.
	expirationNone = 0x00
)

// BuiltTransaction is an immutable serialized transaction. Fields are
// unexported so only the Builder can produce one; SignAsSponsor accepting this
// type (not raw bytes) is what keeps the sponsor from blind-signing
// caller-supplied payloads.
type BuiltTransaction struct {
	raw       []byte
	digest    string
	intent    TransferIntent
	gasBudget uint64
	gasPrice  uint64
}

// Bytes returns a copy; signatures bind to exact bytes, so the original is
// never handed out for mutation.
func (t *BuiltTransaction) Bytes() []byte {
	cp := make([]byte, len(t.raw))
	copy(cp, t.raw)
	return cp
}

func (t *BuiltTransaction) Digest() string         { return t.digest }
func (t *BuiltTransaction) Intent() TransferIntent { return t.intent }
func (t *BuiltTransaction) GasBudget() uint64      { return t.gasBudget }
func (t *BuiltTransaction) GasPrice() uint64       { return t.gasPrice }

// TransactionDigest computes the digest for serialized transaction bytes. It
// matches BuiltTransaction.Digest for bytes produced by the Builder, which
// lets submitters resolve an unknown outcome by digest before retrying.
func TransactionDigest(txBytes []byte) string {
	msg := make([]byte, 0, len(txIntentPrefix)+len(txBytes))
	msg = append(msg, txIntentPrefix...)
	msg = append(msg, txBytes...)
	sum := blake2b.Sum256(msg)
	return hex.EncodeToString(sum[:])
}

// Builder assembles unsigned sponsored transactions. The sponsor is the gas
// owner; the gas coin is pinned by exact object reference so a concurrently
// selected coin cannot be spent by accident.
type Builder struct {
	gateway     ledger.Gateway
	packageID   string
	sponsorAddr string
}

func NewBuilder(gw ledger.Gateway, packageID, sponsorAddr string) *Builder {
	return &Builder{
		gateway:     gw,
		packageID:   packageID,
		sponsorAddr: sponsorAddr,
	}
}

// Build deterministically serializes the transaction: sender, sponsor as fee
// payer, pinned gas coin, no expiration, current reference gas price, the given
// budget, and the operation set (merge first if the selection requires one,
// then the donate call carrying the correlation ref). Any later change requires
// a full rebuild; there is no incremental mutation after serialization.
func (b *Builder) Build(ctx context.Context, intent TransferIntent, sel *Selection, gasCoin ledger.ObjectRef, gasBudget uint64) (*BuiltTransaction, error) {
	gasPrice, err := b.gateway.GetReferenceGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteByte(txFormatVersion)
	writeString(&buf, intent.Payer)
	writeString(&buf, b.sponsorAddr)
	writeObjectRef(&buf, gasCoin)
	writeUint64(&buf, gasPrice)
	writeUint64(&buf, gasBudget)
	buf.WriteByte(expirationNone)

	ops := 1
	if len(sel.MergeSources) > 0 {
		ops = 2
	}
	writeUvarint(&buf, uint64(ops))

	if len(sel.MergeSources) > 0 {
		buf.WriteByte(opKindMergeCoins)
		writeObjectRef(&buf, sel.Primary.Ref())
		writeUvarint(&buf, uint64(len(sel.MergeSources)))
		for _, c := range sel.MergeSources {
			writeObjectRef(&buf, c.Ref())
		}
	}

	buf.WriteByte(opKindDonate)
	writeString(&buf, b.packageID)
	writeString(&buf, "donation")
	writeString(&buf, "donate")
	writeObjectRef(&buf, sel.Primary.Ref())
	writeString(&buf, intent.AssetType)
	writeUint64(&buf, intent.AmountMinorUnits)
	writeString(&buf, intent.Beneficiary)
	writeString(&buf, intent.CorrelationRef)

	raw := buf.Bytes()
	return &BuiltTransaction{
		raw:       raw,
		digest:    TransactionDigest(raw),
		intent:    intent,
		gasBudget: gasBudget,
		gasPrice:  gasPrice,
	}, nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	buf.Write(b[:n])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeObjectRef(buf *bytes.Buffer, ref ledger.ObjectRef) {
	writeString(buf, ref.ObjectID)
	writeUint64(buf, ref.Version)
	writeString(buf, ref.Digest)
}
