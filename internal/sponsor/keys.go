package sponsor

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Ed25519 signature scheme flag, Sui convention.
const signatureFlagEd25519 = 0x00

// Intent prefix for transaction data: scope, version, app id. Signatures are
// computed over blake2b-256 of prefix||txBytes, never over raw bytes.
var txIntentPrefix = []byte{0, 0, 0}

// Keypair is an ed25519 signing identity with its derived ledger address.
type Keypair struct {
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	address string
}

// NewKeypairFromSeed builds a Keypair from a 32-byte ed25519 seed.
func NewKeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Keypair{
		priv:    priv,
		pub:     pub,
		address: deriveAddress(pub),
	}, nil
}

// GenerateKeypair creates a fresh random keypair. Used by tests and tooling.
func GenerateKeypair() (*Keypair, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return NewKeypairFromSeed(seed)
}

// LoadKeypair reads a base64(flag||seed) envelope from keyFile, or from the
// environment variable named by keyEnv when keyFile is empty.
func LoadKeypair(keyFile, keyEnv string) (*Keypair, error) {
	var encoded string
	switch {
	case keyFile != "":
		b, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		encoded = strings.TrimSpace(string(b))
	case keyEnv != "":
		encoded = strings.TrimSpace(os.Getenv(keyEnv))
		if encoded == "" {
			return nil, fmt.Errorf("environment variable %s is empty", keyEnv)
		}
	default:
		return nil, errors.New("no sponsor key configured")
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(raw) != 1+ed25519.SeedSize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", 1+ed25519.SeedSize, len(raw))
	}
	if raw[0] != signatureFlagEd25519 {
		return nil, fmt.Errorf("unsupported signature scheme flag 0x%02x", raw[0])
	}
	return NewKeypairFromSeed(raw[1:])
}

// Export returns the base64(flag||seed) envelope accepted by LoadKeypair.
func (k *Keypair) Export() string {
	raw := make([]byte, 0, 1+ed25519.SeedSize)
	raw = append(raw, signatureFlagEd25519)
	raw = append(raw, k.priv.Seed()...)
	return base64.StdEncoding.EncodeToString(raw)
}

func (k *Keypair) Address() string { return k.address }

// SignTransaction signs the exact serialized transaction bytes and returns the
// base64 flag||signature||pubkey envelope the ledger expects.
func (k *Keypair) SignTransaction(txBytes []byte) string {
	digest := signingDigest(txBytes)
	sig := ed25519.Sign(k.priv, digest[:])

	envelope := make([]byte, 0, 1+len(sig)+len(k.pub))
	envelope = append(envelope, signatureFlagEd25519)
	envelope = append(envelope, sig...)
	envelope = append(envelope, k.pub...)
	return base64.StdEncoding.EncodeToString(envelope)
}

// VerifyTransactionSignature checks a signature envelope against transaction
// bytes and returns the signer's derived address.
func VerifyTransactionSignature(txBytes []byte, envelope string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	if len(raw) != 1+ed25519.SignatureSize+ed25519.PublicKeySize {
		return "", fmt.Errorf("signature envelope must be %d bytes, got %d",
			1+ed25519.SignatureSize+ed25519.PublicKeySize, len(raw))
	}
	if raw[0] != signatureFlagEd25519 {
		return "", fmt.Errorf("unsupported signature scheme flag 0x%02x", raw[0])
	}
	sig := raw[1 : 1+ed25519.SignatureSize]
	pub := ed25519.PublicKey(raw[1+ed25519.SignatureSize:])

	digest := signingDigest(txBytes)
	if !ed25519.Verify(pub, digest[:], sig) {
		return "", errors.New("signature does not match transaction bytes")
	}
	return deriveAddress(pub), nil
}

func signingDigest(txBytes []byte) [32]byte {
	msg := make([]byte, 0, len(txIntentPrefix)+len(txBytes))
	msg = append(msg, txIntentPrefix...)
	msg = append(msg, txBytes...)
	return blake2b.Sum256(msg)
}

// deriveAddress is blake2b-256 over flag||pubkey, hex with 0x prefix.
func deriveAddress(pub ed25519.PublicKey) string {
	raw := make([]byte, 0, 1+len(pub))
	raw = append(raw, signatureFlagEd25519)
	raw = append(raw, pub...)
	sum := blake2b.Sum256(raw)
	return "0x" + hex.EncodeToString(sum[:])
}
