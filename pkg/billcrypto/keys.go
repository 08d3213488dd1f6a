// Package billcrypto provides the cryptographic primitives the bill chain
// is built on: secp256k1 keypairs, base58 identifiers, canonical SHA-256
// hashing, ECIES payload encryption, and per-key signing/verification for
// the aggregated block signature described in the block codec.
//
// This package binds to real libraries rather than reimplementing any of
// ECIES, secp256k1, or base58 — callers never construct curve math by hand.
package billcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"github.com/mr-tron/base58"
)

// KeyPair is a secp256k1 keypair. NodeID and BillID are both derived from
// the public key, so PublicKey is always kept alongside PrivateKey instead
// of being re-derived on every use.
type KeyPair struct {
	PrivateKey *btcec.PrivateKey
	PublicKey  *btcec.PublicKey
}

// GenerateKeyPair creates a fresh secp256k1 keypair, used both for node
// identities and for the dedicated per-bill keypair minted at issuance.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	return &KeyPair{PrivateKey: priv, PublicKey: priv.PubKey()}, nil
}

// NodeIDHex returns the hex-encoded compressed public key used on the wire
// as a node_id everywhere PartyRef/SignatoryRef carry one.
func NodeIDHex(pub *btcec.PublicKey) string {
	return hex.EncodeToString(pub.SerializeCompressed())
}

// ParseNodeIDHex parses a hex-encoded compressed secp256k1 public key.
func ParseNodeIDHex(nodeID string) (*btcec.PublicKey, error) {
	raw, err := hex.DecodeString(nodeID)
	if err != nil {
		return nil, fmt.Errorf("node_id is not valid hex: %w", err)
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("node_id is not a valid secp256k1 public key: %w", err)
	}
	return pub, nil
}

// BillIDFromPublicKey derives a bill's base58 identifier from its public key.
func BillIDFromPublicKey(pub *btcec.PublicKey) string {
	return base58.Encode(pub.SerializeCompressed())
}

// ParseBillID recovers the bill public key encoded in a bill_id.
func ParseBillID(billID string) (*btcec.PublicKey, error) {
	raw, err := base58.Decode(billID)
	if err != nil {
		return nil, fmt.Errorf("bill_id is not valid base58: %w", err)
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("bill_id does not encode a valid secp256k1 public key: %w", err)
	}
	return pub, nil
}

// SHA256Base58 hashes data with SHA-256 and base58-encodes the digest; this
// is the canonical block hash encoding used throughout the block codec.
func SHA256Base58(data []byte) string {
	sum := sha256.Sum256(data)
	return base58.Encode(sum[:])
}

// Sign produces a secp256k1 ECDSA signature over an arbitrary message hash.
// Individual signatures, one per key in the ordered aggregate, are combined
// into the block's signature tuple by the block codec (see billblock).
func Sign(priv *btcec.PrivateKey, hash []byte) []byte {
	sig := btcecdsa.Sign(priv, hash)
	return sig.Serialize()
}

// Verify checks a single signature produced by Sign.
func Verify(pub *btcec.PublicKey, hash, sig []byte) bool {
	parsed, err := btcecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(hash, pub)
}

// EncryptECIES encrypts plaintext to a secp256k1 public key. The bill
// block codec uses this both for the op payload (encrypted to the bill's
// own public key) and for the bill private key handed to a new holder
// (encrypted to the new holder's node public key).
func EncryptECIES(pub *btcec.PublicKey, plaintext []byte) ([]byte, error) {
	eciesPub := ecies.ImportECDSAPublic(pub.ToECDSA())
	ciphertext, err := ecies.Encrypt(rand.Reader, eciesPub, plaintext, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("ecies encrypt: %w", err)
	}
	return ciphertext, nil
}

// DecryptECIES decrypts a payload produced by EncryptECIES.
func DecryptECIES(priv *btcec.PrivateKey, ciphertext []byte) ([]byte, error) {
	eciesPriv := ecies.ImportECDSA(priv.ToECDSA())
	plaintext, err := eciesPriv.Decrypt(ciphertext, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("ecies decrypt: %w", err)
	}
	return plaintext, nil
}
