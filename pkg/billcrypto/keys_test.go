// Copyright 2025 Certen Protocol

package billcrypto

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

func TestGenerateKeyPairRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	nodeID := NodeIDHex(kp.PublicKey)
	pub, err := ParseNodeIDHex(nodeID)
	if err != nil {
		t.Fatalf("ParseNodeIDHex: %v", err)
	}
	if !pub.IsEqual(kp.PublicKey) {
		t.Fatalf("parsed public key does not match original")
	}
}

func TestBillIDRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	billID := BillIDFromPublicKey(kp.PublicKey)
	pub, err := ParseBillID(billID)
	if err != nil {
		t.Fatalf("ParseBillID: %v", err)
	}
	if !pub.IsEqual(kp.PublicKey) {
		t.Fatalf("parsed bill public key does not match original")
	}
}

func TestParseNodeIDHexRejectsGarbage(t *testing.T) {
	if _, err := ParseNodeIDHex("not-hex"); err == nil {
		t.Fatalf("expected error for non-hex node_id")
	}
	if _, err := ParseNodeIDHex("deadbeef"); err == nil {
		t.Fatalf("expected error for hex that is not a valid public key")
	}
}

func TestSignVerify(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	digest := sha256.Sum256([]byte("a block hash preimage"))
	msgHash := digest[:]
	sig := Sign(kp.PrivateKey, msgHash)
	if !Verify(kp.PublicKey, msgHash, sig) {
		t.Fatalf("signature failed to verify against the signing key")
	}

	other, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if Verify(other.PublicKey, msgHash, sig) {
		t.Fatalf("signature verified against an unrelated public key")
	}
}

func TestEncryptDecryptECIES(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	plaintext := []byte(`{"sum":100,"currency":"usd"}`)
	ciphertext, err := EncryptECIES(kp.PublicKey, plaintext)
	if err != nil {
		t.Fatalf("EncryptECIES: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Fatalf("ciphertext leaks the plaintext")
	}
	decrypted, err := DecryptECIES(kp.PrivateKey, ciphertext)
	if err != nil {
		t.Fatalf("DecryptECIES: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("decrypted payload does not match plaintext: got %q", decrypted)
	}
}

func TestSHA256Base58Deterministic(t *testing.T) {
	a := SHA256Base58([]byte("same input"))
	b := SHA256Base58([]byte("same input"))
	if a != b {
		t.Fatalf("SHA256Base58 is not deterministic: %q != %q", a, b)
	}
	c := SHA256Base58([]byte("different input"))
	if a == c {
		t.Fatalf("SHA256Base58 collided for different inputs")
	}
}
