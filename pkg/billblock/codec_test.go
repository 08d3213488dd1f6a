// Copyright 2025 Certen Protocol

package billblock

import (
	"testing"

	"github.com/bitcredit/ebillchain/pkg/billcrypto"
)

func mustKeyPair(t *testing.T) *billcrypto.KeyPair {
	t.Helper()
	kp, err := billcrypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return kp
}

func testParty(t *testing.T, name string) (PartyRef, *billcrypto.KeyPair) {
	t.Helper()
	kp := mustKeyPair(t)
	return PartyRef{
		Kind:   PartyPerson,
		NodeID: billcrypto.NodeIDHex(kp.PublicKey),
		Name:   name,
		PostalAddress: PostalAddress{
			Country: "CH", City: "Zurich", Address: name + " street 1",
		},
	}, kp
}

func TestBuildBlockAndVerifyHash(t *testing.T) {
	bill := mustKeyPair(t)
	accepter, accepterKP := testParty(t, "accepter")

	payload := AcceptPayload{Accepter: accepter}
	payload.SigningTimestamp = 1000

	keys := SignerKeys{Signer: accepterKP.PrivateKey, Bill: bill.PrivateKey}
	block, err := BuildBlock("bill-1", 2, "prevhash", 1000, OpAccept, payload, bill.PublicKey, keys, nil, nil)
	if err != nil {
		t.Fatalf("BuildBlock: %v", err)
	}

	if err := VerifyHash(block); err != nil {
		t.Fatalf("VerifyHash: %v", err)
	}

	// tampering with any hashed field must break VerifyHash.
	tampered := *block
	tampered.Timestamp = 1001
	if err := VerifyHash(&tampered); err == nil {
		t.Fatalf("expected VerifyHash to fail after tampering with timestamp")
	}
}

func TestBuildBlockRejectsInvalidPayload(t *testing.T) {
	bill := mustKeyPair(t)
	accepterKP := mustKeyPair(t)

	payload := AcceptPayload{} // zero-value Accepter is invalid
	keys := SignerKeys{Signer: accepterKP.PrivateKey, Bill: bill.PrivateKey}
	if _, err := BuildBlock("bill-1", 2, "prevhash", 1000, OpAccept, payload, bill.PublicKey, keys, nil, nil); err == nil {
		t.Fatalf("expected BuildBlock to reject an invalid payload")
	}
}

func TestHolderTransferringCarriesEncryptedBillKey(t *testing.T) {
	bill := mustKeyPair(t)
	payee, payeeKP := testParty(t, "payee")
	drawer, drawerKP := testParty(t, "drawer")
	drawee, _ := testParty(t, "drawee")

	issue := IssuePayload{
		Drawer: drawer, Drawee: drawee, Payee: payee,
		Sum: 100, Currency: "usd", IssueDate: "2026-01-01", MaturityDate: "2026-06-01",
	}
	keys := SignerKeys{Signer: drawerKP.PrivateKey, Bill: bill.PrivateKey}
	block, err := BuildBlock("bill-1", 1, "", 1000, OpIssue, issue, bill.PublicKey, keys, payeeKP.PublicKey, bill.PrivateKey)
	if err != nil {
		t.Fatalf("BuildBlock: %v", err)
	}

	decryptedKey, err := DecryptBillKey(block, payeeKP.PrivateKey)
	if err != nil {
		t.Fatalf("DecryptBillKey: %v", err)
	}
	if !decryptedKey.PubKey().IsEqual(bill.PublicKey) {
		t.Fatalf("decrypted bill key does not match the bill keypair")
	}
}

func TestNonHolderTransferringOmitsBillKey(t *testing.T) {
	bill := mustKeyPair(t)
	accepter, accepterKP := testParty(t, "accepter")

	payload := AcceptPayload{Accepter: accepter}
	keys := SignerKeys{Signer: accepterKP.PrivateKey, Bill: bill.PrivateKey}
	block, err := BuildBlock("bill-1", 2, "prevhash", 1000, OpAccept, payload, bill.PublicKey, keys, nil, nil)
	if err != nil {
		t.Fatalf("BuildBlock: %v", err)
	}

	if _, err := DecryptBillKey(block, bill.PrivateKey); err == nil {
		t.Fatalf("expected DecryptBillKey to fail for a non-holder-transferring op")
	}
}

func TestDecryptPayloadRoundTrip(t *testing.T) {
	bill := mustKeyPair(t)
	accepter, accepterKP := testParty(t, "accepter")

	payload := AcceptPayload{Accepter: accepter}
	payload.SigningTimestamp = 42

	keys := SignerKeys{Signer: accepterKP.PrivateKey, Bill: bill.PrivateKey}
	block, err := BuildBlock("bill-1", 2, "prevhash", 1000, OpAccept, payload, bill.PublicKey, keys, nil, nil)
	if err != nil {
		t.Fatalf("BuildBlock: %v", err)
	}

	decoded, err := DecryptPayload(block, bill.PrivateKey)
	if err != nil {
		t.Fatalf("DecryptPayload: %v", err)
	}
	got, ok := decoded.(*AcceptPayload)
	if !ok {
		t.Fatalf("DecryptPayload returned %T, want *AcceptPayload", decoded)
	}
	if got.Accepter.NodeID != accepter.NodeID || got.SigningTimestamp != 42 {
		t.Fatalf("decrypted payload does not round-trip: %+v", got)
	}
}

func TestVerifyBlockSignatureWithSignatory(t *testing.T) {
	bill := mustKeyPair(t)
	accepter, accepterKP := testParty(t, "accepter")
	humanKP := mustKeyPair(t)
	signatoryRef := &SignatoryRef{NodeID: billcrypto.NodeIDHex(humanKP.PublicKey), Name: "human signatory"}

	payload := AcceptPayload{Accepter: accepter}
	payload.Signatory = signatoryRef

	keys := SignerKeys{Signatory: humanKP.PrivateKey, Signer: accepterKP.PrivateKey, Bill: bill.PrivateKey}
	block, err := BuildBlock("bill-1", 2, "prevhash", 1000, OpAccept, payload, bill.PublicKey, keys, nil, nil)
	if err != nil {
		t.Fatalf("BuildBlock: %v", err)
	}

	if err := VerifyBlockSignature(block, signatoryRef, accepterKP.PublicKey, bill.PublicKey); err != nil {
		t.Fatalf("VerifyBlockSignature: %v", err)
	}

	// a mismatched signer key must fail verification (I4/I5).
	other := mustKeyPair(t)
	if err := VerifyBlockSignature(block, signatoryRef, other.PublicKey, bill.PublicKey); err == nil {
		t.Fatalf("expected VerifyBlockSignature to fail against the wrong signer key")
	}
}
