// Copyright 2025 Certen Protocol

package billblock

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mr-tron/base58"

	"github.com/bitcredit/ebillchain/pkg/billcrypto"
	"github.com/bitcredit/ebillchain/pkg/billerrors"
)

// Payload is implemented by every per-op payload struct in payloads.go.
type Payload interface {
	Validate() error
}

const keySep = "|"

// encodeAggregateKey joins the ordered public keys of a SignerSet into the
// block's public_key field. Per §9 we store the key set as a fixed-arity
// tuple rather than a true Schnorr aggregate; the signatory slot is omitted
// entirely (not left blank) when no company acts.
func encodeAggregateKey(set SignerSet) string {
	parts := make([]string, 0, 3)
	if set.Signatory != nil {
		parts = append(parts, hex.EncodeToString(set.Signatory.SerializeCompressed()))
	}
	parts = append(parts, hex.EncodeToString(set.Signer.SerializeCompressed()))
	parts = append(parts, hex.EncodeToString(set.Bill.SerializeCompressed()))
	return strings.Join(parts, keySep)
}

// decodeAggregateKey recovers the ordered key parts from a block's
// public_key field. Two parts means no signatory; three means signer acts
// for a company.
func decodeAggregateKey(encoded string) ([]*btcec.PublicKey, error) {
	parts := strings.Split(encoded, keySep)
	if len(parts) != 2 && len(parts) != 3 {
		return nil, billerrors.New(billerrors.KindSignerMismatch)
	}
	keys := make([]*btcec.PublicKey, 0, len(parts))
	for _, p := range parts {
		pub, err := parsePublicKeyHex(p)
		if err != nil {
			return nil, billerrors.Wrap(billerrors.KindSignerMismatch, err)
		}
		keys = append(keys, pub)
	}
	return keys, nil
}

func parsePublicKeyHex(h string) (*btcec.PublicKey, error) {
	raw, err := hex.DecodeString(h)
	if err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(raw)
}

// encodeAggregateSignature joins the per-key signatures (same order as
// encodeAggregateKey) into the block's signature field.
func encodeAggregateSignature(sigs [][]byte) string {
	parts := make([]string, len(sigs))
	for i, s := range sigs {
		parts[i] = hex.EncodeToString(s)
	}
	return strings.Join(parts, keySep)
}

func decodeAggregateSignature(encoded string) ([][]byte, error) {
	parts := strings.Split(encoded, keySep)
	sigs := make([][]byte, len(parts))
	for i, p := range parts {
		raw, err := hex.DecodeString(p)
		if err != nil {
			return nil, billerrors.Wrap(billerrors.KindSignerMismatch, err)
		}
		sigs[i] = raw
	}
	return sigs, nil
}

// publicSignerSet extracts the public half of keys without signing anything.
func publicSignerSet(keys SignerKeys) SignerSet {
	var set SignerSet
	if keys.Signatory != nil {
		set.Signatory = keys.Signatory.PubKey()
	}
	set.Signer = keys.Signer.PubKey()
	set.Bill = keys.Bill.PubKey()
	return set
}

// signAggregate signs hash independently with every non-nil key in keys, in
// SignerSet order (signatory, signer, bill).
func signAggregate(keys SignerKeys, hash []byte) (SignerSet, [][]byte) {
	set := publicSignerSet(keys)
	var sigs [][]byte
	if keys.Signatory != nil {
		sigs = append(sigs, billcrypto.Sign(keys.Signatory, hash))
	}
	sigs = append(sigs, billcrypto.Sign(keys.Signer, hash))
	sigs = append(sigs, billcrypto.Sign(keys.Bill, hash))
	return set, sigs
}

// verifyAggregate implements I4/I5: every key in the tuple must verify
// independently against hash, and the tuple must match the expected
// (signatory?, signer, bill) key material reconstructed from the decrypted
// payload and the chain's bill public key.
func verifyAggregate(block *Block, expected SignerSet) error {
	keys, err := decodeAggregateKey(block.PublicKey)
	if err != nil {
		return err
	}
	sigs, err := decodeAggregateSignature(block.Signature)
	if err != nil {
		return err
	}
	if len(keys) != len(sigs) {
		return billerrors.New(billerrors.KindSignerMismatch)
	}

	var expectedOrdered []*btcec.PublicKey
	if expected.Signatory != nil {
		expectedOrdered = append(expectedOrdered, expected.Signatory)
	}
	expectedOrdered = append(expectedOrdered, expected.Signer, expected.Bill)
	if len(expectedOrdered) != len(keys) {
		return billerrors.New(billerrors.KindSignerMismatch)
	}

	hash, err := decodeHash(block.Hash)
	if err != nil {
		return err
	}
	for i, pub := range keys {
		if !pub.IsEqual(expectedOrdered[i]) {
			return billerrors.New(billerrors.KindSignerMismatch)
		}
		if !billcrypto.Verify(pub, hash, sigs[i]) {
			return billerrors.New(billerrors.KindSignerMismatch)
		}
	}
	return nil
}

func decodeHash(base58Hash string) ([]byte, error) {
	raw, err := base58.Decode(base58Hash)
	if err != nil {
		return nil, fmt.Errorf("decode hash: %w", err)
	}
	return raw, nil
}

// BuildBlock constructs, signs, and hashes the next block for a chain.
//
// billPub is the chain's bill public key, used to encrypt the payload. For
// holder-transferring ops (Issue, Endorse, Mint, Sell), newHolderPub and
// billPriv must be supplied so the bill private key can be handed to the
// new holder; for all other ops they are ignored.
func BuildBlock(billID string, id uint64, previousHash string, timestamp int64, op OpCode,
	payload Payload, billPub *btcec.PublicKey, keys SignerKeys,
	newHolderPub *btcec.PublicKey, billPriv *btcec.PrivateKey) (*Block, error) {

	if err := payload.Validate(); err != nil {
		return nil, err
	}

	plaintext, err := canonicalMarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	encryptedPayload, err := billcrypto.EncryptECIES(billPub, plaintext)
	if err != nil {
		return nil, billerrors.Wrap(billerrors.KindCryptoError, err)
	}

	env := Envelope{EncryptedPayload: encryptedPayload}
	if op.holderTransferring() {
		if newHolderPub == nil || billPriv == nil {
			return nil, fmt.Errorf("billblock: op %s requires new holder key and bill private key", op)
		}
		billKeyPlain := []byte(hex.EncodeToString(billPriv.Serialize()))
		encryptedBillKey, err := billcrypto.EncryptECIES(newHolderPub, billKeyPlain)
		if err != nil {
			return nil, billerrors.Wrap(billerrors.KindCryptoError, err)
		}
		env.EncryptedBillKey = encryptedBillKey
	}

	envBytes, err := canonicalMarshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	data := base58.Encode(envBytes)

	publicKey := encodeAggregateKey(publicSignerSet(keys))

	hashB58, err := computeHash(billID, id, previousHash, data, timestamp, publicKey, op)
	if err != nil {
		return nil, err
	}
	hashBytes, err := decodeHash(hashB58)
	if err != nil {
		return nil, err
	}

	_, sigs := signAggregate(keys, hashBytes)
	signature := encodeAggregateSignature(sigs)

	return &Block{
		BillID:       billID,
		ID:           id,
		Timestamp:    timestamp,
		PreviousHash: previousHash,
		Hash:         hashB58,
		OpCode:       op,
		PublicKey:    publicKey,
		Signature:    signature,
		Data:         data,
	}, nil
}

// VerifyHash implements I3.
func VerifyHash(b *Block) error {
	want, err := computeHash(b.BillID, b.ID, b.PreviousHash, b.Data, b.Timestamp, b.PublicKey, b.OpCode)
	if err != nil {
		return err
	}
	if want != b.Hash {
		return billerrors.New(billerrors.KindChainInvalid)
	}
	return nil
}

// DecodeEnvelope base58-decodes Block.Data back into its Envelope.
func DecodeEnvelope(b *Block) (*Envelope, error) {
	raw, err := base58.Decode(b.Data)
	if err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return &env, nil
}

// DecryptPayload decrypts a block's payload given the bill private key and
// unmarshals it into the concrete Go type for b.OpCode.
func DecryptPayload(b *Block, billPriv *btcec.PrivateKey) (Payload, error) {
	env, err := DecodeEnvelope(b)
	if err != nil {
		return nil, err
	}
	plaintext, err := billcrypto.DecryptECIES(billPriv, env.EncryptedPayload)
	if err != nil {
		return nil, billerrors.Wrap(billerrors.KindDecryptionFailed, err)
	}
	return unmarshalPayload(b.OpCode, plaintext)
}

// DecryptBillKey decrypts the bill private key handed to a new holder by a
// holder-transferring block, given the new holder's private key.
func DecryptBillKey(b *Block, holderPriv *btcec.PrivateKey) (*btcec.PrivateKey, error) {
	if !b.OpCode.holderTransferring() {
		return nil, fmt.Errorf("billblock: op %s does not carry an encrypted bill key", b.OpCode)
	}
	env, err := DecodeEnvelope(b)
	if err != nil {
		return nil, err
	}
	plaintext, err := billcrypto.DecryptECIES(holderPriv, env.EncryptedBillKey)
	if err != nil {
		return nil, billerrors.Wrap(billerrors.KindDecryptionFailed, err)
	}
	raw, err := hex.DecodeString(string(plaintext))
	if err != nil {
		return nil, fmt.Errorf("decode bill key: %w", err)
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv, nil
}

func unmarshalPayload(op OpCode, data []byte) (Payload, error) {
	var p Payload
	switch op {
	case OpIssue:
		p = &IssuePayload{}
	case OpAccept:
		p = &AcceptPayload{}
	case OpRequestToAccept:
		p = &RequestToAcceptPayload{}
	case OpRequestToPay:
		p = &RequestToPayPayload{}
	case OpEndorse:
		p = &EndorsePayload{}
	case OpMint:
		p = &MintPayload{}
	case OpOfferToSell:
		p = &OfferToSellPayload{}
	case OpSell:
		p = &SellPayload{}
	case OpRequestRecourse:
		p = &RequestRecoursePayload{}
	case OpRecourse:
		p = &RecoursePayload{}
	case OpRejectToAccept:
		p = &RejectToAcceptPayload{}
	case OpRejectToBuy:
		p = &RejectToBuyPayload{}
	case OpRejectToPay:
		p = &RejectToPayPayload{}
	case OpRejectToPayRecourse:
		p = &RejectToPayRecoursePayload{}
	default:
		return nil, fmt.Errorf("billblock: unknown op_code %q", op)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", op, err)
	}
	return p, nil
}

// ExpectedSignerSet reconstructs the key material a block's aggregate
// public_key/signature must match, per §4.1: the payload's optional
// signatory, the payload's principal signer, and the chain's bill key.
// signerPub is recovered from whichever principal field the op carries
// (e.g. Accepter for Accept, Requester for RequestToAccept).
func ExpectedSignerSet(signatory *SignatoryRef, signerPub *btcec.PublicKey, billPub *btcec.PublicKey) (SignerSet, error) {
	set := SignerSet{Signer: signerPub, Bill: billPub}
	if signatory != nil {
		pub, err := signatory.PublicKey()
		if err != nil {
			return SignerSet{}, billerrors.Payload("signatory.node_id")
		}
		set.Signatory = pub
	}
	return set, nil
}

// VerifyBlockSignature implements I4/I5 for a fully decrypted block.
func VerifyBlockSignature(block *Block, signatory *SignatoryRef, signerPub *btcec.PublicKey, billPub *btcec.PublicKey) error {
	expected, err := ExpectedSignerSet(signatory, signerPub, billPub)
	if err != nil {
		return err
	}
	return verifyAggregate(block, expected)
}
