// Copyright 2025 Certen Protocol
//
// Package billblock implements the bill-chain block format: the immutable,
// append-only record that carries one legal event (issuance, acceptance,
// endorsement, sale, recourse, rejection...) in a bill's history. A block
// is built and verified by this package; what it means for bill state is
// derived elsewhere (pkg/billstate).
package billblock

import (
	"github.com/btcsuite/btcd/btcec/v2"
)

// OpCode identifies which legal event a block records.
type OpCode string

const (
	OpIssue            OpCode = "Issue"
	OpAccept           OpCode = "Accept"
	OpEndorse          OpCode = "Endorse"
	OpMint             OpCode = "Mint"
	OpOfferToSell      OpCode = "OfferToSell"
	OpSell             OpCode = "Sell"
	OpRequestToAccept  OpCode = "RequestToAccept"
	OpRequestToPay     OpCode = "RequestToPay"
	OpRequestRecourse  OpCode = "RequestRecourse"
	OpRecourse         OpCode = "Recourse"
	OpRejectToAccept   OpCode = "RejectToAccept"
	OpRejectToBuy      OpCode = "RejectToBuy"
	OpRejectToPay      OpCode = "RejectToPay"
	OpRejectToPayRecourse OpCode = "RejectToPayRecourse"
)

// holderTransferring reports whether op reassigns the bill's holder and so
// must carry an encrypted bill key for the new holder (§4.1, §9 "holder
// transferring vs state-only ops" — tied to op_code, never to action kind).
func (op OpCode) holderTransferring() bool {
	switch op {
	case OpIssue, OpEndorse, OpMint, OpSell:
		return true
	default:
		return false
	}
}

// PartyKind distinguishes a natural person from a company acting through a
// signatory.
type PartyKind string

const (
	PartyPerson  PartyKind = "Person"
	PartyCompany PartyKind = "Company"
)

// PostalAddress is the minimum address detail a PartyRef must carry.
type PostalAddress struct {
	Country string `json:"country"`
	City    string `json:"city"`
	Zip     string `json:"zip,omitempty"`
	Address string `json:"address"`
}

// PartyRef identifies a participant on a block: a person or a company, by
// its secp256k1 node identity.
type PartyRef struct {
	Kind          PartyKind     `json:"kind"`
	NodeID        string        `json:"node_id"`
	Name          string        `json:"name"`
	PostalAddress PostalAddress `json:"postal_address"`
}

// PublicKey parses NodeID as a secp256k1 public key.
func (p PartyRef) PublicKey() (*btcec.PublicKey, error) {
	return parseNodeID(p.NodeID)
}

// Light redacts everything except the identity a counterparty needs to
// address the party, matching the original source's LightIdentityPublicData
// projection used when handing derived state to unrelated callers.
func (p PartyRef) Light() PartyRef {
	return PartyRef{Kind: p.Kind, NodeID: p.NodeID, Name: p.Name}
}

// LightWithAddress keeps the postal address alongside the light identity,
// mirroring LightIdentityPublicDataWithAddress.
func (p PartyRef) LightWithAddress() PartyRef {
	return PartyRef{Kind: p.Kind, NodeID: p.NodeID, Name: p.Name, PostalAddress: p.PostalAddress}
}

// SignatoryRef records the human signatory acting for a company, without an
// address — present on a payload only when the signer acts on a company's
// behalf.
type SignatoryRef struct {
	NodeID string `json:"node_id"`
	Name   string `json:"name"`
}

// PublicKey parses NodeID as a secp256k1 public key.
func (s SignatoryRef) PublicKey() (*btcec.PublicKey, error) {
	return parseNodeID(s.NodeID)
}

// RecourseReason is the cause cited by a RequestRecourse/Recourse pair.
type RecourseReason string

const (
	RecourseAccept RecourseReason = "Accept"
	RecoursePay    RecourseReason = "Pay"
)

// Block is one immutable entry in a bill chain.
type Block struct {
	BillID       string `json:"bill_id"`
	ID           uint64 `json:"id"`
	Timestamp    int64  `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Hash         string `json:"hash"`
	OpCode       OpCode `json:"op_code"`
	PublicKey    string `json:"public_key"`
	Signature    string `json:"signature"`
	Data         string `json:"data"`
}

// Envelope is the plaintext structure encoded (borsh-equivalent canonical
// form, see canonical.go) and base58'd into Block.Data.
type Envelope struct {
	EncryptedPayload []byte `json:"encrypted_payload"`
	EncryptedBillKey []byte `json:"encrypted_bill_key,omitempty"`
}

// SignerSet is the ordered key material used both to build and to verify a
// block's aggregate public_key/signature, per §4.1 and the §9 design note:
// we store independent signatures (signatory if present, signer, bill) as a
// tuple of two or three rather than true Schnorr aggregation.
type SignerSet struct {
	Signatory *btcec.PublicKey // optional: present when a company acts
	Signer    *btcec.PublicKey // key of the acting party (the company itself when Signatory is set)
	Bill      *btcec.PublicKey // the bill's own public key
}

// SignerKeys bundles the private counterparts needed to sign a block being built.
type SignerKeys struct {
	Signatory *btcec.PrivateKey // optional
	Signer    *btcec.PrivateKey
	Bill      *btcec.PrivateKey
}
