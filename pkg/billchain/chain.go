// Copyright 2025 Certen Protocol
//
// Package billchain implements the ordered, append-only sequence of blocks
// that makes up one bill's legal history, and the link/signature invariants
// that every append and every full reload must satisfy.
package billchain

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/bitcredit/ebillchain/pkg/billblock"
	"github.com/bitcredit/ebillchain/pkg/billcrypto"
	"github.com/bitcredit/ebillchain/pkg/billerrors"
)

// BillKeys is the dedicated asymmetric keypair every bill owns (§3 "Bill
// keys"). The private key is passed around explicitly rather than looked up
// globally — only code holding it can decrypt a chain's payloads.
type BillKeys struct {
	PublicKey  *btcec.PublicKey
	PrivateKey *btcec.PrivateKey
}

// Chain is the non-empty ordered sequence of blocks for a single bill_id.
type Chain struct {
	billID string
	blocks []billblock.Block
}

// NewChain wraps an already-persisted, non-empty block sequence. Callers
// that need genesis construction use NewGenesisChain instead.
func NewChain(billID string, blocks []billblock.Block) (*Chain, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("billchain: chain for %s has no blocks", billID)
	}
	c := &Chain{billID: billID, blocks: append([]billblock.Block(nil), blocks...)}
	if err := c.IsValid(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewGenesisChain starts a chain from a freshly built Issue block.
func NewGenesisChain(billID string, issue billblock.Block) (*Chain, error) {
	if issue.OpCode != billblock.OpIssue || issue.ID != 1 {
		return nil, billerrors.New(billerrors.KindChainInvalid)
	}
	return &Chain{billID: billID, blocks: []billblock.Block{issue}}, nil
}

// BillID returns the chain's bill identifier (I7).
func (c *Chain) BillID() string { return c.billID }

// Blocks returns the chain's blocks in order. Callers must not mutate the
// returned slice.
func (c *Chain) Blocks() []billblock.Block { return c.blocks }

// Latest returns the tail block.
func (c *Chain) Latest() *billblock.Block { return &c.blocks[len(c.blocks)-1] }

// GetFirst returns the genesis (Issue) block.
func (c *Chain) GetFirst() *billblock.Block { return &c.blocks[0] }

// Len returns the number of blocks.
func (c *Chain) Len() int { return len(c.blocks) }

// HasOp reports whether any block in the chain carries op.
func (c *Chain) HasOp(op billblock.OpCode) bool {
	for _, b := range c.blocks {
		if b.OpCode == op {
			return true
		}
	}
	return false
}

// LastOfOp returns the most recent block with the given op, or nil.
func (c *Chain) LastOfOp(op billblock.OpCode) *billblock.Block {
	for i := len(c.blocks) - 1; i >= 0; i-- {
		if c.blocks[i].OpCode == op {
			b := c.blocks[i]
			return &b
		}
	}
	return nil
}

// EndorsementCount counts Endorse, Sell, and Mint blocks — the ops that
// transfer the bill through a trading/endorsement relationship (distinct
// from Issue, which establishes the first holder).
func (c *Chain) EndorsementCount() int {
	n := 0
	for _, b := range c.blocks {
		switch b.OpCode {
		case billblock.OpEndorse, billblock.OpSell, billblock.OpMint:
			n++
		}
	}
	return n
}

// checkLink verifies I2 for candidate appended after tail.
func checkLink(tail, candidate *billblock.Block) error {
	if candidate.PreviousHash != tail.Hash {
		return billerrors.New(billerrors.KindBlockLinkBroken)
	}
	if candidate.ID != tail.ID+1 {
		return billerrors.New(billerrors.KindBlockLinkBroken)
	}
	if candidate.Timestamp < tail.Timestamp {
		return billerrors.New(billerrors.KindChainInvalid)
	}
	return nil
}

// TryAdd verifies I2 (link), I3 (hash), I6 (bill_id), and link-local
// timestamp monotonicity against the current tail and, only if they hold,
// appends candidate in place. It does NOT verify I4 (signature) or I5
// (aggregate public_key) — candidate is still encrypted at this layer, and
// checking a signature needs the decrypted principal signer, which lives in
// VerifyChainSignatures. Execute calls VerifyChainSignatures immediately
// after a successful TryAdd and before persisting, so the executor's append
// path enforces the full I2–I6 set even though TryAdd alone does not.
// Returns false without mutating the chain on any failure.
func (c *Chain) TryAdd(candidate billblock.Block) (bool, error) {
	tail := c.Latest()
	if err := checkLink(tail, &candidate); err != nil {
		return false, err
	}
	if candidate.BillID != c.billID {
		return false, billerrors.New(billerrors.KindChainInvalid)
	}
	if err := billblock.VerifyHash(&candidate); err != nil {
		return false, err
	}
	c.blocks = append(c.blocks, candidate)
	return true, nil
}

// IsValid re-validates I1 (genesis shape), I2 (links), I3 (hashes), I6
// (bill_id), and timestamp monotonicity from genesis. It does not check I4
// (signature) or I5 (aggregate public_key) — those need the decrypted
// signer identity per block, which this method does not have the bill_keys
// to obtain. Callers that hold bill_keys — NewChain's callers in
// particular, since it calls IsValid on every load — should also run
// VerifyChainSignatures for a full I1–I7 re-validation.
func (c *Chain) IsValid() error {
	if len(c.blocks) == 0 {
		return billerrors.New(billerrors.KindChainInvalid)
	}
	if c.blocks[0].OpCode != billblock.OpIssue || c.blocks[0].ID != 1 {
		return billerrors.New(billerrors.KindChainInvalid)
	}
	for i, b := range c.blocks {
		if b.BillID != c.billID {
			return billerrors.New(billerrors.KindChainInvalid)
		}
		if i > 0 {
			if b.OpCode == billblock.OpIssue {
				return billerrors.New(billerrors.KindChainInvalid)
			}
			if err := checkLink(&c.blocks[i-1], &b); err != nil {
				return err
			}
		}
		bb := b
		if err := billblock.VerifyHash(&bb); err != nil {
			return err
		}
	}
	return nil
}

// VerifyChainSignatures decrypts every block with bill_keys and checks I4/I5
// against the per-op principal signer, billed against this implementation's
// tuple-signature scheme (see billblock.ExpectedSignerSet).
func (c *Chain) VerifyChainSignatures(keys BillKeys) error {
	for i := range c.blocks {
		b := &c.blocks[i]
		payload, err := billblock.DecryptPayload(b, keys.PrivateKey)
		if err != nil {
			return err
		}
		signatory, signerPub, err := principalSigner(b.OpCode, payload)
		if err != nil {
			return err
		}
		if err := billblock.VerifyBlockSignature(b, signatory, signerPub, keys.PublicKey); err != nil {
			return err
		}
	}
	return nil
}

// principalSigner extracts the signatory (if any) and the principal
// identity key a decrypted payload was signed by, per op.
func principalSigner(op billblock.OpCode, payload billblock.Payload) (*billblock.SignatoryRef, *btcec.PublicKey, error) {
	var signatory *billblock.SignatoryRef
	var party billblock.PartyRef

	switch p := payload.(type) {
	case *billblock.IssuePayload:
		signatory, party = p.Signatory, p.Drawer
	case *billblock.AcceptPayload:
		signatory, party = p.Signatory, p.Accepter
	case *billblock.RequestToAcceptPayload:
		signatory, party = p.Signatory, p.Requester
	case *billblock.RequestToPayPayload:
		signatory, party = p.Signatory, p.Requester
	case *billblock.EndorsePayload:
		signatory, party = p.Signatory, p.Endorser
	case *billblock.MintPayload:
		signatory, party = p.Signatory, p.Endorser
	case *billblock.OfferToSellPayload:
		signatory, party = p.Signatory, p.Seller
	case *billblock.SellPayload:
		signatory, party = p.Signatory, p.Seller
	case *billblock.RequestRecoursePayload:
		signatory, party = p.Signatory, p.Recourser
	case *billblock.RecoursePayload:
		signatory, party = p.Signatory, p.Recourser
	case *billblock.RejectToAcceptPayload:
		signatory, party = p.Signatory, p.Rejecter
	case *billblock.RejectToBuyPayload:
		signatory, party = p.Signatory, p.Rejecter
	case *billblock.RejectToPayPayload:
		signatory, party = p.Signatory, p.Rejecter
	case *billblock.RejectToPayRecoursePayload:
		signatory, party = p.Signatory, p.Rejecter
	default:
		return nil, nil, fmt.Errorf("billchain: unhandled payload type for op %s", op)
	}

	pub, err := party.PublicKey()
	if err != nil {
		return nil, nil, billerrors.Payload("node_id")
	}
	return signatory, pub, nil
}

// GetFirstBillData decrypts block 1 into its IssuePayload.
func (c *Chain) GetFirstBillData(keys BillKeys) (*billblock.IssuePayload, error) {
	payload, err := billblock.DecryptPayload(c.GetFirst(), keys.PrivateKey)
	if err != nil {
		return nil, err
	}
	issue, ok := payload.(*billblock.IssuePayload)
	if !ok {
		return nil, billerrors.New(billerrors.KindChainInvalid)
	}
	return issue, nil
}

// AllParticipants decrypts every block and unions every party node_id that
// appears anywhere in the chain.
func (c *Chain) AllParticipants(keys BillKeys) (map[string]billblock.PartyRef, error) {
	out := make(map[string]billblock.PartyRef)
	add := func(p billblock.PartyRef) {
		if p.NodeID != "" {
			out[p.NodeID] = p
		}
	}
	for i := range c.blocks {
		payload, err := billblock.DecryptPayload(&c.blocks[i], keys.PrivateKey)
		if err != nil {
			return nil, err
		}
		switch p := payload.(type) {
		case *billblock.IssuePayload:
			add(p.Drawer)
			add(p.Drawee)
			add(p.Payee)
		case *billblock.AcceptPayload:
			add(p.Accepter)
		case *billblock.RequestToAcceptPayload:
			add(p.Requester)
		case *billblock.RequestToPayPayload:
			add(p.Requester)
		case *billblock.EndorsePayload:
			add(p.Endorser)
			add(p.Endorsee)
		case *billblock.MintPayload:
			add(p.Endorser)
			add(p.Endorsee)
		case *billblock.OfferToSellPayload:
			add(p.Seller)
			add(p.Buyer)
		case *billblock.SellPayload:
			add(p.Seller)
			add(p.Buyer)
		case *billblock.RequestRecoursePayload:
			add(p.Recourser)
			add(p.Recoursee)
		case *billblock.RecoursePayload:
			add(p.Recourser)
			add(p.Recoursee)
		case *billblock.RejectToAcceptPayload:
			add(p.Rejecter)
		case *billblock.RejectToBuyPayload:
			add(p.Rejecter)
		case *billblock.RejectToPayPayload:
			add(p.Rejecter)
		case *billblock.RejectToPayRecoursePayload:
			add(p.Rejecter)
		}
	}
	return out, nil
}

// NodeIDFromBillKeys is a small convenience used when a chain's own public
// key needs to be rendered the same way a node_id would be.
func NodeIDFromBillKeys(pub *btcec.PublicKey) string {
	return billcrypto.NodeIDHex(pub)
}
