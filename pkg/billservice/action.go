// Copyright 2025 Certen Protocol
//
// Package billservice implements the action validator and executor (C4):
// the single path through which every external request and every
// background loop (C5, C6) mutates a bill chain.
package billservice

import "github.com/bitcredit/ebillchain/pkg/billblock"

// Action is the validator-facing request type. It is deliberately distinct
// from the wire payload types in pkg/billblock (§9 design note): the
// executor translates an Action into the right op_code + payload only
// after validation succeeds.
type Action interface {
	isAction()
}

type AcceptAction struct {
	Accepter billblock.PartyRef
}

type RequestToAcceptAction struct {
	Requester billblock.PartyRef
}

type RequestToPayAction struct {
	Requester billblock.PartyRef
	Currency  string
}

type EndorseAction struct {
	Endorser billblock.PartyRef
	Endorsee billblock.PartyRef
}

type MintAction struct {
	Endorser billblock.PartyRef
	Endorsee billblock.PartyRef
	Sum      uint64
	Currency string
}

// OfferToSellAction omits a payment address: the executor derives it
// deterministically via PaymentObserver.PaymentAddressFor (§4.6) rather
// than trusting a caller-supplied value.
type OfferToSellAction struct {
	Seller   billblock.PartyRef
	Buyer    billblock.PartyRef
	Sum      uint64
	Currency string
}

type SellAction struct {
	Seller         billblock.PartyRef
	Buyer          billblock.PartyRef
	Sum            uint64
	Currency       string
	PaymentAddress string
}

type RequestRecourseAction struct {
	Recourser billblock.PartyRef
	Recoursee billblock.PartyRef
	Sum       uint64
	Currency  string
	Reason    billblock.RecourseReason
}

type RecourseAction struct {
	Recourser billblock.PartyRef
	Recoursee billblock.PartyRef
	Sum       uint64
	Currency  string
	Reason    billblock.RecourseReason
}

type RejectToAcceptAction struct {
	Rejecter billblock.PartyRef
}

type RejectToBuyAction struct {
	Rejecter billblock.PartyRef
}

type RejectToPayAction struct {
	Rejecter billblock.PartyRef
}

type RejectToPayRecourseAction struct {
	Rejecter billblock.PartyRef
}

func (AcceptAction) isAction()               {}
func (RequestToAcceptAction) isAction()       {}
func (RequestToPayAction) isAction()          {}
func (EndorseAction) isAction()               {}
func (MintAction) isAction()                  {}
func (OfferToSellAction) isAction()           {}
func (SellAction) isAction()                  {}
func (RequestRecourseAction) isAction()       {}
func (RecourseAction) isAction()              {}
func (RejectToAcceptAction) isAction()        {}
func (RejectToBuyAction) isAction()           {}
func (RejectToPayAction) isAction()           {}
func (RejectToPayRecourseAction) isAction()   {}

// isRejectAction reports whether action is one of the Reject* variants,
// which are exempt from the universal waiting-state pre-checks (§4.4).
func isRejectAction(action Action) bool {
	switch action.(type) {
	case RejectToAcceptAction, RejectToBuyAction, RejectToPayAction, RejectToPayRecourseAction:
		return true
	default:
		return false
	}
}
