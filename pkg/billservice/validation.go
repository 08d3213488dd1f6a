// Copyright 2025 Certen Protocol

package billservice

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/bitcredit/ebillchain/pkg/billblock"
	"github.com/bitcredit/ebillchain/pkg/billchain"
	"github.com/bitcredit/ebillchain/pkg/billerrors"
	"github.com/bitcredit/ebillchain/pkg/billstate"
	"github.com/bitcredit/ebillchain/pkg/participants"
)

// validateAndBuildPayload implements the per-action validation table of
// §4.4. It returns the op_code and wire payload to build next, plus the new
// holder's public key when the action transfers the bill (nil otherwise).
func (e *Executor) validateAndBuildPayload(ctx context.Context, chain *billchain.Chain, billKeys billchain.BillKeys,
	state *billstate.BillState, action Action, callerNodeID string, signatory *billblock.SignatoryRef, now int64) (
	billblock.OpCode, billblock.Payload, *btcec.PublicKey, error) {

	switch a := action.(type) {

	case AcceptAction:
		if callerNodeID != state.Drawee.NodeID {
			return "", nil, nil, billerrors.New(billerrors.KindCallerNotDrawee)
		}
		if state.Acceptance.Accepted {
			return "", nil, nil, billerrors.New(billerrors.KindBillAlreadyAccepted)
		}
		p := billblock.AcceptPayload{Accepter: a.Accepter}
		p.Signatory, p.SigningTimestamp, p.SigningAddress = signatory, now, a.Accepter.PostalAddress.Address
		return billblock.OpAccept, p, nil, nil

	case RequestToAcceptAction:
		if err := requireHolderOrEndorsee(state, callerNodeID); err != nil {
			return "", nil, nil, err
		}
		p := billblock.RequestToAcceptPayload{Requester: a.Requester}
		p.Signatory, p.SigningTimestamp, p.SigningAddress = signatory, now, a.Requester.PostalAddress.Address
		return billblock.OpRequestToAccept, p, nil, nil

	case RequestToPayAction:
		if err := requireHolderOrEndorsee(state, callerNodeID); err != nil {
			return "", nil, nil, err
		}
		p := billblock.RequestToPayPayload{Requester: a.Requester, Currency: a.Currency}
		p.Signatory, p.SigningTimestamp, p.SigningAddress = signatory, now, a.Requester.PostalAddress.Address
		return billblock.OpRequestToPay, p, nil, nil

	case EndorseAction:
		if callerNodeID != state.HolderNodeID {
			return "", nil, nil, billerrors.New(billerrors.KindCallerNotHolder)
		}
		if a.Endorsee.NodeID == callerNodeID {
			return "", nil, nil, billerrors.Payload("endorsee")
		}
		endorseePub, err := a.Endorsee.PublicKey()
		if err != nil {
			return "", nil, nil, billerrors.Payload("endorsee.node_id")
		}
		p := billblock.EndorsePayload{Endorser: a.Endorser, Endorsee: a.Endorsee}
		p.Signatory, p.SigningTimestamp, p.SigningAddress = signatory, now, a.Endorser.PostalAddress.Address
		return billblock.OpEndorse, p, endorseePub, nil

	case MintAction:
		if callerNodeID != state.HolderNodeID {
			return "", nil, nil, billerrors.New(billerrors.KindCallerNotHolder)
		}
		if !state.Acceptance.Accepted {
			return "", nil, nil, billerrors.New(billerrors.KindBillNotRequestedToAccept)
		}
		endorseePub, err := a.Endorsee.PublicKey()
		if err != nil {
			return "", nil, nil, billerrors.Payload("endorsee.node_id")
		}
		p := billblock.MintPayload{Endorser: a.Endorser, Endorsee: a.Endorsee, Sum: a.Sum, Currency: a.Currency}
		p.Signatory, p.SigningTimestamp, p.SigningAddress = signatory, now, a.Endorser.PostalAddress.Address
		return billblock.OpMint, p, endorseePub, nil

	case OfferToSellAction:
		if callerNodeID != state.HolderNodeID {
			return "", nil, nil, billerrors.New(billerrors.KindCallerNotHolder)
		}
		if state.Waiting.Kind == billstate.WaitingOfferToSell {
			return "", nil, nil, billerrors.New(billerrors.KindBillOfferedToSellWaiting)
		}
		sellerPub, err := a.Seller.PublicKey()
		if err != nil {
			return "", nil, nil, billerrors.Payload("seller.node_id")
		}
		address, err := e.Observer.PaymentAddressFor(billKeys.PublicKey, sellerPub)
		if err != nil {
			return "", nil, nil, billerrors.Wrap(billerrors.KindObserverError, err)
		}
		p := billblock.OfferToSellPayload{Seller: a.Seller, Buyer: a.Buyer, Sum: a.Sum, Currency: a.Currency, PaymentAddress: address}
		p.Signatory, p.SigningTimestamp, p.SigningAddress = signatory, now, a.Seller.PostalAddress.Address
		return billblock.OpOfferToSell, p, nil, nil

	case SellAction:
		info := state.Waiting.Info
		if state.Waiting.Kind != billstate.WaitingOfferToSell || info == nil {
			return "", nil, nil, billerrors.New(billerrors.KindBillNotWaitingForOfferToSellPayment)
		}
		if info.Buyer.NodeID != a.Buyer.NodeID || info.Sum != a.Sum || info.Currency != a.Currency || info.PaymentAddress != a.PaymentAddress {
			return "", nil, nil, billerrors.New(billerrors.KindSellDataMismatch)
		}
		if callerNodeID != info.Seller.NodeID {
			return "", nil, nil, billerrors.New(billerrors.KindCallerNotHolder)
		}
		buyerPub, err := a.Buyer.PublicKey()
		if err != nil {
			return "", nil, nil, billerrors.Payload("buyer.node_id")
		}
		p := billblock.SellPayload{Seller: a.Seller, Buyer: a.Buyer, Sum: a.Sum, Currency: a.Currency, PaymentAddress: a.PaymentAddress}
		p.Signatory, p.SigningTimestamp, p.SigningAddress = signatory, now, a.Seller.PostalAddress.Address
		return billblock.OpSell, p, buyerPub, nil

	case RequestRecourseAction:
		if callerNodeID != state.HolderNodeID {
			return "", nil, nil, billerrors.New(billerrors.KindCallerNotHolder)
		}
		isPast, err := participants.IsPastEndorsee(chain, billKeys, callerNodeID, a.Recoursee.NodeID)
		if err != nil {
			return "", nil, nil, err
		}
		if !isPast {
			return "", nil, nil, billerrors.New(billerrors.KindRecourseeNotPastHolder)
		}
		switch a.Reason {
		case billblock.RecourseAccept:
			if !(state.Acceptance.Rejected || state.Acceptance.TimedOut) {
				return "", nil, nil, billerrors.New(billerrors.KindBillNotRequestedToAccept)
			}
		case billblock.RecoursePay:
			if state.Payment.Paid || !(state.Payment.Rejected || state.Payment.TimedOut) {
				return "", nil, nil, billerrors.New(billerrors.KindBillNotRequestedToPay)
			}
		default:
			return "", nil, nil, billerrors.Payload("reason")
		}
		p := billblock.RequestRecoursePayload{Recourser: a.Recourser, Recoursee: a.Recoursee, Sum: a.Sum, Currency: a.Currency, Reason: a.Reason}
		p.Signatory, p.SigningTimestamp, p.SigningAddress = signatory, now, a.Recourser.PostalAddress.Address
		return billblock.OpRequestRecourse, p, nil, nil

	case RecourseAction:
		info := state.Waiting.Info
		if state.Waiting.Kind != billstate.WaitingRecourse || info == nil {
			return "", nil, nil, billerrors.New(billerrors.KindBillNotRequestedToRecourse)
		}
		if info.Buyer.NodeID != a.Recoursee.NodeID || info.Sum != a.Sum || info.Currency != a.Currency || info.Reason != a.Reason {
			return "", nil, nil, billerrors.New(billerrors.KindRecourseDataMismatch)
		}
		if callerNodeID != info.Seller.NodeID {
			return "", nil, nil, billerrors.New(billerrors.KindCallerNotHolder)
		}
		recourseePub, err := a.Recoursee.PublicKey()
		if err != nil {
			return "", nil, nil, billerrors.Payload("recoursee.node_id")
		}
		p := billblock.RecoursePayload{Recourser: a.Recourser, Recoursee: a.Recoursee, Sum: a.Sum, Currency: a.Currency, Reason: a.Reason}
		p.Signatory, p.SigningTimestamp, p.SigningAddress = signatory, now, a.Recourser.PostalAddress.Address
		return billblock.OpRecourse, p, recourseePub, nil

	case RejectToAcceptAction:
		if callerNodeID != state.Drawee.NodeID {
			return "", nil, nil, billerrors.New(billerrors.KindCallerNotDrawee)
		}
		if !state.Acceptance.Requested {
			return "", nil, nil, billerrors.New(billerrors.KindBillNotRequestedToAccept)
		}
		if state.Acceptance.Accepted {
			return "", nil, nil, billerrors.New(billerrors.KindBillAlreadyAccepted)
		}
		if state.Acceptance.Rejected {
			return "", nil, nil, billerrors.New(billerrors.KindRequestAlreadyRejected)
		}
		p := billblock.RejectToAcceptPayload{Rejecter: a.Rejecter}
		p.Signatory, p.SigningTimestamp, p.SigningAddress = signatory, now, a.Rejecter.PostalAddress.Address
		return billblock.OpRejectToAccept, p, nil, nil

	case RejectToBuyAction:
		info := state.Waiting.Info
		if state.Waiting.Kind != billstate.WaitingOfferToSell || info == nil {
			return "", nil, nil, billerrors.New(billerrors.KindBillNotOfferedToSell)
		}
		if callerNodeID != info.Buyer.NodeID {
			return "", nil, nil, billerrors.New(billerrors.KindCallerNotBuyer)
		}
		if state.Sell.Rejected {
			return "", nil, nil, billerrors.New(billerrors.KindRequestAlreadyRejected)
		}
		p := billblock.RejectToBuyPayload{Rejecter: a.Rejecter}
		p.Signatory, p.SigningTimestamp, p.SigningAddress = signatory, now, a.Rejecter.PostalAddress.Address
		return billblock.OpRejectToBuy, p, nil, nil

	case RejectToPayAction:
		if callerNodeID != state.Drawee.NodeID {
			return "", nil, nil, billerrors.New(billerrors.KindCallerNotDrawee)
		}
		if !state.Payment.Requested {
			return "", nil, nil, billerrors.New(billerrors.KindBillNotRequestedToPay)
		}
		if state.Payment.TimedOut {
			return "", nil, nil, billerrors.New(billerrors.KindRequestAlreadyExpired)
		}
		if state.Payment.Paid {
			return "", nil, nil, billerrors.New(billerrors.KindBillAlreadyPaid)
		}
		if state.Payment.Rejected {
			return "", nil, nil, billerrors.New(billerrors.KindRequestAlreadyRejected)
		}
		p := billblock.RejectToPayPayload{Rejecter: a.Rejecter}
		p.Signatory, p.SigningTimestamp, p.SigningAddress = signatory, now, a.Rejecter.PostalAddress.Address
		return billblock.OpRejectToPay, p, nil, nil

	case RejectToPayRecourseAction:
		info := state.Waiting.Info
		if state.Waiting.Kind != billstate.WaitingRecourse || info == nil {
			return "", nil, nil, billerrors.New(billerrors.KindBillNotWaitingForRecoursePayment)
		}
		latest := chain.Latest()
		if latest.OpCode != billblock.OpRequestRecourse || latest.ID != info.RequestBlockID {
			return "", nil, nil, billerrors.New(billerrors.KindRequestNotYetExpiredAndNotRejected)
		}
		if callerNodeID != info.Buyer.NodeID {
			return "", nil, nil, billerrors.New(billerrors.KindCallerNotRecoursee)
		}
		if state.Recourse.TimedOut {
			return "", nil, nil, billerrors.New(billerrors.KindRequestAlreadyExpired)
		}
		p := billblock.RejectToPayRecoursePayload{Rejecter: a.Rejecter}
		p.Signatory, p.SigningTimestamp, p.SigningAddress = signatory, now, a.Rejecter.PostalAddress.Address
		return billblock.OpRejectToPayRecourse, p, nil, nil

	default:
		return "", nil, nil, billerrors.Payload("action")
	}
}

// requireHolderOrEndorsee implements the RequestToAccept/RequestToPay
// shared rule: caller == current holder. Since HolderNodeID already tracks
// every endorsement/sale/mint transfer, a freshly-transferred holder always
// satisfies this check without any separate endorsee carve-out.
func requireHolderOrEndorsee(state *billstate.BillState, callerNodeID string) error {
	if callerNodeID != state.HolderNodeID {
		return billerrors.New(billerrors.KindCallerNotHolder)
	}
	return nil
}
