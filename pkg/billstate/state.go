// Copyright 2025 Certen Protocol
//
// Package billstate derives a bill's current legal state by folding its
// chain forward once and then overlaying a pure, now-dependent timeout
// check. Nothing here ever reads a wall clock — now is always supplied by
// the caller, which is what makes derivation deterministic (§9, property
// P6).
package billstate

import (
	"time"

	"github.com/bitcredit/ebillchain/pkg/billblock"
	"github.com/bitcredit/ebillchain/pkg/billchain"
)

// Deadline defaults, seconds. The source uses a "2-day order of magnitude"
// value for all three; we fix all of them at 48h (resolved Open Question,
// see SPEC_FULL.md §6). These are package variables rather than constants
// so a deployment can override all three together via SetDeadlines;
// leaving them untouched keeps the 48h default.
var (
	AcceptDeadlineSeconds   int64 = 48 * 60 * 60
	PaymentDeadlineSeconds  int64 = 48 * 60 * 60
	RecourseDeadlineSeconds int64 = 48 * 60 * 60
)

// SetDeadlines overrides all three deadlines at once. Callers must set all
// three together — pkg/config.Config.Validate enforces this before it ever
// reaches here.
func SetDeadlines(accept, payment, recourse int64) {
	AcceptDeadlineSeconds = accept
	PaymentDeadlineSeconds = payment
	RecourseDeadlineSeconds = recourse
}

// WaitingKind tags the subset of derived state indicating the chain is
// blocked pending an external event.
type WaitingKind string

const (
	WaitingNone             WaitingKind = ""
	WaitingOfferToSell      WaitingKind = "OfferToSell"
	WaitingRecourse         WaitingKind = "Recourse"
	WaitingRequestToPay     WaitingKind = "RequestToPay"
	WaitingRequestToAccept  WaitingKind = "RequestToAccept"
	WaitingRequestRecourse  WaitingKind = "RequestRecourse"
)

// PaymentInfo is the data a holder waiting on an observed payment needs,
// shared by the OfferToSell and Recourse waiting variants.
type PaymentInfo struct {
	Seller         billblock.PartyRef // or recourser, for the recourse variant
	Buyer          billblock.PartyRef // or recoursee, for the recourse variant
	Sum            uint64
	Currency       string
	PaymentAddress string // empty for the recourse variant
	Reason         billblock.RecourseReason
	// RequestBlockID is the id of the OfferToSell/RequestRecourse block
	// that created this waiting state, used by RejectToPayRecourse's
	// "latest block is that RequestRecourse" precondition.
	RequestBlockID uint64
}

// Waiting describes the blocked-pending-external-event subset of state.
type Waiting struct {
	Kind WaitingKind
	Info *PaymentInfo // set for OfferToSell and Recourse
}

// AcceptanceState tracks the RequestToAccept/Accept/RejectToAccept lifecycle.
type AcceptanceState struct {
	Requested bool
	Accepted  bool
	Rejected  bool
	TimedOut  bool
	TRequest  int64
}

// PaymentState tracks the RequestToPay/paid/RejectToPay lifecycle.
type PaymentState struct {
	Requested bool
	Paid      bool
	Rejected  bool
	TimedOut  bool
	TRequest  int64
}

// SellState tracks the OfferToSell/Sell/RejectToBuy lifecycle.
type SellState struct {
	Offered     bool
	Sold        bool
	Rejected    bool
	TimedOut    bool
	TLastOffer  int64
}

// RecourseState tracks the RequestRecourse/Recourse/RejectToPayRecourse
// lifecycle.
type RecourseState struct {
	Requested     bool
	Recoursed     bool
	Rejected      bool
	TimedOut      bool
	TLastRequest  int64
}

// BillState is the full derived legal state of a bill at a point in time.
// It is never stored authoritatively — every caller recomputes it from the
// chain plus whatever `now` it needs.
type BillState struct {
	HolderNodeID string
	Payee        billblock.PartyRef
	Drawer       billblock.PartyRef
	Drawee       billblock.PartyRef

	Acceptance AcceptanceState
	Payment    PaymentState
	Sell       SellState
	Recourse   RecourseState

	Waiting Waiting

	EndorsementsCount int
}

// maturityEndOfDay returns the Unix timestamp of 23:59:59 UTC on the bill's
// maturity date, used by the payment timeout calculation (§4.3, §9 Open
// Question #1 — preserved exactly from the source).
func maturityEndOfDay(maturityDate string) (int64, error) {
	d, err := time.Parse("2006-01-02", maturityDate)
	if err != nil {
		return 0, err
	}
	endOfDay := d.Add(24*time.Hour - time.Second)
	return endOfDay.Unix(), nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Derive folds chain forward into a BillState as of now. keys must be able
// to decrypt every block; derivation is O(N) in chain length and decrypts
// each block exactly once.
//
// paid is the payment store's side input (§4.3 step 4: "paid" is not
// derived from the chain). It is copied into payment.paid and suppresses
// payment.timed_out, since a bill that has been paid can never also be
// considered timed out.
func Derive(chain *billchain.Chain, keys billchain.BillKeys, now int64, paid bool) (*BillState, error) {
	issue, err := chain.GetFirstBillData(keys)
	if err != nil {
		return nil, err
	}

	state := &BillState{
		HolderNodeID: issue.Payee.NodeID,
		Payee:        issue.Payee,
		Drawer:       issue.Drawer,
		Drawee:       issue.Drawee,
	}

	blocks := chain.Blocks()
	for i := 1; i < len(blocks); i++ {
		payload, err := billblock.DecryptPayload(&blocks[i], keys.PrivateKey)
		if err != nil {
			return nil, err
		}
		ts := blocks[i].Timestamp

		switch p := payload.(type) {
		case *billblock.EndorsePayload:
			state.HolderNodeID = p.Endorsee.NodeID
			state.EndorsementsCount++
		case *billblock.MintPayload:
			state.HolderNodeID = p.Endorsee.NodeID
			state.EndorsementsCount++
		case *billblock.SellPayload:
			state.HolderNodeID = p.Buyer.NodeID
			state.EndorsementsCount++
			state.Sell.Sold = true
			state.Waiting = Waiting{}

		case *billblock.OfferToSellPayload:
			state.Sell.Offered = true
			state.Sell.TLastOffer = ts
			state.Waiting = Waiting{Kind: WaitingOfferToSell, Info: &PaymentInfo{
				Seller: p.Seller, Buyer: p.Buyer, Sum: p.Sum, Currency: p.Currency,
				PaymentAddress: p.PaymentAddress, RequestBlockID: blocks[i].ID,
			}}

		case *billblock.RequestToAcceptPayload:
			state.Acceptance.Requested = true
			state.Acceptance.TRequest = ts
			state.Waiting = Waiting{Kind: WaitingRequestToAccept}

		case *billblock.AcceptPayload:
			state.Acceptance.Accepted = true
			if state.Waiting.Kind == WaitingRequestToAccept {
				state.Waiting = Waiting{}
			}

		case *billblock.RequestToPayPayload:
			state.Payment.Requested = true
			state.Payment.TRequest = ts
			state.Waiting = Waiting{Kind: WaitingRequestToPay}

		case *billblock.RequestRecoursePayload:
			state.Recourse.Requested = true
			state.Recourse.TLastRequest = ts
			state.Waiting = Waiting{Kind: WaitingRecourse, Info: &PaymentInfo{
				Seller: p.Recourser, Buyer: p.Recoursee, Sum: p.Sum, Currency: p.Currency,
				Reason: p.Reason, RequestBlockID: blocks[i].ID,
			}}

		case *billblock.RecoursePayload:
			state.Recourse.Recoursed = true
			state.HolderNodeID = p.Recoursee.NodeID
			state.Waiting = Waiting{}

		case *billblock.RejectToAcceptPayload:
			state.Acceptance.Rejected = true
			if state.Waiting.Kind == WaitingRequestToAccept {
				state.Waiting = Waiting{}
			}
		case *billblock.RejectToBuyPayload:
			state.Sell.Rejected = true
			if state.Waiting.Kind == WaitingOfferToSell {
				state.Waiting = Waiting{}
			}
		case *billblock.RejectToPayPayload:
			state.Payment.Rejected = true
			if state.Waiting.Kind == WaitingRequestToPay {
				state.Waiting = Waiting{}
			}
		case *billblock.RejectToPayRecoursePayload:
			state.Recourse.Rejected = true
			if state.Waiting.Kind == WaitingRecourse {
				state.Waiting = Waiting{}
			}
		}
	}

	state.Payment.Paid = paid

	if err := applyTimeoutOverlay(state, issue, now); err != nil {
		return nil, err
	}
	return state, nil
}

// applyTimeoutOverlay implements §4.3 step 3: a function of now (and the
// paid side input already folded into state.Payment.Paid) over the folded
// state. Any timeout also clears a matching waiting state.
func applyTimeoutOverlay(state *BillState, issue *billblock.IssuePayload, now int64) error {
	a := &state.Acceptance
	a.TimedOut = a.Requested && !a.Accepted && !a.Rejected && a.TRequest+AcceptDeadlineSeconds <= now
	if a.TimedOut && state.Waiting.Kind == WaitingRequestToAccept {
		state.Waiting = Waiting{}
	}

	p := &state.Payment
	if p.Requested {
		endOfDay, err := maturityEndOfDay(issue.MaturityDate)
		if err != nil {
			return err
		}
		base := maxInt64(p.TRequest, endOfDay)
		p.TimedOut = !p.Paid && !p.Rejected && base+PaymentDeadlineSeconds <= now
	}
	if p.TimedOut && state.Waiting.Kind == WaitingRequestToPay {
		state.Waiting = Waiting{}
	}

	s := &state.Sell
	s.TimedOut = s.Offered && !s.Sold && !s.Rejected && s.TLastOffer+PaymentDeadlineSeconds <= now
	if s.TimedOut && state.Waiting.Kind == WaitingOfferToSell {
		state.Waiting = Waiting{}
	}

	r := &state.Recourse
	r.TimedOut = r.Requested && !r.Recoursed && !r.Rejected && r.TLastRequest+RecourseDeadlineSeconds <= now
	if r.TimedOut && state.Waiting.Kind == WaitingRecourse {
		state.Waiting = Waiting{}
	}

	return nil
}
