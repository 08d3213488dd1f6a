// Package billerrors defines the error kinds shared across the bill-chain
// engine (block codec, chain, state derivation, action executor). Keeping
// them in one package lets every layer return a value the caller can
// switch on with errors.Is/errors.As instead of matching error strings.
package billerrors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories enumerated in the bill
// state machine's error taxonomy.
type Kind string

const (
	// Input/validity
	KindPayloadInvalid     Kind = "PayloadInvalid"
	KindInvalidBillID      Kind = "InvalidBillId"
	KindInvalidPaymentAddr Kind = "InvalidPaymentAddress"
	KindInvalidDate        Kind = "InvalidDate"
	KindInvalidCurrency    Kind = "InvalidCurrency"
	KindInvalidSum         Kind = "InvalidSum"
	KindInvalidKey         Kind = "InvalidKey"

	// Authorization
	KindCallerNotDrawee     Kind = "CallerNotDrawee"
	KindCallerNotHolder     Kind = "CallerNotHolder"
	KindCallerNotBuyer      Kind = "CallerNotBuyer"
	KindCallerNotRecoursee  Kind = "CallerNotRecoursee"
	KindRecourseeNotPastHolder Kind = "RecourseeNotPastHolder"

	// State
	KindBillAlreadyAccepted             Kind = "BillAlreadyAccepted"
	KindBillAlreadyPaid                 Kind = "BillAlreadyPaid"
	KindBillOfferedToSellWaiting        Kind = "BillOfferedToSellWaiting"
	KindBillInRecourseWaiting           Kind = "BillInRecourseWaiting"
	KindBillNotRequestedToAccept        Kind = "BillNotRequestedToAccept"
	KindBillNotRequestedToPay           Kind = "BillNotRequestedToPay"
	KindBillNotOfferedToSell            Kind = "BillNotOfferedToSell"
	KindBillNotRequestedToRecourse      Kind = "BillNotRequestedToRecourse"
	KindBillNotWaitingForRecoursePayment Kind = "BillNotWaitingForRecoursePayment"
	KindBillNotWaitingForOfferToSellPayment Kind = "BillNotWaitingForOfferToSellPayment"
	KindRequestAlreadyExpired           Kind = "RequestAlreadyExpired"
	KindRequestAlreadyRejected          Kind = "RequestAlreadyRejected"
	KindRequestNotYetExpiredAndNotRejected Kind = "RequestNotYetExpiredAndNotRejected"
	KindSellDataMismatch                Kind = "SellDataMismatch"
	KindRecourseDataMismatch            Kind = "RecourseDataMismatch"

	// Chain
	KindChainInvalid     Kind = "ChainInvalid"
	KindBlockLinkBroken  Kind = "BlockLinkBroken"
	KindSignerMismatch   Kind = "SignerMismatch"
	KindDecryptionFailed Kind = "DecryptionFailed"

	// External
	KindNotFound            Kind = "NotFound"
	KindStoreIO             Kind = "StoreIO"
	KindNotificationFailed  Kind = "NotificationFailed"
	KindCryptoError         Kind = "CryptoError"
	KindObserverError       Kind = "ObserverError"
)

// Error is a typed, reportable error carrying one of the Kind values above.
// Field is populated for PayloadInvalid and is otherwise empty.
type Error struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s(%s)", e.Kind, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target has the same Kind, so callers can write
// errors.Is(err, billerrors.New(billerrors.KindBillAlreadyAccepted)).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New constructs a bare Error of the given kind.
func New(kind Kind) *Error { return &Error{Kind: kind} }

// FieldError constructs a PayloadInvalid-style error naming the offending field.
func FieldError(kind Kind, field string) *Error { return &Error{Kind: kind, Field: field} }

// Wrap constructs an Error that also carries an underlying cause.
func Wrap(kind Kind, err error) *Error { return &Error{Kind: kind, Err: err} }

// Payload is a convenience constructor for the very common PayloadInvalid(field) case.
func Payload(field string) *Error { return FieldError(KindPayloadInvalid, field) }
