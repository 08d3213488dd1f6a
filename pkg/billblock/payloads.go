// Copyright 2025 Certen Protocol

package billblock

import (
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil"

	"github.com/bitcredit/ebillchain/pkg/billerrors"
)

// signingMeta is embedded in every payload: who signed, when, and from
// where, plus the optional signatory when a company acts.
type signingMeta struct {
	Signatory      *SignatoryRef `json:"signatory,omitempty"`
	SigningTimestamp int64       `json:"signing_timestamp"`
	SigningAddress string        `json:"signing_address"`
}

// IssuePayload is the genesis block's payload: the full bill.
type IssuePayload struct {
	signingMeta
	Drawer      PartyRef `json:"drawer"`
	Drawee      PartyRef `json:"drawee"`
	Payee       PartyRef `json:"payee"`
	Sum         uint64   `json:"sum"`
	Currency    string   `json:"currency"`
	IssueDate   string   `json:"issue_date"`
	MaturityDate string  `json:"maturity_date"`
	Places      []string `json:"places,omitempty"`
	Language    string   `json:"language"`
	Files       []string `json:"files,omitempty"`
}

type AcceptPayload struct {
	signingMeta
	Accepter PartyRef `json:"accepter"`
}

type RequestToAcceptPayload struct {
	signingMeta
	Requester PartyRef `json:"requester"`
}

type RequestToPayPayload struct {
	signingMeta
	Requester PartyRef `json:"requester"`
	Currency  string   `json:"currency"`
}

type EndorsePayload struct {
	signingMeta
	Endorser PartyRef `json:"endorser"`
	Endorsee PartyRef `json:"endorsee"`
}

type MintPayload struct {
	signingMeta
	Endorser PartyRef `json:"endorser"`
	Endorsee PartyRef `json:"endorsee"`
	Sum      uint64   `json:"sum"`
	Currency string   `json:"currency"`
}

type OfferToSellPayload struct {
	signingMeta
	Seller         PartyRef `json:"seller"`
	Buyer          PartyRef `json:"buyer"`
	Sum            uint64   `json:"sum"`
	Currency       string   `json:"currency"`
	PaymentAddress string   `json:"payment_address"`
}

type SellPayload struct {
	signingMeta
	Seller         PartyRef `json:"seller"`
	Buyer          PartyRef `json:"buyer"`
	Sum            uint64   `json:"sum"`
	Currency       string   `json:"currency"`
	PaymentAddress string   `json:"payment_address"`
}

type RequestRecoursePayload struct {
	signingMeta
	Recourser PartyRef       `json:"recourser"`
	Recoursee PartyRef       `json:"recoursee"`
	Sum       uint64         `json:"sum"`
	Currency  string         `json:"currency"`
	Reason    RecourseReason `json:"reason"`
}

type RecoursePayload struct {
	signingMeta
	Recourser PartyRef       `json:"recourser"`
	Recoursee PartyRef       `json:"recoursee"`
	Sum       uint64         `json:"sum"`
	Currency  string         `json:"currency"`
	Reason    RecourseReason `json:"reason"`
}

type RejectToAcceptPayload struct {
	signingMeta
	Rejecter PartyRef `json:"rejecter"`
}

type RejectToBuyPayload struct {
	signingMeta
	Rejecter PartyRef `json:"rejecter"`
}

type RejectToPayPayload struct {
	signingMeta
	Rejecter PartyRef `json:"rejecter"`
}

type RejectToPayRecoursePayload struct {
	signingMeta
	Rejecter PartyRef `json:"rejecter"`
}

// recognizedCurrencies is the small, fixed set of currency codes the block
// codec accepts. "sat" (satoshis) is the chain's native unit; the others
// are the ISO codes the original source validates against.
var recognizedCurrencies = map[string]bool{
	"sat": true, "btc": true, "usd": true, "eur": true, "chf": true, "gbp": true,
}

func validateCurrency(code string) error {
	if !recognizedCurrencies[strings.ToLower(code)] {
		return billerrors.Payload("currency")
	}
	return nil
}

func validateSum(sum uint64) error {
	if sum == 0 {
		return billerrors.Payload("sum")
	}
	return nil
}

func validateISODate(date string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return billerrors.Payload("date")
	}
	return nil
}

func validatePaymentAddress(addr string) error {
	if addr == "" {
		return billerrors.Payload("payment_address")
	}
	nets := []*chaincfg.Params{&chaincfg.MainNetParams, &chaincfg.TestNet3Params, &chaincfg.RegressionNetParams}
	for _, net := range nets {
		if _, err := btcutil.DecodeAddress(addr, net); err == nil {
			return nil
		}
	}
	return billerrors.Payload("payment_address")
}

func validatePartyRef(p PartyRef, field string) error {
	if p.Kind != PartyPerson && p.Kind != PartyCompany {
		return billerrors.Payload(field + ".kind")
	}
	if strings.TrimSpace(p.Name) == "" {
		return billerrors.Payload(field + ".name")
	}
	if strings.TrimSpace(p.PostalAddress.Country) == "" ||
		strings.TrimSpace(p.PostalAddress.City) == "" ||
		strings.TrimSpace(p.PostalAddress.Address) == "" {
		return billerrors.Payload(field + ".postal_address")
	}
	if _, err := p.PublicKey(); err != nil {
		return billerrors.Payload(field + ".node_id")
	}
	return nil
}

func validateSignatory(s *SignatoryRef) error {
	if s == nil {
		return nil
	}
	if strings.TrimSpace(s.Name) == "" {
		return billerrors.Payload("signatory.name")
	}
	if _, err := s.PublicKey(); err != nil {
		return billerrors.Payload("signatory.node_id")
	}
	return nil
}

// Validate checks every field-level rule in §4.1 for the payload's op.
// Each payload type implements this independently since the field set
// differs per op; there is no generic "validate a payload" shortcut.

func (p IssuePayload) Validate() error {
	if err := validateSignatory(p.Signatory); err != nil {
		return err
	}
	if err := validatePartyRef(p.Drawer, "drawer"); err != nil {
		return err
	}
	if err := validatePartyRef(p.Drawee, "drawee"); err != nil {
		return err
	}
	if err := validatePartyRef(p.Payee, "payee"); err != nil {
		return err
	}
	if err := validateSum(p.Sum); err != nil {
		return err
	}
	if err := validateCurrency(p.Currency); err != nil {
		return err
	}
	if err := validateISODate(p.IssueDate); err != nil {
		return err
	}
	if err := validateISODate(p.MaturityDate); err != nil {
		return err
	}
	return nil
}

func (p AcceptPayload) Validate() error {
	if err := validateSignatory(p.Signatory); err != nil {
		return err
	}
	return validatePartyRef(p.Accepter, "accepter")
}

func (p RequestToAcceptPayload) Validate() error {
	if err := validateSignatory(p.Signatory); err != nil {
		return err
	}
	return validatePartyRef(p.Requester, "requester")
}

func (p RequestToPayPayload) Validate() error {
	if err := validateSignatory(p.Signatory); err != nil {
		return err
	}
	if err := validatePartyRef(p.Requester, "requester"); err != nil {
		return err
	}
	return validateCurrency(p.Currency)
}

func (p EndorsePayload) Validate() error {
	if err := validateSignatory(p.Signatory); err != nil {
		return err
	}
	if err := validatePartyRef(p.Endorser, "endorser"); err != nil {
		return err
	}
	return validatePartyRef(p.Endorsee, "endorsee")
}

func (p MintPayload) Validate() error {
	if err := validateSignatory(p.Signatory); err != nil {
		return err
	}
	if err := validatePartyRef(p.Endorser, "endorser"); err != nil {
		return err
	}
	if err := validatePartyRef(p.Endorsee, "endorsee"); err != nil {
		return err
	}
	if err := validateSum(p.Sum); err != nil {
		return err
	}
	return validateCurrency(p.Currency)
}

func (p OfferToSellPayload) Validate() error {
	if err := validateSignatory(p.Signatory); err != nil {
		return err
	}
	if err := validatePartyRef(p.Seller, "seller"); err != nil {
		return err
	}
	if err := validatePartyRef(p.Buyer, "buyer"); err != nil {
		return err
	}
	if err := validateSum(p.Sum); err != nil {
		return err
	}
	if err := validateCurrency(p.Currency); err != nil {
		return err
	}
	return validatePaymentAddress(p.PaymentAddress)
}

func (p SellPayload) Validate() error {
	if err := validateSignatory(p.Signatory); err != nil {
		return err
	}
	if err := validatePartyRef(p.Seller, "seller"); err != nil {
		return err
	}
	if err := validatePartyRef(p.Buyer, "buyer"); err != nil {
		return err
	}
	if err := validateSum(p.Sum); err != nil {
		return err
	}
	if err := validateCurrency(p.Currency); err != nil {
		return err
	}
	return validatePaymentAddress(p.PaymentAddress)
}

func validateRecourseReason(r RecourseReason) error {
	if r != RecourseAccept && r != RecoursePay {
		return billerrors.Payload("reason")
	}
	return nil
}

func (p RequestRecoursePayload) Validate() error {
	if err := validateSignatory(p.Signatory); err != nil {
		return err
	}
	if err := validatePartyRef(p.Recourser, "recourser"); err != nil {
		return err
	}
	if err := validatePartyRef(p.Recoursee, "recoursee"); err != nil {
		return err
	}
	if err := validateSum(p.Sum); err != nil {
		return err
	}
	if err := validateCurrency(p.Currency); err != nil {
		return err
	}
	return validateRecourseReason(p.Reason)
}

func (p RecoursePayload) Validate() error {
	if err := validateSignatory(p.Signatory); err != nil {
		return err
	}
	if err := validatePartyRef(p.Recourser, "recourser"); err != nil {
		return err
	}
	if err := validatePartyRef(p.Recoursee, "recoursee"); err != nil {
		return err
	}
	if err := validateSum(p.Sum); err != nil {
		return err
	}
	if err := validateCurrency(p.Currency); err != nil {
		return err
	}
	return validateRecourseReason(p.Reason)
}

func (p RejectToAcceptPayload) Validate() error {
	if err := validateSignatory(p.Signatory); err != nil {
		return err
	}
	return validatePartyRef(p.Rejecter, "rejecter")
}

func (p RejectToBuyPayload) Validate() error {
	if err := validateSignatory(p.Signatory); err != nil {
		return err
	}
	return validatePartyRef(p.Rejecter, "rejecter")
}

func (p RejectToPayPayload) Validate() error {
	if err := validateSignatory(p.Signatory); err != nil {
		return err
	}
	return validatePartyRef(p.Rejecter, "rejecter")
}

func (p RejectToPayRecoursePayload) Validate() error {
	if err := validateSignatory(p.Signatory); err != nil {
		return err
	}
	return validatePartyRef(p.Rejecter, "rejecter")
}
