// Copyright 2025 Certen Protocol

package billblock

import "testing"

// a well-known mainnet P2PKH address, used wherever a payload needs a
// decodable payment_address.
const validBTCAddress = "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"

func validParty(t *testing.T, name string) PartyRef {
	t.Helper()
	ref, _ := testParty(t, name)
	return ref
}

func TestIssuePayloadValidate(t *testing.T) {
	base := IssuePayload{
		Drawer: validParty(t, "drawer"), Drawee: validParty(t, "drawee"), Payee: validParty(t, "payee"),
		Sum: 100, Currency: "usd", IssueDate: "2026-01-01", MaturityDate: "2026-06-01",
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(p IssuePayload) IssuePayload
	}{
		{"zero sum", func(p IssuePayload) IssuePayload { p.Sum = 0; return p }},
		{"bad currency", func(p IssuePayload) IssuePayload { p.Currency = "xyz"; return p }},
		{"bad issue date", func(p IssuePayload) IssuePayload { p.IssueDate = "not-a-date"; return p }},
		{"bad maturity date", func(p IssuePayload) IssuePayload { p.MaturityDate = "06/01/2026"; return p }},
		{"empty drawer name", func(p IssuePayload) IssuePayload { p.Drawer.Name = ""; return p }},
		{"empty drawee postal address", func(p IssuePayload) IssuePayload { p.Drawee.PostalAddress.City = ""; return p }},
		{"invalid payee node id", func(p IssuePayload) IssuePayload { p.Payee.NodeID = "not-hex"; return p }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := c.mutate(base).Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestOfferToSellPayloadRequiresDecodableAddress(t *testing.T) {
	base := OfferToSellPayload{
		Seller: validParty(t, "seller"), Buyer: validParty(t, "buyer"),
		Sum: 100, Currency: "usd", PaymentAddress: validBTCAddress,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}

	bad := base
	bad.PaymentAddress = "not-a-bitcoin-address"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected validation error for undecodable payment_address")
	}

	empty := base
	empty.PaymentAddress = ""
	if err := empty.Validate(); err == nil {
		t.Fatalf("expected validation error for empty payment_address")
	}
}

func TestSellPayloadRequiresDecodableAddress(t *testing.T) {
	base := SellPayload{
		Seller: validParty(t, "seller"), Buyer: validParty(t, "buyer"),
		Sum: 100, Currency: "usd", PaymentAddress: validBTCAddress,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
	bad := base
	bad.PaymentAddress = "garbage"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected validation error for undecodable payment_address")
	}
}

func TestRecoursePayloadReasonMustBeRecognized(t *testing.T) {
	base := RecoursePayload{
		Recourser: validParty(t, "recourser"), Recoursee: validParty(t, "recoursee"),
		Sum: 100, Currency: "usd", Reason: RecourseAccept,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}

	base.Reason = RecoursePay
	if err := base.Validate(); err != nil {
		t.Fatalf("expected Pay reason to be valid, got %v", err)
	}

	base.Reason = "Bogus"
	if err := base.Validate(); err == nil {
		t.Fatalf("expected validation error for unrecognized reason")
	}
}

func TestAcceptPayloadSignatoryOptionalButValidatedWhenPresent(t *testing.T) {
	p := AcceptPayload{Accepter: validParty(t, "accepter")}
	if err := p.Validate(); err != nil {
		t.Fatalf("expected signatory-less payload to be valid, got %v", err)
	}

	p.Signatory = &SignatoryRef{NodeID: "not-hex", Name: "human"}
	if err := p.Validate(); err == nil {
		t.Fatalf("expected validation error for malformed signatory node_id")
	}

	p.Signatory.NodeID = ""
	p.Signatory.Name = ""
	if err := p.Validate(); err == nil {
		t.Fatalf("expected validation error for missing signatory name")
	}
}

func TestRejectPayloadsRequireValidRejecter(t *testing.T) {
	rejecter := validParty(t, "rejecter")
	payloads := []interface{ Validate() error }{
		RejectToAcceptPayload{Rejecter: rejecter},
		RejectToBuyPayload{Rejecter: rejecter},
		RejectToPayPayload{Rejecter: rejecter},
		RejectToPayRecoursePayload{Rejecter: rejecter},
	}
	for _, p := range payloads {
		if err := p.Validate(); err != nil {
			t.Errorf("%T: expected valid payload, got %v", p, err)
		}
	}

	badRejecter := rejecter
	badRejecter.Kind = "Alien"
	if err := (RejectToAcceptPayload{Rejecter: badRejecter}).Validate(); err == nil {
		t.Fatalf("expected validation error for unrecognized party kind")
	}
}
