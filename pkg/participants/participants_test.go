// Copyright 2025 Certen Protocol

package participants

import (
	"testing"

	"github.com/bitcredit/ebillchain/pkg/billblock"
	"github.com/bitcredit/ebillchain/pkg/billchain"
	"github.com/bitcredit/ebillchain/pkg/billcrypto"
	"github.com/bitcredit/ebillchain/pkg/billstate"
)

type fixtureParty struct {
	ref billblock.PartyRef
	kp  *billcrypto.KeyPair
}

func newFixtureParty(t *testing.T, name string) fixtureParty {
	t.Helper()
	kp, err := billcrypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return fixtureParty{
		ref: billblock.PartyRef{
			Kind: billblock.PartyPerson, NodeID: billcrypto.NodeIDHex(kp.PublicKey), Name: name,
			PostalAddress: billblock.PostalAddress{Country: "CH", City: "Zurich", Address: name + " street 1"},
		},
		kp: kp,
	}
}

// multiHopFixture builds a chain with three sequential endorsements:
// payee -> party2 -> party3 -> party4, with a drawer distinct from the
// payee, so PastEndorsees exercises both the fold-back and the
// drawer-as-implicit-first-holder rule.
type multiHopFixture struct {
	chain  *billchain.Chain
	keys   billchain.BillKeys
	drawer fixtureParty
	drawee fixtureParty
	payee  fixtureParty
	party2 fixtureParty
	party3 fixtureParty
	party4 fixtureParty
}

func newMultiHopFixture(t *testing.T) multiHopFixture {
	t.Helper()
	billKP, err := billcrypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	drawer := newFixtureParty(t, "drawer")
	drawee := newFixtureParty(t, "drawee")
	payee := newFixtureParty(t, "payee")
	party2 := newFixtureParty(t, "party2")
	party3 := newFixtureParty(t, "party3")
	party4 := newFixtureParty(t, "party4")

	issue := billblock.IssuePayload{
		Drawer: drawer.ref, Drawee: drawee.ref, Payee: payee.ref,
		Sum: 1000, Currency: "usd", IssueDate: "2026-01-01", MaturityDate: "2026-06-01",
	}
	issueKeys := billblock.SignerKeys{Signer: drawer.kp.PrivateKey, Bill: billKP.PrivateKey}
	genesis, err := billblock.BuildBlock("bill-1", 1, "", 1000, billblock.OpIssue, issue,
		billKP.PublicKey, issueKeys, payee.kp.PublicKey, billKP.PrivateKey)
	if err != nil {
		t.Fatalf("BuildBlock issue: %v", err)
	}
	chain, err := billchain.NewGenesisChain("bill-1", *genesis)
	if err != nil {
		t.Fatalf("NewGenesisChain: %v", err)
	}

	endorse := func(prev *billblock.Block, endorser, endorsee fixtureParty, ts int64) *billblock.Block {
		payload := billblock.EndorsePayload{Endorser: endorser.ref, Endorsee: endorsee.ref}
		keys := billblock.SignerKeys{Signer: endorser.kp.PrivateKey, Bill: billKP.PrivateKey}
		block, err := billblock.BuildBlock("bill-1", prev.ID+1, prev.Hash, ts, billblock.OpEndorse, payload,
			billKP.PublicKey, keys, endorsee.kp.PublicKey, billKP.PrivateKey)
		if err != nil {
			t.Fatalf("BuildBlock endorse: %v", err)
		}
		return block
	}

	b2 := endorse(genesis, payee, party2, 2000)
	if ok, err := chain.TryAdd(*b2); !ok {
		t.Fatalf("TryAdd endorse 1: %v", err)
	}
	b3 := endorse(b2, party2, party3, 3000)
	if ok, err := chain.TryAdd(*b3); !ok {
		t.Fatalf("TryAdd endorse 2: %v", err)
	}
	b4 := endorse(b3, party3, party4, 4000)
	if ok, err := chain.TryAdd(*b4); !ok {
		t.Fatalf("TryAdd endorse 3: %v", err)
	}

	return multiHopFixture{
		chain: chain, keys: billchain.BillKeys{PublicKey: billKP.PublicKey, PrivateKey: billKP.PrivateKey},
		drawer: drawer, drawee: drawee, payee: payee, party2: party2, party3: party3, party4: party4,
	}
}

func assertOrder(t *testing.T, got []billblock.PartyRef, want ...fixtureParty) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d past endorsees, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].NodeID != w.ref.NodeID {
			t.Fatalf("position %d: expected %s, got %s", i, w.ref.Name, got[i].Name)
		}
	}
}

func TestPastEndorseesMultiHopMostRecentFirstIncludingDrawer(t *testing.T) {
	f := newMultiHopFixture(t)

	past, err := PastEndorsees(f.chain, f.keys, f.party4.ref.NodeID)
	if err != nil {
		t.Fatalf("PastEndorsees: %v", err)
	}
	assertOrder(t, past, f.party3, f.party2, f.payee, f.drawer)
}

func TestPastEndorseesMidChainCallerSeesOnlyItsOwnPrefix(t *testing.T) {
	f := newMultiHopFixture(t)

	past, err := PastEndorsees(f.chain, f.keys, f.party2.ref.NodeID)
	if err != nil {
		t.Fatalf("PastEndorsees: %v", err)
	}
	assertOrder(t, past, f.payee, f.drawer)
}

func TestIsPastEndorseeTrueForAncestorFalseForStranger(t *testing.T) {
	f := newMultiHopFixture(t)
	stranger := newFixtureParty(t, "stranger")

	ok, err := IsPastEndorsee(f.chain, f.keys, f.party4.ref.NodeID, f.party2.ref.NodeID)
	if err != nil {
		t.Fatalf("IsPastEndorsee: %v", err)
	}
	if !ok {
		t.Fatalf("expected party2 to be a past endorsee of party4")
	}

	ok, err = IsPastEndorsee(f.chain, f.keys, f.party4.ref.NodeID, stranger.ref.NodeID)
	if err != nil {
		t.Fatalf("IsPastEndorsee: %v", err)
	}
	if ok {
		t.Fatalf("expected an unrelated stranger to not be a past endorsee")
	}
}

func TestPastEndorseesOriginalPayeeGetsOnlyDrawer(t *testing.T) {
	f := newMultiHopFixture(t)

	past, err := PastEndorsees(f.chain, f.keys, f.payee.ref.NodeID)
	if err != nil {
		t.Fatalf("PastEndorsees: %v", err)
	}
	assertOrder(t, past, f.drawer)
}

// selfDrawnFixture builds a chain where the drawer draws on itself
// (drawer == drawee) but the payee is a third party, then endorses once to
// party2. §4.4's "drawer counts as first holder" rule keys off drawer vs.
// drawee, not drawer vs. payee — a self-drawn bill must never surface the
// drawer/drawee as a past endorsee just because it differs from the payee.
type selfDrawnFixture struct {
	chain        *billchain.Chain
	keys         billchain.BillKeys
	drawerDrawee fixtureParty
	payee        fixtureParty
	party2       fixtureParty
}

func newSelfDrawnFixture(t *testing.T) selfDrawnFixture {
	t.Helper()
	billKP, err := billcrypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	drawerDrawee := newFixtureParty(t, "drawer-drawee")
	payee := newFixtureParty(t, "payee")
	party2 := newFixtureParty(t, "party2")

	issue := billblock.IssuePayload{
		Drawer: drawerDrawee.ref, Drawee: drawerDrawee.ref, Payee: payee.ref,
		Sum: 1000, Currency: "usd", IssueDate: "2026-01-01", MaturityDate: "2026-06-01",
	}
	issueKeys := billblock.SignerKeys{Signer: drawerDrawee.kp.PrivateKey, Bill: billKP.PrivateKey}
	genesis, err := billblock.BuildBlock("bill-self-drawn", 1, "", 1000, billblock.OpIssue, issue,
		billKP.PublicKey, issueKeys, payee.kp.PublicKey, billKP.PrivateKey)
	if err != nil {
		t.Fatalf("BuildBlock issue: %v", err)
	}
	chain, err := billchain.NewGenesisChain("bill-self-drawn", *genesis)
	if err != nil {
		t.Fatalf("NewGenesisChain: %v", err)
	}

	endorsePayload := billblock.EndorsePayload{Endorser: payee.ref, Endorsee: party2.ref}
	endorseKeys := billblock.SignerKeys{Signer: payee.kp.PrivateKey, Bill: billKP.PrivateKey}
	b2, err := billblock.BuildBlock("bill-self-drawn", genesis.ID+1, genesis.Hash, 2000, billblock.OpEndorse,
		endorsePayload, billKP.PublicKey, endorseKeys, party2.kp.PublicKey, billKP.PrivateKey)
	if err != nil {
		t.Fatalf("BuildBlock endorse: %v", err)
	}
	if ok, err := chain.TryAdd(*b2); !ok {
		t.Fatalf("TryAdd endorse: %v", err)
	}

	return selfDrawnFixture{
		chain: chain, keys: billchain.BillKeys{PublicKey: billKP.PublicKey, PrivateKey: billKP.PrivateKey},
		drawerDrawee: drawerDrawee, payee: payee, party2: party2,
	}
}

func TestPastEndorseesSelfDrawnBillExcludesDrawerDrawee(t *testing.T) {
	f := newSelfDrawnFixture(t)

	past, err := PastEndorsees(f.chain, f.keys, f.party2.ref.NodeID)
	if err != nil {
		t.Fatalf("PastEndorsees: %v", err)
	}
	assertOrder(t, past, f.payee)

	isPast, err := IsPastEndorsee(f.chain, f.keys, f.party2.ref.NodeID, f.drawerDrawee.ref.NodeID)
	if err != nil {
		t.Fatalf("IsPastEndorsee: %v", err)
	}
	if isPast {
		t.Fatalf("expected the self-drawn drawer/drawee to not be a recourse target, got isPastEndorsee=true")
	}

	past, err = PastEndorsees(f.chain, f.keys, f.payee.ref.NodeID)
	if err != nil {
		t.Fatalf("PastEndorsees: %v", err)
	}
	if len(past) != 0 {
		t.Fatalf("expected the original payee of a self-drawn bill to have no past endorsees, got %+v", past)
	}
}

func TestAllParticipantsIncludesEveryPartyOnChain(t *testing.T) {
	f := newMultiHopFixture(t)

	all, err := AllParticipants(f.chain, f.keys)
	if err != nil {
		t.Fatalf("AllParticipants: %v", err)
	}
	want := map[string]bool{
		f.drawer.ref.NodeID: true, f.drawee.ref.NodeID: true, f.payee.ref.NodeID: true,
		f.party2.ref.NodeID: true, f.party3.ref.NodeID: true, f.party4.ref.NodeID: true,
	}
	for _, p := range all {
		delete(want, p.NodeID)
	}
	if len(want) != 0 {
		t.Fatalf("AllParticipants missed: %v", want)
	}
}

func TestRolesForReturnsAllMatchingRolesOrNone(t *testing.T) {
	f := newMultiHopFixture(t)
	state, err := billstate.Derive(f.chain, f.keys, 5000, false)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	roles := RolesFor(state, f.party4.ref.NodeID)
	if len(roles) != 1 || roles[0] != RoleHolder {
		t.Fatalf("expected party4 (the current holder) to have role Holder, got %v", roles)
	}

	roles = RolesFor(state, f.drawer.ref.NodeID)
	if len(roles) != 1 || roles[0] != RoleDrawer {
		t.Fatalf("expected the drawer to have role Drawer, got %v", roles)
	}

	stranger := newFixtureParty(t, "stranger")
	roles = RolesFor(state, stranger.ref.NodeID)
	if len(roles) != 1 || roles[0] != RoleNone {
		t.Fatalf("expected an unrelated node to have role None, got %v", roles)
	}
}
