// Copyright 2025 Certen Protocol

package deadline

import (
	"context"
	"testing"
	"time"

	"github.com/bitcredit/ebillchain/pkg/billblock"
	"github.com/bitcredit/ebillchain/pkg/billcrypto"
	"github.com/bitcredit/ebillchain/pkg/billstate"
	"github.com/bitcredit/ebillchain/pkg/billstore"
	"github.com/bitcredit/ebillchain/pkg/metrics"
)

// buildRequestToAcceptChain stores the Issue block of a new bill in store and
// returns the RequestToAccept block that follows it; both carry timestamp ts.
func buildRequestToAcceptChain(t *testing.T, store *billstore.MemoryChainStore, billID string, ts int64) billblock.Block {
	t.Helper()
	billKP, err := billcrypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	requesterKP, err := billcrypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	requester := billblock.PartyRef{
		Kind: billblock.PartyPerson, NodeID: billcrypto.NodeIDHex(requesterKP.PublicKey), Name: "requester",
		PostalAddress: billblock.PostalAddress{Country: "CH", City: "Zurich", Address: "x"},
	}
	keys := billblock.SignerKeys{Signer: requesterKP.PrivateKey, Bill: billKP.PrivateKey}
	issue := billblock.IssuePayload{
		Drawer: requester, Drawee: requester, Payee: requester,
		Sum: 1000, Currency: "usd", IssueDate: "2026-01-01", MaturityDate: "2026-06-01",
	}
	issueBlock, err := billblock.BuildBlock(billID, 1, "", ts, billblock.OpIssue, issue,
		billKP.PublicKey, keys, requesterKP.PublicKey, billKP.PrivateKey)
	if err != nil {
		t.Fatalf("BuildBlock issue: %v", err)
	}
	if err := store.AddBlock(context.Background(), billID, *issueBlock); err != nil {
		t.Fatalf("AddBlock issue: %v", err)
	}
	payload := billblock.RequestToAcceptPayload{Requester: requester}
	block, err := billblock.BuildBlock(billID, 2, issueBlock.Hash, ts, billblock.OpRequestToAccept, payload,
		billKP.PublicKey, keys, nil, nil)
	if err != nil {
		t.Fatalf("BuildBlock: %v", err)
	}
	return *block
}

func TestScanDetectsLapsedDeadlineOnce(t *testing.T) {
	chainStore := billstore.NewMemoryChainStore()
	notify := billstore.NewMemoryNotificationStore()
	reg := metrics.NewRegistry()

	block := buildRequestToAcceptChain(t, chainStore, "bill-1", 1000)
	if err := chainStore.AddBlock(context.Background(), "bill-1", block); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}

	var fired []string
	sink := func(_ context.Context, billID string, blockID uint64, op billblock.OpCode) {
		fired = append(fired, billID)
	}

	clock := billstore.FixedClock(1000 + billstate.AcceptDeadlineSeconds)
	engine := NewEngine(chainStore, notify, clock, time.Minute, sink, reg)

	engine.Scan(context.Background())
	if len(fired) != 1 || fired[0] != "bill-1" {
		t.Fatalf("expected a single detection for bill-1, got %v", fired)
	}

	// a second scan at the same instant must not re-fire: the notification
	// store already recorded this (billID, blockID, op) as sent.
	engine.Scan(context.Background())
	if len(fired) != 1 {
		t.Fatalf("expected no re-detection on a repeat scan, got %v", fired)
	}
}

func TestScanSkipsChainsBeforeDeadline(t *testing.T) {
	chainStore := billstore.NewMemoryChainStore()
	notify := billstore.NewMemoryNotificationStore()

	block := buildRequestToAcceptChain(t, chainStore, "bill-1", 1000)
	if err := chainStore.AddBlock(context.Background(), "bill-1", block); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}

	var fired []string
	sink := func(_ context.Context, billID string, blockID uint64, op billblock.OpCode) {
		fired = append(fired, billID)
	}

	clock := billstore.FixedClock(1000 + billstate.AcceptDeadlineSeconds - 1)
	engine := NewEngine(chainStore, notify, clock, time.Minute, sink, nil)
	engine.Scan(context.Background())
	if len(fired) != 0 {
		t.Fatalf("expected no detection before the deadline, got %v", fired)
	}
}

func TestScanIgnoresChainsWithNoDeadline(t *testing.T) {
	chainStore := billstore.NewMemoryChainStore()
	notify := billstore.NewMemoryNotificationStore()

	billKP, err := billcrypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	drawerKP, err := billcrypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	drawer := billblock.PartyRef{
		Kind: billblock.PartyPerson, NodeID: billcrypto.NodeIDHex(drawerKP.PublicKey), Name: "drawer",
		PostalAddress: billblock.PostalAddress{Country: "CH", City: "Zurich", Address: "x"},
	}
	issue := billblock.IssuePayload{
		Drawer: drawer, Drawee: drawer, Payee: drawer,
		Sum: 100, Currency: "usd", IssueDate: "2026-01-01", MaturityDate: "2026-06-01",
	}
	keys := billblock.SignerKeys{Signer: drawerKP.PrivateKey, Bill: billKP.PrivateKey}
	block, err := billblock.BuildBlock("bill-2", 1, "", 1000, billblock.OpIssue, issue,
		billKP.PublicKey, keys, drawerKP.PublicKey, billKP.PrivateKey)
	if err != nil {
		t.Fatalf("BuildBlock: %v", err)
	}
	if err := chainStore.AddBlock(context.Background(), "bill-2", *block); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}

	var fired []string
	sink := func(_ context.Context, billID string, blockID uint64, op billblock.OpCode) {
		fired = append(fired, billID)
	}
	clock := billstore.FixedClock(1000 + billstate.AcceptDeadlineSeconds*10)
	engine := NewEngine(chainStore, notify, clock, time.Minute, sink, nil)
	engine.Scan(context.Background())
	if len(fired) != 0 {
		t.Fatalf("expected an Issue-tailed chain to never be flagged, got %v", fired)
	}
}

func TestRunStopsOnStop(t *testing.T) {
	chainStore := billstore.NewMemoryChainStore()
	notify := billstore.NewMemoryNotificationStore()
	clock := billstore.FixedClock(0)
	engine := NewEngine(chainStore, notify, clock, time.Millisecond, nil, nil)

	done := make(chan struct{})
	go func() {
		engine.Run(context.Background())
		close(done)
	}()
	engine.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after Stop")
	}
}
