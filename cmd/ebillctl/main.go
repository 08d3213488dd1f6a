// Copyright 2025 Certen Protocol
//
// ebillctl issues a bill and walks it through a scripted lifecycle against
// in-memory stores, for manual smoke-testing of the engine end to end.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil"

	"github.com/bitcredit/ebillchain/pkg/billblock"
	"github.com/bitcredit/ebillchain/pkg/billcrypto"
	"github.com/bitcredit/ebillchain/pkg/billservice"
	"github.com/bitcredit/ebillchain/pkg/billstate"
	"github.com/bitcredit/ebillchain/pkg/billstore"
	"github.com/bitcredit/ebillchain/pkg/config"
	"github.com/bitcredit/ebillchain/pkg/metrics"
)

// demoObserver is a deterministic stand-in for the real Bitcoin payment
// observer, which is out of core scope (§1 Out of scope — "Bitcoin chain
// observation"). It never talks to a node: CheckPaid reports the sum
// already marked paid via MarkPaid, so the scripted scenarios below can
// exercise the offer-to-sell and recourse payment paths without a live
// chain.
type demoObserver struct {
	paid map[string]uint64
}

func newDemoObserver() *demoObserver {
	return &demoObserver{paid: make(map[string]uint64)}
}

func (o *demoObserver) MarkPaid(address string, amount uint64) {
	o.paid[address] = amount
}

func (o *demoObserver) CheckPaid(_ context.Context, address string, expectedSum uint64) (bool, uint64, error) {
	amount, ok := o.paid[address]
	if !ok || amount < expectedSum {
		return false, 0, nil
	}
	return true, amount, nil
}

func (o *demoObserver) PaymentAddressFor(billPublicKey, holderPublicKey *btcec.PublicKey) (string, error) {
	keyHash := btcutil.Hash160(append(billPublicKey.SerializeCompressed(), holderPublicKey.SerializeCompressed()...))
	addr, err := btcutil.NewAddressPubKeyHash(keyHash, &chaincfg.MainNetParams)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags)

	scenario := flag.String("scenario", "accept-happy-path", "scripted lifecycle to run: accept-happy-path, offer-to-sell, request-to-pay-timeout, recourse-after-reject")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if cfg.AcceptDeadlineSeconds != 0 {
		billstate.SetDeadlines(cfg.AcceptDeadlineSeconds, cfg.PaymentDeadlineSeconds, cfg.RecourseDeadlineSeconds)
	}

	chainStore := billstore.NewMemoryChainStore()
	keyStore := billstore.NewMemoryKeyStore()
	paymentStore := billstore.NewMemoryPaymentStore()
	notificationStore := billstore.NewMemoryNotificationStore()
	observer := newDemoObserver()
	reg := metrics.NewRegistry()

	executor := billservice.NewExecutor(chainStore, keyStore, paymentStore, notificationStore, observer, reg)

	clock := billstore.SystemClock{}
	now := clock.Now()

	drawer := party("drawer-co", billblock.PartyCompany)
	drawee := party("drawee-gmbh", billblock.PartyCompany)
	payee := party("payee-person", billblock.PartyPerson)

	log.Printf("[ebillctl] issuing bill: drawer=%s drawee=%s payee=%s", drawer.ref.NodeID, drawee.ref.NodeID, payee.ref.NodeID)

	_, billID, err := executor.IssueNewBill(context.Background(),
		drawer.ref, drawee.ref, payee.ref,
		1_000_00, "usd", time.Unix(now, 0).UTC().Format("2006-01-02"), time.Unix(now+30*86400, 0).UTC().Format("2006-01-02"),
		[]string{"Zurich"}, "en", nil,
		billservice.CallerKeys{Signer: drawer.priv}, now)
	if err != nil {
		log.Fatalf("issue bill: %v", err)
	}
	log.Printf("[ebillctl] issued bill_id=%s", billID)

	switch *scenario {
	case "accept-happy-path":
		runAcceptHappyPath(executor, billID, drawee, now)
	case "request-to-pay-timeout":
		runRequestToPayTimeout(executor, billID, drawee, payee, now)
	case "offer-to-sell":
		runOfferToSell(executor, keyStore, observer, billID, payee, now)
	case "recourse-after-reject":
		runRecourseAfterReject(executor, billID, drawer, drawee, payee, now)
	default:
		log.Fatalf("unknown scenario %q", *scenario)
	}

	printState(chainStore, keyStore, paymentStore, billID, clock.Now())
}

type identity struct {
	ref  billblock.PartyRef
	priv *btcec.PrivateKey
	pub  *btcec.PublicKey
}

func party(label string, kind billblock.PartyKind) identity {
	kp, err := billcrypto.GenerateKeyPair()
	if err != nil {
		log.Fatalf("generate key for %s: %v", label, err)
	}
	ref := billblock.PartyRef{
		Kind:   kind,
		NodeID: billcrypto.NodeIDHex(kp.PublicKey),
		Name:   label,
		PostalAddress: billblock.PostalAddress{
			Country: "CH", City: "Zurich", Zip: "8000", Address: label + "-street 1",
		},
	}
	return identity{ref: ref, priv: kp.PrivateKey, pub: kp.PublicKey}
}

func runAcceptHappyPath(executor *billservice.Executor, billID string, drawee identity, now int64) {
	step(executor, billID, billservice.AcceptAction{Accepter: drawee.ref}, drawee, now)
}

func runRequestToPayTimeout(executor *billservice.Executor, billID string, drawee, payee identity, now int64) {
	step(executor, billID, billservice.RequestToPayAction{Requester: payee.ref, Currency: "usd"}, payee, now)
	log.Printf("[ebillctl] simulating %d seconds passing; the deadline engine would flag this as timed out", billstate.PaymentDeadlineSeconds)
}

func runOfferToSell(executor *billservice.Executor, keyStore billstore.BillKeyStore, observer *demoObserver, billID string, payee identity, now int64) {
	buyer := party("buyer-person", billblock.PartyPerson)
	step(executor, billID, billservice.OfferToSellAction{Seller: payee.ref, Buyer: buyer.ref, Sum: 1_000_00, Currency: "usd"}, payee, now)

	billKeys, err := keyStore.GetKeys(context.Background(), billID)
	if err != nil {
		log.Fatalf("get keys: %v", err)
	}
	address, err := observer.PaymentAddressFor(billKeys.PublicKey, payee.pub)
	if err != nil {
		log.Fatalf("derive payment address: %v", err)
	}
	observer.MarkPaid(address, 1_000_00)
	log.Printf("[ebillctl] a running payment.Driver would now observe the payment and synthesize Sell")
}

func runRecourseAfterReject(executor *billservice.Executor, billID string, drawer, drawee, payee identity, now int64) {
	step(executor, billID, billservice.RequestToAcceptAction{Requester: payee.ref}, payee, now)
	step(executor, billID, billservice.RejectToAcceptAction{Rejecter: drawee.ref}, drawee, now)
	step(executor, billID, billservice.RequestRecourseAction{
		Recourser: payee.ref, Recoursee: drawer.ref, Sum: 1_000_00, Currency: "usd", Reason: billblock.RecourseAccept,
	}, payee, now)
}

func step(executor *billservice.Executor, billID string, action billservice.Action, caller identity, now int64) {
	if _, err := executor.Execute(context.Background(), billID, action, billservice.CallerKeys{Signer: caller.priv}, now); err != nil {
		log.Fatalf("execute %T: %v", action, err)
	}
	log.Printf("[ebillctl] applied %T", action)
}

func printState(chainStore billstore.BillChainStore, keyStore billstore.BillKeyStore, paymentStore billstore.PaymentStateStore, billID string, now int64) {
	ctx := context.Background()
	chain, err := chainStore.GetChain(ctx, billID)
	if err != nil {
		log.Fatalf("get chain: %v", err)
	}
	keys, err := keyStore.GetKeys(ctx, billID)
	if err != nil {
		log.Fatalf("get keys: %v", err)
	}
	paid, err := paymentStore.IsPaid(ctx, billID)
	if err != nil {
		log.Fatalf("is paid: %v", err)
	}
	state, err := billstate.Derive(chain, keys, now, paid)
	if err != nil {
		log.Fatalf("derive state: %v", err)
	}

	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.Fatalf("marshal state: %v", err)
	}
	fmt.Println(string(out))
}
