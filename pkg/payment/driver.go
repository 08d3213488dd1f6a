// Copyright 2025 Certen Protocol
//
// Package payment implements the payment observation driver (C6): for
// bills waiting on an observed on-chain payment (offer-to-sell, recourse,
// or a plain request-to-pay), it asks a PaymentObserver whether the
// expected payment has landed and, if so, advances the bill — either by
// synthesizing the follow-on action through the executor (C4) or, for the
// request-to-pay case, by flipping the paid flag directly.
package payment

import (
	"context"
	"log"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/bitcredit/ebillchain/pkg/billblock"
	"github.com/bitcredit/ebillchain/pkg/billservice"
	"github.com/bitcredit/ebillchain/pkg/billstate"
	"github.com/bitcredit/ebillchain/pkg/billstore"
	"github.com/bitcredit/ebillchain/pkg/metrics"
)

// LocalIdentity is every node key the running process can act as: its own
// identity, plus the identity keys of any company it is a registered
// signatory for. The driver only ever synthesizes an action when the
// waiting state's principal resolves to one of these.
type LocalIdentity struct {
	NodeID     string
	PrivateKey *btcec.PrivateKey

	// CompanySignatories maps a company node_id this identity signs for
	// to the SignatoryRef recorded on its behalf.
	CompanySignatories map[string]billblock.SignatoryRef
}

// Driver runs the payment observation loop.
type Driver struct {
	ChainStore   billstore.BillChainStore
	KeyStore     billstore.BillKeyStore
	PaymentStore billstore.PaymentStateStore
	Observer     billstore.PaymentObserver
	Executor     *billservice.Executor
	Clock        billstore.Clock
	Interval     time.Duration
	Identity     LocalIdentity
	Metrics      *metrics.Registry
	Logger       *log.Logger

	stopChan chan struct{}
}

// NewDriver wires a Driver, defaulting to a component-prefixed stdlib
// logger. metricsRegistry may be nil, in which case observations skip
// publishing metrics.
func NewDriver(chainStore billstore.BillChainStore, keyStore billstore.BillKeyStore,
	paymentStore billstore.PaymentStateStore, observer billstore.PaymentObserver,
	executor *billservice.Executor, clock billstore.Clock, interval time.Duration, identity LocalIdentity,
	metricsRegistry *metrics.Registry) *Driver {
	return &Driver{
		ChainStore: chainStore, KeyStore: keyStore, PaymentStore: paymentStore,
		Observer: observer, Executor: executor, Clock: clock, Interval: interval, Identity: identity,
		Metrics:  metricsRegistry,
		Logger:   log.New(log.Writer(), "[PaymentDriver] ", log.LstdFlags),
		stopChan: make(chan struct{}),
	}
}

// Run blocks, scanning every Interval until ctx is done or Stop is called.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.Scan(ctx)
		}
	}
}

// Stop ends a running Run loop.
func (d *Driver) Stop() {
	close(d.stopChan)
}

// Scan performs one pass over the store's sell-waiting, recourse-waiting,
// and payment-waiting bill ids.
func (d *Driver) Scan(ctx context.Context) {
	now := d.Clock.Now()

	sellWaiting, err := d.PaymentStore.GetBillIDsWaitingForSellPayment(ctx)
	if err != nil {
		d.Logger.Printf("list sell-waiting bills: %v", err)
	}
	for _, billID := range sellWaiting {
		if err := d.observeSellWaiting(ctx, billID, now); err != nil {
			d.Logger.Printf("bill %s: %v", billID, err)
		}
	}

	recourseWaiting, err := d.PaymentStore.GetBillIDsWaitingForRecoursePayment(ctx)
	if err != nil {
		d.Logger.Printf("list recourse-waiting bills: %v", err)
	}
	for _, billID := range recourseWaiting {
		if err := d.observeRecourseWaiting(ctx, billID, now); err != nil {
			d.Logger.Printf("bill %s: %v", billID, err)
		}
	}

	paymentWaiting, err := d.PaymentStore.GetBillIDsWaitingForPayment(ctx)
	if err != nil {
		d.Logger.Printf("list payment-waiting bills: %v", err)
	}
	for _, billID := range paymentWaiting {
		if err := d.observeRequestToPay(ctx, billID, now); err != nil {
			d.Logger.Printf("bill %s: %v", billID, err)
		}
	}
}

func (d *Driver) loadWaitingState(ctx context.Context, billID string, now int64) (*billstate.BillState, error) {
	chain, err := d.ChainStore.GetChain(ctx, billID)
	if err != nil {
		return nil, err
	}
	keys, err := d.KeyStore.GetKeys(ctx, billID)
	if err != nil {
		return nil, err
	}
	paid, err := d.PaymentStore.IsPaid(ctx, billID)
	if err != nil {
		return nil, err
	}
	return billstate.Derive(chain, keys, now, paid)
}

// principalKeys resolves the signing keys this process should act with for
// a waiting state's principal (seller or recourser), per §4.6: act as the
// principal directly if it is the local identity, or as its signatory if
// the principal is a local company; otherwise the caller is a non-principal
// observer and must skip.
func (d *Driver) principalKeys(principal billblock.PartyRef) (billservice.CallerKeys, bool) {
	if principal.NodeID == d.Identity.NodeID {
		return billservice.CallerKeys{Signer: d.Identity.PrivateKey}, true
	}
	if sig, ok := d.Identity.CompanySignatories[principal.NodeID]; ok {
		sigCopy := sig
		return billservice.CallerKeys{
			Signatory:    d.Identity.PrivateKey,
			SignatoryRef: &sigCopy,
			Signer:       d.Identity.PrivateKey,
		}, true
	}
	return billservice.CallerKeys{}, false
}

func (d *Driver) observeSellWaiting(ctx context.Context, billID string, now int64) error {
	state, err := d.loadWaitingState(ctx, billID, now)
	if err != nil {
		return err
	}
	if state.Waiting.Kind != billstate.WaitingOfferToSell || state.Waiting.Info == nil {
		return nil
	}
	info := state.Waiting.Info

	paid, amount, err := d.Observer.CheckPaid(ctx, info.PaymentAddress, info.Sum)
	if err != nil {
		return err
	}
	if !paid || amount == 0 {
		return nil
	}
	if d.Metrics != nil {
		d.Metrics.PaymentsObserved.Inc()
	}

	callerKeys, isPrincipal := d.principalKeys(info.Seller)
	if !isPrincipal {
		return nil
	}

	action := billservice.SellAction{
		Seller: info.Seller, Buyer: info.Buyer, Sum: info.Sum, Currency: info.Currency, PaymentAddress: info.PaymentAddress,
	}
	_, err = d.Executor.Execute(ctx, billID, action, callerKeys, now)
	return err
}

func (d *Driver) observeRecourseWaiting(ctx context.Context, billID string, now int64) error {
	state, err := d.loadWaitingState(ctx, billID, now)
	if err != nil {
		return err
	}
	if state.Waiting.Kind != billstate.WaitingRecourse || state.Waiting.Info == nil {
		return nil
	}
	info := state.Waiting.Info

	billKeys, err := d.KeyStore.GetKeys(ctx, billID)
	if err != nil {
		return err
	}
	address, err := d.Observer.PaymentAddressFor(billKeys.PublicKey, mustPublicKey(info.Seller))
	if err != nil {
		return err
	}

	paid, amount, err := d.Observer.CheckPaid(ctx, address, info.Sum)
	if err != nil {
		return err
	}
	if !paid || amount == 0 {
		return nil
	}
	if d.Metrics != nil {
		d.Metrics.PaymentsObserved.Inc()
	}

	callerKeys, isPrincipal := d.principalKeys(info.Seller)
	if !isPrincipal {
		return nil
	}

	action := billservice.RecourseAction{
		Recourser: info.Seller, Recoursee: info.Buyer, Sum: info.Sum, Currency: info.Currency, Reason: info.Reason,
	}
	_, err = d.Executor.Execute(ctx, billID, action, callerKeys, now)
	return err
}

// observeRequestToPay implements §4.6's carve-out: a plain request-to-pay
// never appends a block on observed payment — it only flips the paid flag,
// since the bill may still be independently rejected or timed out.
func (d *Driver) observeRequestToPay(ctx context.Context, billID string, now int64) error {
	state, err := d.loadWaitingState(ctx, billID, now)
	if err != nil {
		return err
	}
	if state.Waiting.Kind != billstate.WaitingRequestToPay {
		return nil
	}

	billKeys, err := d.KeyStore.GetKeys(ctx, billID)
	if err != nil {
		return err
	}
	address, err := d.Observer.PaymentAddressFor(billKeys.PublicKey, mustPublicKey(billblock.PartyRef{NodeID: state.HolderNodeID}))
	if err != nil {
		return err
	}

	// payment expectation for a request-to-pay is the bill's face sum,
	// read from the Issue block.
	chain, err := d.ChainStore.GetChain(ctx, billID)
	if err != nil {
		return err
	}
	issue, err := chain.GetFirstBillData(billKeys)
	if err != nil {
		return err
	}
	paid, amount, err := d.Observer.CheckPaid(ctx, address, issue.Sum)
	if err != nil {
		return err
	}
	if !paid || amount == 0 {
		return nil
	}
	if d.Metrics != nil {
		d.Metrics.PaymentsObserved.Inc()
	}

	return d.PaymentStore.SetToPaid(ctx, billID, address)
}

func mustPublicKey(p billblock.PartyRef) *btcec.PublicKey {
	pub, err := p.PublicKey()
	if err != nil {
		return nil
	}
	return pub
}
