// Copyright 2025 Certen Protocol

package billservice

import (
	"context"
	"log"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"

	"github.com/bitcredit/ebillchain/pkg/billblock"
	"github.com/bitcredit/ebillchain/pkg/billchain"
	"github.com/bitcredit/ebillchain/pkg/billcrypto"
	"github.com/bitcredit/ebillchain/pkg/billerrors"
	"github.com/bitcredit/ebillchain/pkg/billstate"
	"github.com/bitcredit/ebillchain/pkg/billstore"
	"github.com/bitcredit/ebillchain/pkg/metrics"
)

// CallerKeys is the signing material supplied by whoever invokes Execute:
// the caller's own identity key, plus an optional signatory key when the
// caller is acting as a company's signatory. The bill's own key is never
// supplied by the caller — Execute loads it from the key store.
type CallerKeys struct {
	Signatory    *btcec.PrivateKey        // optional
	SignatoryRef *billblock.SignatoryRef  // must be set iff Signatory is set
	Signer       *btcec.PrivateKey
}

// Executor is the single path through which a bill chain is appended to,
// whether the caller is an external request or a background loop (§9
// "background loops as callers").
type Executor struct {
	ChainStore        billstore.BillChainStore
	KeyStore          billstore.BillKeyStore
	PaymentStore      billstore.PaymentStateStore
	NotificationStore billstore.NotificationStore
	Observer          billstore.PaymentObserver
	Metrics           *metrics.Registry
	Logger            *log.Logger
}

// NewExecutor wires an Executor's store dependencies, defaulting to a
// component-prefixed stdlib logger when none is supplied. metricsRegistry
// may be nil, in which case Execute skips publishing metrics.
func NewExecutor(chainStore billstore.BillChainStore, keyStore billstore.BillKeyStore,
	paymentStore billstore.PaymentStateStore, notificationStore billstore.NotificationStore,
	observer billstore.PaymentObserver, metricsRegistry *metrics.Registry) *Executor {
	return &Executor{
		ChainStore:        chainStore,
		KeyStore:          keyStore,
		PaymentStore:      paymentStore,
		NotificationStore: notificationStore,
		Observer:          observer,
		Metrics:           metricsRegistry,
		Logger:            log.New(log.Writer(), "[Executor] ", log.LstdFlags),
	}
}

type indexesWaiting interface {
	IndexWaiting(billID string, latestOp billblock.OpCode)
}

// Execute validates action against the bill's current derived state and,
// if it is legal, builds, signs, and appends the next block (§4.4).
// Validation errors leave the chain untouched.
func (e *Executor) Execute(ctx context.Context, billID string, action Action, callerKeys CallerKeys, now int64) (_ *billchain.Chain, err error) {
	defer func() {
		if err != nil && e.Metrics != nil {
			e.Metrics.ExecuteErrors.Inc()
		}
	}()

	chain, err := e.ChainStore.GetChain(ctx, billID)
	if err != nil {
		return nil, err
	}
	billKeys, err := e.KeyStore.GetKeys(ctx, billID)
	if err != nil {
		return nil, err
	}

	paid, err := e.PaymentStore.IsPaid(ctx, billID)
	if err != nil {
		return nil, billerrors.Wrap(billerrors.KindStoreIO, err)
	}

	state, err := billstate.Derive(chain, billKeys, now, paid)
	if err != nil {
		return nil, err
	}

	callerNodeID := billcrypto.NodeIDHex(callerKeys.Signer.PubKey())

	if !isRejectAction(action) {
		if state.Waiting.Kind == billstate.WaitingOfferToSell {
			if _, ok := action.(SellAction); !ok {
				return nil, billerrors.New(billerrors.KindBillOfferedToSellWaiting)
			}
		}
		if state.Waiting.Kind == billstate.WaitingRecourse {
			if _, ok := action.(RecourseAction); !ok {
				return nil, billerrors.New(billerrors.KindBillInRecourseWaiting)
			}
		}
	}

	op, payload, newHolderPub, err := e.validateAndBuildPayload(ctx, chain, billKeys, state, action, callerNodeID, callerKeys.SignatoryRef, now)
	if err != nil {
		return nil, err
	}

	signerKeys := billblock.SignerKeys{Signatory: callerKeys.Signatory, Signer: callerKeys.Signer, Bill: billKeys.PrivateKey}

	latest := chain.Latest()
	block, err := billblock.BuildBlock(billID, latest.ID+1, latest.Hash, now, op, payload,
		billKeys.PublicKey, signerKeys, newHolderPub, billKeys.PrivateKey)
	if err != nil {
		return nil, err
	}

	ok, err := chain.TryAdd(*block)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, billerrors.New(billerrors.KindChainInvalid)
	}

	// TryAdd only checked link/hash/bill_id (I2, I3, I6); close the I4/I5
	// gap here, before the block is persisted, by verifying every block's
	// signature against its decrypted principal signer.
	if err := chain.VerifyChainSignatures(billKeys); err != nil {
		return nil, err
	}

	if err := e.ChainStore.AddBlock(ctx, billID, *block); err != nil {
		return nil, billerrors.Wrap(billerrors.KindStoreIO, err)
	}

	if idx, ok := e.PaymentStore.(indexesWaiting); ok {
		idx.IndexWaiting(billID, op)
	}
	if e.Metrics != nil {
		e.Metrics.BlocksAppended.Inc()
	}

	e.notifyBestEffort(ctx, billID, block)

	return chain, nil
}

// notifyBestEffort emits the post-append notification. Per §5 concurrency
// model, a notification failure is logged and never rolls back the append.
func (e *Executor) notifyBestEffort(ctx context.Context, billID string, block *billblock.Block) {
	if e.NotificationStore == nil {
		return
	}
	traceID := uuid.New()
	action := string(block.OpCode)
	sent, err := e.NotificationStore.CheckBillNotificationSent(ctx, billID, block.ID, action)
	if err != nil {
		e.Logger.Printf("trace %s: bill %s: check notification sent: %v", traceID, billID, err)
		return
	}
	if sent {
		return
	}
	if err := e.NotificationStore.Send(ctx, billID, "", action); err != nil {
		e.Logger.Printf("trace %s: bill %s: notification failed: %v", traceID, billID, err)
		if e.Metrics != nil {
			e.Metrics.ExecuteErrors.Inc()
		}
		return
	}
	if err := e.NotificationStore.MarkBillNotificationSent(ctx, billID, block.ID, action); err != nil {
		e.Logger.Printf("trace %s: bill %s: mark notification sent: %v", traceID, billID, err)
	}
}

// IssueNewBill is the special entry point of §4.4: it mints a fresh bill
// keypair, computes bill_id from the public key, and creates the genesis
// Issue block. There is no prior chain to load.
func (e *Executor) IssueNewBill(ctx context.Context, drawer, drawee, payee billblock.PartyRef,
	sum uint64, currency, issueDate, maturityDate string, places []string, language string, files []string,
	issuerKeys CallerKeys, now int64) (*billchain.Chain, string, error) {

	billKeyPair, err := billcrypto.GenerateKeyPair()
	if err != nil {
		return nil, "", billerrors.Wrap(billerrors.KindCryptoError, err)
	}
	billID := billcrypto.BillIDFromPublicKey(billKeyPair.PublicKey)

	payeePub, err := payee.PublicKey()
	if err != nil {
		return nil, "", billerrors.Payload("payee.node_id")
	}

	payload := billblock.IssuePayload{
		Drawer: drawer, Drawee: drawee, Payee: payee,
		Sum: sum, Currency: currency, IssueDate: issueDate, MaturityDate: maturityDate,
		Places: places, Language: language, Files: files,
	}
	payload.Signatory = issuerKeys.SignatoryRef
	payload.SigningTimestamp = now
	payload.SigningAddress = drawer.PostalAddress.Address
	signerKeys := billblock.SignerKeys{Signatory: issuerKeys.Signatory, Signer: issuerKeys.Signer, Bill: billKeyPair.PrivateKey}

	block, err := billblock.BuildBlock(billID, 1, "", now, billblock.OpIssue, payload,
		billKeyPair.PublicKey, signerKeys, payeePub, billKeyPair.PrivateKey)
	if err != nil {
		return nil, "", err
	}

	chain, err := billchain.NewGenesisChain(billID, *block)
	if err != nil {
		return nil, "", err
	}

	keys := billchain.BillKeys{PublicKey: billKeyPair.PublicKey, PrivateKey: billKeyPair.PrivateKey}
	if err := chain.VerifyChainSignatures(keys); err != nil {
		return nil, "", err
	}
	if err := e.KeyStore.SaveKeys(ctx, billID, keys); err != nil {
		return nil, "", billerrors.Wrap(billerrors.KindStoreIO, err)
	}
	if err := e.ChainStore.AddBlock(ctx, billID, *block); err != nil {
		return nil, "", billerrors.Wrap(billerrors.KindStoreIO, err)
	}
	if idx, ok := e.PaymentStore.(indexesWaiting); ok {
		idx.IndexWaiting(billID, billblock.OpIssue)
	}

	return chain, billID, nil
}
