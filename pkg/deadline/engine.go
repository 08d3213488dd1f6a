// Copyright 2025 Certen Protocol
//
// Package deadline implements the timeout-detection engine (C5): a ticking
// background loop that scans chains whose tail op leaves them waiting on a
// deadline, and emits a deduplicated "timed out" signal when that deadline
// has passed. It never appends a block — timeout is purely derived, and
// becomes permanent only via the timeout overlay in pkg/billstate.
package deadline

import (
	"context"
	"log"
	"time"

	"github.com/bitcredit/ebillchain/pkg/billblock"
	"github.com/bitcredit/ebillchain/pkg/billstate"
	"github.com/bitcredit/ebillchain/pkg/billstore"
	"github.com/bitcredit/ebillchain/pkg/metrics"
)

// candidateOps is the set of tail op_codes that can put a chain into a
// waiting state with a deadline (§4.5 step 1).
var candidateOps = []billblock.OpCode{
	billblock.OpRequestToAccept,
	billblock.OpRequestToPay,
	billblock.OpOfferToSell,
	billblock.OpRequestRecourse,
}

func deadlineFor(op billblock.OpCode) int64 {
	switch op {
	case billblock.OpRequestToAccept:
		return billstate.AcceptDeadlineSeconds
	case billblock.OpRequestToPay, billblock.OpOfferToSell:
		return billstate.PaymentDeadlineSeconds
	case billblock.OpRequestRecourse:
		return billstate.RecourseDeadlineSeconds
	default:
		return 0
	}
}

// Sink receives a timeout signal. The deadline engine calls it once per
// newly-detected timeout; what happens with the signal (logging, an
// outbound notification, a metric) is the caller's business.
type Sink func(ctx context.Context, billID string, blockID uint64, op billblock.OpCode)

// Engine scans the chain store on a fixed cadence looking for deadlines
// that have lapsed since the last scan.
type Engine struct {
	ChainStore        billstore.BillChainStore
	NotificationStore billstore.NotificationStore
	Clock             billstore.Clock
	Interval          time.Duration
	Sink              Sink
	Metrics           *metrics.Registry
	Logger            *log.Logger

	stopChan chan struct{}
}

// NewEngine wires an Engine, defaulting to a component-prefixed stdlib
// logger and a no-op sink when none is supplied. metricsRegistry may be
// nil, in which case Scan skips publishing metrics.
func NewEngine(chainStore billstore.BillChainStore, notificationStore billstore.NotificationStore,
	clock billstore.Clock, interval time.Duration, sink Sink, metricsRegistry *metrics.Registry) *Engine {
	if sink == nil {
		sink = func(context.Context, string, uint64, billblock.OpCode) {}
	}
	return &Engine{
		ChainStore:        chainStore,
		NotificationStore: notificationStore,
		Clock:             clock,
		Interval:          interval,
		Sink:              sink,
		Metrics:           metricsRegistry,
		Logger:            log.New(log.Writer(), "[Deadline] ", log.LstdFlags),
		stopChan:          make(chan struct{}),
	}
}

// Run blocks, scanning every Interval until ctx is done or Stop is called.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.Scan(ctx)
		}
	}
}

// Stop ends a running Run loop.
func (e *Engine) Stop() {
	close(e.stopChan)
}

// Scan performs one pass over every chain in the store, per §4.5.
func (e *Engine) Scan(ctx context.Context) {
	now := e.Clock.Now()

	billIDs, err := e.ChainStore.AllBillIDs(ctx)
	if err != nil {
		e.Logger.Printf("list bill ids: %v", err)
		return
	}

	if e.Metrics != nil {
		e.Metrics.OpenBills.Set(float64(len(billIDs)))
	}

	for _, billID := range billIDs {
		if err := e.scanOne(ctx, billID, now); err != nil {
			e.Logger.Printf("bill %s: %v", billID, err)
		}
	}
}

func (e *Engine) scanOne(ctx context.Context, billID string, now int64) error {
	chain, err := e.ChainStore.GetChain(ctx, billID)
	if err != nil {
		return err
	}
	latest := chain.Latest()

	deadline := deadlineFor(latest.OpCode)
	if deadline == 0 {
		return nil
	}
	if latest.Timestamp+deadline > now {
		return nil
	}

	action := string(latest.OpCode)
	already, err := e.NotificationStore.CheckBillNotificationSent(ctx, billID, latest.ID, action)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	e.Sink(ctx, billID, latest.ID, latest.OpCode)
	if e.Metrics != nil {
		e.Metrics.TimeoutsDetected.Inc()
	}

	return e.NotificationStore.MarkBillNotificationSent(ctx, billID, latest.ID, action)
}
