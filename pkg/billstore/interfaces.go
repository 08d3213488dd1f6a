// Copyright 2025 Certen Protocol
//
// Package billstore defines the storage and notification contracts the
// bill-chain engine depends on (§6) and provides in-memory implementations
// that satisfy them — sufficient for tests and for running the engine
// without any external database.
package billstore

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/bitcredit/ebillchain/pkg/billblock"
	"github.com/bitcredit/ebillchain/pkg/billchain"
)

// BillKeyStore persists each bill's dedicated keypair.
type BillKeyStore interface {
	SaveKeys(ctx context.Context, billID string, keys billchain.BillKeys) error
	GetKeys(ctx context.Context, billID string) (billchain.BillKeys, error)
	Exists(ctx context.Context, billID string) (bool, error)
}

// BillChainStore persists the append-only block log per bill.
type BillChainStore interface {
	// AddBlock fails with billerrors.KindBlockLinkBroken if block's
	// previous_hash does not match the stored tail.
	AddBlock(ctx context.Context, billID string, block billblock.Block) error
	GetChain(ctx context.Context, billID string) (*billchain.Chain, error)
	// AllBillIDs lists every bill_id the store knows about, used by the
	// deadline/payment scanners.
	AllBillIDs(ctx context.Context) ([]string, error)
}

// PaymentStateStore tracks the monotonic (false→true) paid flag and
// indexes bills by what they are currently waiting on.
type PaymentStateStore interface {
	IsPaid(ctx context.Context, billID string) (bool, error)
	SetToPaid(ctx context.Context, billID string, address string) error
	GetBillIDsWaitingForPayment(ctx context.Context) ([]string, error)
	GetBillIDsWaitingForSellPayment(ctx context.Context) ([]string, error)
	GetBillIDsWaitingForRecoursePayment(ctx context.Context) ([]string, error)
	GetBillIDsWithLatestOpIn(ctx context.Context, ops []billblock.OpCode, sinceTimestamp int64) ([]string, error)
}

// FileStore is the attached-file collaborator; out of core scope (§1) but
// still given a minimal contract so Issue's `files` field has a home.
type FileStore interface {
	SaveAttachedFile(ctx context.Context, data []byte, billID, name string) error
	OpenAttachedFile(ctx context.Context, billID, name string) ([]byte, error)
}

// NotificationStore dedupes and records outbound notifications.
type NotificationStore interface {
	CheckBillNotificationSent(ctx context.Context, billID string, blockID uint64, action string) (bool, error)
	MarkBillNotificationSent(ctx context.Context, billID string, blockID uint64, action string) error
	Send(ctx context.Context, billID string, recipientNodeID string, action string) error
}

// PaymentObserver is the external collaborator that watches the Bitcoin
// chain for incoming payments; the core never talks to a node directly.
type PaymentObserver interface {
	CheckPaid(ctx context.Context, address string, expectedSum uint64) (paid bool, observedAmount uint64, err error)
	// PaymentAddressFor deterministically derives a payment address by
	// combining the bill's public key and the holder's node public key.
	PaymentAddressFor(billPublicKey, holderPublicKey *btcec.PublicKey) (string, error)
}

// Clock supplies the current time as Unix seconds. Production code uses
// SystemClock; tests inject a fixed or stepped clock so derivation stays
// reproducible.
type Clock interface {
	Now() int64
}
