// Copyright 2025 Certen Protocol

package billstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/bitcredit/ebillchain/pkg/billblock"
	"github.com/bitcredit/ebillchain/pkg/billchain"
	"github.com/bitcredit/ebillchain/pkg/billerrors"
)

// MemoryKeyStore is an in-memory BillKeyStore.
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]billchain.BillKeys
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[string]billchain.BillKeys)}
}

func (s *MemoryKeyStore) SaveKeys(_ context.Context, billID string, keys billchain.BillKeys) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[billID] = keys
	return nil
}

func (s *MemoryKeyStore) GetKeys(_ context.Context, billID string) (billchain.BillKeys, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[billID]
	if !ok {
		return billchain.BillKeys{}, billerrors.New(billerrors.KindNotFound)
	}
	return k, nil
}

func (s *MemoryKeyStore) Exists(_ context.Context, billID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[billID]
	return ok, nil
}

// MemoryChainStore is an in-memory BillChainStore. Appends for a single
// bill_id are serialized by a per-bill mutex (§5): two concurrent appends
// race for the lock, and the loser is refused by AddBlock's own check that
// the candidate's previous_hash matches the stored tail.
type MemoryChainStore struct {
	mu     sync.Mutex
	chains map[string][]billblock.Block
	locks  map[string]*sync.Mutex
}

func NewMemoryChainStore() *MemoryChainStore {
	return &MemoryChainStore{
		chains: make(map[string][]billblock.Block),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *MemoryChainStore) lockFor(billID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[billID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[billID] = l
	}
	return l
}

func (s *MemoryChainStore) AddBlock(_ context.Context, billID string, block billblock.Block) error {
	l := s.lockFor(billID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	existing := append([]billblock.Block(nil), s.chains[billID]...)
	s.mu.Unlock()

	if len(existing) == 0 {
		if block.ID != 1 {
			return billerrors.New(billerrors.KindBlockLinkBroken)
		}
	} else {
		tail := existing[len(existing)-1]
		if block.PreviousHash != tail.Hash || block.ID != tail.ID+1 {
			return billerrors.New(billerrors.KindBlockLinkBroken)
		}
	}

	s.mu.Lock()
	s.chains[billID] = append(existing, block)
	s.mu.Unlock()
	return nil
}

func (s *MemoryChainStore) GetChain(_ context.Context, billID string) (*billchain.Chain, error) {
	s.mu.Lock()
	blocks := append([]billblock.Block(nil), s.chains[billID]...)
	s.mu.Unlock()
	if len(blocks) == 0 {
		return nil, billerrors.New(billerrors.KindNotFound)
	}
	return billchain.NewChain(billID, blocks)
}

func (s *MemoryChainStore) AllBillIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.chains))
	for id := range s.chains {
		ids = append(ids, id)
	}
	return ids, nil
}

// MemoryPaymentStore is an in-memory PaymentStateStore.
type MemoryPaymentStore struct {
	mu   sync.RWMutex
	paid map[string]bool

	// waitingIndex mirrors the index a real store would maintain by
	// querying the chain store; tests and the in-process engine update it
	// explicitly via IndexWaiting rather than scanning chains on every
	// call.
	waitingIndex map[string]billblock.OpCode
}

func NewMemoryPaymentStore() *MemoryPaymentStore {
	return &MemoryPaymentStore{
		paid:         make(map[string]bool),
		waitingIndex: make(map[string]billblock.OpCode),
	}
}

func (s *MemoryPaymentStore) IsPaid(_ context.Context, billID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paid[billID], nil
}

func (s *MemoryPaymentStore) SetToPaid(_ context.Context, billID string, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paid[billID] = true
	return nil
}

// IndexWaiting records which op_code is currently the chain's tail for
// billID, so GetBillIDsWaitingFor* can answer without re-reading the chain
// store. The executor calls this after every successful append.
func (s *MemoryPaymentStore) IndexWaiting(billID string, latestOp billblock.OpCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitingIndex[billID] = latestOp
}

func (s *MemoryPaymentStore) billIDsWithOp(op billblock.OpCode) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, latest := range s.waitingIndex {
		if latest == op {
			out = append(out, id)
		}
	}
	return out
}

func (s *MemoryPaymentStore) GetBillIDsWaitingForPayment(_ context.Context) ([]string, error) {
	return s.billIDsWithOp(billblock.OpRequestToPay), nil
}

func (s *MemoryPaymentStore) GetBillIDsWaitingForSellPayment(_ context.Context) ([]string, error) {
	return s.billIDsWithOp(billblock.OpOfferToSell), nil
}

func (s *MemoryPaymentStore) GetBillIDsWaitingForRecoursePayment(_ context.Context) ([]string, error) {
	return s.billIDsWithOp(billblock.OpRequestRecourse), nil
}

func (s *MemoryPaymentStore) GetBillIDsWithLatestOpIn(_ context.Context, ops []billblock.OpCode, _ int64) ([]string, error) {
	want := make(map[billblock.OpCode]bool, len(ops))
	for _, op := range ops {
		want[op] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, latest := range s.waitingIndex {
		if want[latest] {
			out = append(out, id)
		}
	}
	return out, nil
}

// MemoryNotificationStore is an in-memory NotificationStore.
type MemoryNotificationStore struct {
	mu   sync.Mutex
	sent map[string]bool
}

func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{sent: make(map[string]bool)}
}

func dedupeKey(billID string, blockID uint64, action string) string {
	return fmt.Sprintf("%s:%d:%s", billID, blockID, action)
}

func (s *MemoryNotificationStore) CheckBillNotificationSent(_ context.Context, billID string, blockID uint64, action string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[dedupeKey(billID, blockID, action)], nil
}

func (s *MemoryNotificationStore) MarkBillNotificationSent(_ context.Context, billID string, blockID uint64, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[dedupeKey(billID, blockID, action)] = true
	return nil
}

func (s *MemoryNotificationStore) Send(_ context.Context, _ string, _ string, _ string) error {
	return nil
}

// MemoryFileStore is an in-memory FileStore. Attached-file storage is an
// external collaborator (§1 Out of scope) the core only depends on at the
// interface level; this implementation exists so Issue's `files` field has
// somewhere to round-trip in tests without a real object store.
type MemoryFileStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{files: make(map[string][]byte)}
}

func fileKey(billID, name string) string {
	return fmt.Sprintf("%s/%s", billID, name)
}

func (s *MemoryFileStore) SaveAttachedFile(_ context.Context, data []byte, billID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[fileKey(billID, name)] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryFileStore) OpenAttachedFile(_ context.Context, billID, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[fileKey(billID, name)]
	if !ok {
		return nil, billerrors.New(billerrors.KindNotFound)
	}
	return append([]byte(nil), data...), nil
}
