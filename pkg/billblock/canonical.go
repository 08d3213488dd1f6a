// Copyright 2025 Certen Protocol

package billblock

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mr-tron/base58"

	"github.com/bitcredit/ebillchain/pkg/billcrypto"
)

// canonicalMarshal is the project's deterministic serialization: values are
// marshaled to JSON, then passed through CanonicalizeJSON so the same
// logical value always produces the same bytes. The bill chain's original
// source uses borsh; no Go borsh library is available, so hashing and
// on-chain payloads bind to this canonicalizer instead (see DESIGN.md).
func canonicalMarshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	canon, err := CanonicalizeJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return canon, nil
}

// CanonicalizeJSON takes arbitrary JSON bytes and returns a canonical
// encoding (deterministic key order, stable formatting) — a simplified
// RFC8785-like approach. Exported so callers outside this package that need
// to reproduce a hash preimage (e.g. an auditor re-deriving I3) can canonicalize
// the same way the chain itself does.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(canonicalizeValue(v))
}

// canonicalizeValue recursively sorts map keys; arrays retain order.
func canonicalizeValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(map[string]interface{}, len(vv))
		for _, k := range keys {
			ordered[k] = canonicalizeValue(vv[k])
		}
		return ordered
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = canonicalizeValue(e)
		}
		return out
	default:
		return vv
	}
}

// hashPreimage is the §3/I3 hash-preimage tuple: (bill_id, id, previous_hash,
// data, timestamp, public_key, op_code).
type hashPreimage struct {
	BillID       string `json:"bill_id"`
	ID           uint64 `json:"id"`
	PreviousHash string `json:"previous_hash"`
	Data         string `json:"data"`
	Timestamp    int64  `json:"timestamp"`
	PublicKey    string `json:"public_key"`
	OpCode       OpCode `json:"op_code"`
}

// computeHash implements I3: hash = base58(sha256(canonical(preimage))).
func computeHash(billID string, id uint64, previousHash, data string, timestamp int64, publicKey string, op OpCode) (string, error) {
	canon, err := canonicalMarshal(hashPreimage{
		BillID: billID, ID: id, PreviousHash: previousHash, Data: data,
		Timestamp: timestamp, PublicKey: publicKey, OpCode: op,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return base58.Encode(sum[:]), nil
}

func parseNodeID(nodeID string) (*btcec.PublicKey, error) {
	return billcrypto.ParseNodeIDHex(nodeID)
}
