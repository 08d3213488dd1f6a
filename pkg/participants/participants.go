// Copyright 2025 Certen Protocol
//
// Package participants resolves the set of node IDs that have ever
// appeared on a bill chain and the role a given caller holds with respect
// to the bill's current and historical state.
package participants

import (
	"github.com/bitcredit/ebillchain/pkg/billblock"
	"github.com/bitcredit/ebillchain/pkg/billchain"
	"github.com/bitcredit/ebillchain/pkg/billstate"
)

// Role is a caller's relationship to a bill, as of some derived state.
type Role string

const (
	RoleDrawer    Role = "Drawer"
	RoleDrawee    Role = "Drawee"
	RolePayee     Role = "Payee"
	RoleHolder    Role = "Holder"
	RoleRecoursee Role = "Recoursee"
	RoleNone      Role = "None"
)

// AllParticipants enumerates every node_id that has appeared on the chain
// by decrypting every block (C2.AllParticipants) and returns them as a
// stable, deduplicated slice.
func AllParticipants(chain *billchain.Chain, keys billchain.BillKeys) ([]billblock.PartyRef, error) {
	set, err := chain.AllParticipants(keys)
	if err != nil {
		return nil, err
	}
	out := make([]billblock.PartyRef, 0, len(set))
	for _, p := range set {
		out = append(out, p)
	}
	return out, nil
}

// RolesFor returns every role nodeID currently holds with respect to state.
// A caller may hold more than one role at once (e.g. drawer-as-drawee is
// legal, though unusual).
func RolesFor(state *billstate.BillState, nodeID string) []Role {
	var roles []Role
	if state.Drawer.NodeID == nodeID {
		roles = append(roles, RoleDrawer)
	}
	if state.Drawee.NodeID == nodeID {
		roles = append(roles, RoleDrawee)
	}
	if state.Payee.NodeID == nodeID {
		roles = append(roles, RolePayee)
	}
	if state.HolderNodeID == nodeID {
		roles = append(roles, RoleHolder)
	}
	if len(roles) == 0 {
		roles = append(roles, RoleNone)
	}
	return roles
}

// PastEndorsees implements §4.4's "past endorsees of caller": folding the
// chain backward, find the latest block where caller became holder (via
// Issue/Endorse/Mint/Sell — Recourse blocks are skipped), collect all
// holders prior to that point (the drawer counts as the first holder when
// distinct from the drawee), deduplicated most-recent-first, excluding
// caller itself.
func PastEndorsees(chain *billchain.Chain, keys billchain.BillKeys, caller string) ([]billblock.PartyRef, error) {
	blocks := chain.Blocks()

	issue, err := chain.GetFirstBillData(keys)
	if err != nil {
		return nil, err
	}

	// holderSequence lists every holder in chain order, starting with the
	// Issue payee, built only from holder-changing ops (Recourse excluded
	// per spec, since a recourse payment is not itself an endorsement
	// chain the recoursee can be recoursed against again in turn).
	holderSequence := []billblock.PartyRef{issue.Payee}

	for i := 1; i < len(blocks); i++ {
		payload, err := billblock.DecryptPayload(&blocks[i], keys.PrivateKey)
		if err != nil {
			return nil, err
		}
		switch p := payload.(type) {
		case *billblock.EndorsePayload:
			holderSequence = append(holderSequence, p.Endorsee)
		case *billblock.MintPayload:
			holderSequence = append(holderSequence, p.Endorsee)
		case *billblock.SellPayload:
			holderSequence = append(holderSequence, p.Buyer)
		}
	}

	// Find the latest index where caller became holder.
	callerIdx := -1
	for i := len(holderSequence) - 1; i >= 0; i-- {
		if holderSequence[i].NodeID == caller {
			callerIdx = i
			break
		}
	}
	if callerIdx <= 0 {
		// caller never became holder via a transfer (e.g. is the original
		// payee, or never held it at all) — only the drawer-as-first-holder
		// case applies.
		if issue.Drawer.NodeID != issue.Drawee.NodeID && issue.Payee.NodeID == caller {
			return dedupeMostRecentFirst([]billblock.PartyRef{issue.Drawer}, caller), nil
		}
		return nil, nil
	}

	prior := append([]billblock.PartyRef(nil), holderSequence[:callerIdx]...)
	if issue.Drawer.NodeID != issue.Drawee.NodeID {
		prior = append([]billblock.PartyRef{issue.Drawer}, prior...)
	}

	// Most-recent-first: reverse prior.
	reversed := make([]billblock.PartyRef, len(prior))
	for i, p := range prior {
		reversed[len(prior)-1-i] = p
	}
	return dedupeMostRecentFirst(reversed, caller), nil
}

func dedupeMostRecentFirst(parties []billblock.PartyRef, exclude string) []billblock.PartyRef {
	seen := make(map[string]bool)
	out := make([]billblock.PartyRef, 0, len(parties))
	for _, p := range parties {
		if p.NodeID == exclude || seen[p.NodeID] {
			continue
		}
		seen[p.NodeID] = true
		out = append(out, p)
	}
	return out
}

// IsPastEndorsee reports whether nodeID appears in PastEndorsees(caller).
func IsPastEndorsee(chain *billchain.Chain, keys billchain.BillKeys, caller, nodeID string) (bool, error) {
	past, err := PastEndorsees(chain, keys, caller)
	if err != nil {
		return false, err
	}
	for _, p := range past {
		if p.NodeID == nodeID {
			return true, nil
		}
	}
	return false, nil
}
