package ingest

import (
	"github.com/tally-dev/tally/internal/model"
)

// transferContext carries the reference data transfer rules match against.
type transferContext struct {
	// ownAccounts is every source account known to belong to the user,
	// including the account of the upload in flight.
	ownAccounts map[string]struct{}
	// legsByID holds every known leg (stored or about to be inserted) per
	// transaction ID.
	legsByID map[string][]model.Key
}

// transferRule is one independent internal-transfer predicate. Rules are
// applied as a union: any rule firing flags the transaction.
type transferRule interface {
	name() string
	matches(t model.Transaction, tc *transferContext) bool
}

// sameIDRule matches a transaction whose ID also appears under a different
// source account: the two legs of a currency exchange or inter-account move
// recorded under one reference number.
type sameIDRule struct{}

func (sameIDRule) name() string { return "same-id" }

func (sameIDRule) matches(t model.Transaction, tc *transferContext) bool {
	for _, leg := range tc.legsByID[t.TransactionID] {
		if leg.SourceAccount != t.SourceAccount {
			return true
		}
	}
	return false
}

// partnerAccountRule matches a transaction whose partner account is another
// of the user's own accounts, even when the counterpart statement was never
// uploaded.
type partnerAccountRule struct{}

func (partnerAccountRule) name() string { return "partner-account" }

func (partnerAccountRule) matches(t model.Transaction, tc *transferContext) bool {
	if t.PartnerAccount == "" || t.PartnerAccount == t.SourceAccount {
		return false
	}
	_, ok := tc.ownAccounts[t.PartnerAccount]
	return ok
}

var transferRules = []transferRule{sameIDRule{}, partnerAccountRule{}}

// detection is the outcome of one detector pass.
type detection struct {
	// flagged indexes into the evaluated slice.
	flagged []int
	// counterparts are stored legs that must be flagged retroactively: the
	// pre-existing half of a pair the evaluated rows completed.
	counterparts []model.Key
}

// detectTransfers evaluates every rule over the rows to be inserted, plus
// the stored legs sharing their transaction IDs. Flags are monotonic: a
// later pass can only add matches, never withdraw one.
func detectTransfers(toInsert []model.Transaction, stored []model.Transaction, ownAccounts []string) detection {
	tc := &transferContext{
		ownAccounts: make(map[string]struct{}, len(ownAccounts)),
		legsByID:    make(map[string][]model.Key),
	}
	for _, a := range ownAccounts {
		tc.ownAccounts[a] = struct{}{}
	}
	for _, t := range stored {
		tc.legsByID[t.TransactionID] = append(tc.legsByID[t.TransactionID], t.Key())
	}
	for _, t := range toInsert {
		tc.legsByID[t.TransactionID] = append(tc.legsByID[t.TransactionID], t.Key())
	}

	var det detection
	for i, t := range toInsert {
		if !matchesAny(t, tc) {
			continue
		}
		det.flagged = append(det.flagged, i)

		// The stored half of a same-ID pair is flagged in the same run.
		for _, s := range stored {
			if s.TransactionID == t.TransactionID &&
				s.SourceAccount != t.SourceAccount && !s.IsInternalTransfer {
				det.counterparts = append(det.counterparts, s.Key())
			}
		}
	}
	return det
}

func matchesAny(t model.Transaction, tc *transferContext) bool {
	for _, rule := range transferRules {
		if rule.matches(t, tc) {
			return true
		}
	}
	return false
}
