package ingest

import (
	"github.com/tally-dev/tally/internal/model"
	"github.com/tally-dev/tally/internal/statement"
)

// resolveDuplicates partitions candidates into rows to insert and duplicates
// of already-stored rows, by exact match on the composite identity key.
// Candidates repeating a key within the same batch (a corrupted or
// self-overlapping export) keep only their first occurrence. Row order is
// preserved so transfer pairing stays deterministic.
func resolveDuplicates(cands []statement.Candidate, existing map[string]struct{}) (toInsert []statement.Candidate, duplicates int) {
	seen := make(map[model.Key]struct{}, len(cands))

	for _, c := range cands {
		key := c.Transaction.Key()
		if _, ok := existing[key.TransactionID]; ok {
			duplicates++
			continue
		}
		if _, ok := seen[key]; ok {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
		toInsert = append(toInsert, c)
	}
	return toInsert, duplicates
}
