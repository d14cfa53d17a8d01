// Package records stores off-chain issuance records for listing and display.
// Records are a denormalized cache; the registry stays authoritative.
package records

import (
	"sort"
	"strings"

	"github.com/ruteri/credential-registry-backend/interfaces"
)

func matches(r *interfaces.IssuanceRecord, f interfaces.RecordFilter) bool {
	if f.Recipient != "" && !strings.EqualFold(r.Metadata.StudentEmail, f.Recipient) {
		return false
	}
	if f.IssuerID != "" && r.IssuerID != f.IssuerID {
		return false
	}
	return true
}

// newestFirst sorts by issuance time descending and applies the limit.
func newestFirst(list []*interfaces.IssuanceRecord, limit int) []*interfaces.IssuanceRecord {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].IssuedAt.After(list[j].IssuedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}

func cloneRecord(r *interfaces.IssuanceRecord) *interfaces.IssuanceRecord {
	cp := *r
	cp.SealedShares = append([]interfaces.SealedShare(nil), r.SealedShares...)
	cp.Warnings = append([]string(nil), r.Warnings...)
	return &cp
}
