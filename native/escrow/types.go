package escrow

import "fmt"

// Record is the per-asset escrow state controlling whether and how the asset
// can be swapped. A record is armed while it holds a transfer authority and
// open while an owner has active trading terms on it.
type Record struct {
	AssetID [32]byte
	// Armed reports whether the record holds a transfer authority. A
	// disarmed record can never authorize an outbound transfer until it is
	// re-armed through Start.
	Armed bool
	// Secret is the bearer secret of the held transfer authority. It is
	// meaningful only while Armed is true.
	Secret [32]byte
	// Listed and Lister track the account that opened the current trading
	// terms. A record with Listed false is closed even when armed.
	Listed bool
	Lister [20]byte
	// MatchingCollections and MatchingTokens are the acceptance criteria an
	// incoming offer must satisfy. Duplicates are permitted and order is
	// irrelevant for membership testing.
	MatchingCollections []string
	MatchingTokens      []string
	// MatchAllInCollections, when set, accepts any token name within a
	// listed collection.
	MatchAllInCollections bool
}

// Clone returns a deep copy of the record so callers can safely mutate the
// copy without affecting the stored instance.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	clone.MatchingCollections = append([]string(nil), r.MatchingCollections...)
	clone.MatchingTokens = append([]string(nil), r.MatchingTokens...)
	return &clone
}

// SanitizeRecord validates the supplied record, returning a cloned instance
// with non-nil criteria slices. The function does not mutate the original
// value.
func SanitizeRecord(r *Record) (*Record, error) {
	if r == nil {
		return nil, fmt.Errorf("escrow: nil record")
	}
	clone := r.Clone()
	if clone.MatchingCollections == nil {
		clone.MatchingCollections = []string{}
	}
	if clone.MatchingTokens == nil {
		clone.MatchingTokens = []string{}
	}
	if !clone.Armed && clone.Secret != ([32]byte{}) {
		return nil, fmt.Errorf("escrow: disarmed record must not hold a secret")
	}
	if !clone.Listed && clone.Lister != ([20]byte{}) {
		return nil, fmt.Errorf("escrow: unlisted record must not name a lister")
	}
	if clone.MatchAllInCollections && len(clone.MatchingTokens) > 0 {
		return nil, fmt.Errorf("escrow: match-all record must not carry token names")
	}
	return clone, nil
}

// closeListing clears the lister and all acceptance criteria, leaving the
// armed state untouched. It reports whether anything changed.
func (r *Record) closeListing() bool {
	changed := r.Listed || len(r.MatchingCollections) > 0 || len(r.MatchingTokens) > 0 || r.MatchAllInCollections
	r.Listed = false
	r.Lister = [20]byte{}
	r.MatchingCollections = nil
	r.MatchingTokens = nil
	r.MatchAllInCollections = false
	return changed
}

// matches evaluates the acceptance criteria against an offered asset's
// collection and token name.
func (r *Record) matches(collection, name string) bool {
	inCollections := false
	for _, c := range r.MatchingCollections {
		if c == collection {
			inCollections = true
			break
		}
	}
	if !inCollections {
		return false
	}
	if r.MatchAllInCollections {
		return true
	}
	for _, n := range r.MatchingTokens {
		if n == name {
			return true
		}
	}
	return false
}
