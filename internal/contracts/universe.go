package contracts

import "sort"

// Universe is the ranked pool of tradable symbols
// ⭐ SSOT: universe selector → simulator / split 전달
type Universe struct {
	Symbols []string `json:"symbols"` // descending median dollar volume
}

// Contains checks if a symbol is in the universe
func (u *Universe) Contains(symbol string) bool {
	for _, s := range u.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// Count returns the number of symbols
func (u *Universe) Count() int {
	return len(u.Symbols)
}

// UniverseSplit is the disjoint train/test partition of a universe
type UniverseSplit struct {
	Train []string `json:"train"`
	Test  []string `json:"test"`
}

// Overlap returns the sorted symbols present in both train and test
func (s *UniverseSplit) Overlap() []string {
	train := make(map[string]struct{}, len(s.Train))
	for _, sym := range s.Train {
		train[sym] = struct{}{}
	}

	overlap := make([]string, 0)
	seen := make(map[string]struct{})
	for _, sym := range s.Test {
		if _, ok := train[sym]; !ok {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		overlap = append(overlap, sym)
	}
	sort.Strings(overlap)
	return overlap
}

// Pool returns the symbol list for "train" or "test"
func (s *UniverseSplit) Pool(which string) ([]string, bool) {
	switch which {
	case "train":
		return s.Train, true
	case "test":
		return s.Test, true
	default:
		return nil, false
	}
}
