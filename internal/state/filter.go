package state

import (
	"fmt"
	"strings"
)

// Filter is the set of list-filter toggles of a song view. When both toggles
// are set InPlaylist wins.
type Filter struct {
	ExcludeInPlaylist bool
	InPlaylist        bool
}

// Filter signatures as stored in prefs.
const (
	SignatureAll               = "all"
	SignatureExcludeInPlaylist = "exclude_in_playlist"
	SignatureInPlaylist        = "in_playlist"
)

// Normalize resolves conflicting toggles.
func (f Filter) Normalize() Filter {
	if f.InPlaylist {
		f.ExcludeInPlaylist = false
	}
	return f
}

// Signature identifies the filter; equal signatures select the same rows.
func (f Filter) Signature() string {
	n := f.Normalize()
	switch {
	case n.InPlaylist:
		return SignatureInPlaylist
	case n.ExcludeInPlaylist:
		return SignatureExcludeInPlaylist
	default:
		return SignatureAll
	}
}

// Label is the short text shown in list headers.
func (f Filter) Label() string {
	switch f.Signature() {
	case SignatureInPlaylist:
		return "in a playlist"
	case SignatureExcludeInPlaylist:
		return "not in a playlist"
	default:
		return "all saved"
	}
}

// Next cycles all → exclude_in_playlist → in_playlist → all.
func (f Filter) Next() Filter {
	switch f.Signature() {
	case SignatureAll:
		return Filter{ExcludeInPlaylist: true}
	case SignatureExcludeInPlaylist:
		return Filter{InPlaylist: true}
	default:
		return Filter{}
	}
}

// ParseFilter converts a signature back into a Filter. Blank means all.
func ParseFilter(signature string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(signature)) {
	case "", SignatureAll:
		return Filter{}, nil
	case SignatureExcludeInPlaylist:
		return Filter{ExcludeInPlaylist: true}, nil
	case SignatureInPlaylist:
		return Filter{InPlaylist: true}, nil
	}
	return Filter{}, fmt.Errorf("unknown filter %q", signature)
}

// PageKey identifies a page: the filter it was fetched under and its index.
type PageKey struct {
	Filter Filter
	Index  int
}

func (k PageKey) String() string {
	return fmt.Sprintf("%s#%d", k.Filter.Signature(), k.Index)
}

func (k PageKey) normalize() PageKey {
	k.Filter = k.Filter.Normalize()
	if k.Index < 0 {
		k.Index = 0
	}
	return k
}
