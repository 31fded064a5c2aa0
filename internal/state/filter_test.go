package state

import "testing"

func TestFilter_InPlaylistWins(t *testing.T) {
	both := Filter{ExcludeInPlaylist: true, InPlaylist: true}
	if got := both.Normalize(); got != (Filter{InPlaylist: true}) {
		t.Fatalf("Normalize = %+v, want in_playlist only", got)
	}
	if both.Signature() != SignatureInPlaylist {
		t.Fatalf("Signature = %q, want %q", both.Signature(), SignatureInPlaylist)
	}
	if (PageKey{Filter: both}).normalize() != (PageKey{Filter: Filter{InPlaylist: true}}) {
		t.Fatal("page keys with conflicting toggles should normalise")
	}
}

func TestFilter_SignatureRoundTrip(t *testing.T) {
	for _, f := range []Filter{{}, {ExcludeInPlaylist: true}, {InPlaylist: true}} {
		got, err := ParseFilter(f.Signature())
		if err != nil {
			t.Fatalf("ParseFilter(%q) returned error: %v", f.Signature(), err)
		}
		if got != f {
			t.Fatalf("ParseFilter(%q) = %+v, want %+v", f.Signature(), got, f)
		}
	}
	if _, err := ParseFilter("everything"); err == nil {
		t.Fatal("ParseFilter should reject unknown signatures")
	}
	if f, err := ParseFilter(""); err != nil || f != (Filter{}) {
		t.Fatalf("ParseFilter(\"\") = %+v, %v", f, err)
	}
}

func TestFilter_NextCycles(t *testing.T) {
	f := Filter{}
	seen := []string{f.Signature()}
	for range 3 {
		f = f.Next()
		seen = append(seen, f.Signature())
	}
	want := []string{SignatureAll, SignatureExcludeInPlaylist, SignatureInPlaylist, SignatureAll}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("cycle = %v, want %v", seen, want)
		}
	}
}

func TestPageKey_String(t *testing.T) {
	if got := (PageKey{Filter: Filter{ExcludeInPlaylist: true}, Index: 2}).String(); got != "exclude_in_playlist#2" {
		t.Fatalf("String = %q", got)
	}
}
