package ui

import (
	"testing"

	"github.com/five82/deckhand/internal/jobstatus"
)

func TestThemeLookups(t *testing.T) {
	th := draculaTheme()
	st := th.Styles()

	if got := st.StatusColor(jobstatus.StateFailed); got != th.StatusColors[jobstatus.StateFailed] {
		t.Fatalf("StatusColor(failed) = %q, want %q", got, th.StatusColors[jobstatus.StateFailed])
	}
	if got := st.StatusColor(jobstatus.State("bogus")); got != "#6272A4" {
		t.Fatalf("StatusColor(bogus) = %q, want fallback", got)
	}
	if got := (Styles{}).StatusColor(jobstatus.StateCompleted); got != "#6272A4" {
		t.Fatalf("StatusColor without palette = %q, want fallback", got)
	}
}

func TestThemesCoverEveryState(t *testing.T) {
	states := []jobstatus.State{
		jobstatus.StateNone, jobstatus.StatePending, jobstatus.StateDownloading,
		jobstatus.StateAnalyzing, jobstatus.StateCompleted, jobstatus.StateFailed,
	}
	for _, name := range ThemeNames() {
		th := GetTheme(name)
		for _, s := range states {
			if th.StatusColors[s] == "" {
				t.Errorf("theme %s has no color for %s", name, s)
			}
		}
	}
}

func TestThemeNames(t *testing.T) {
	names := ThemeNames()
	if len(names) != 2 {
		t.Fatalf("ThemeNames() returned %d names, want 2", len(names))
	}
	if names[0] != "Dracula" || names[1] != "Slate" {
		t.Fatalf("ThemeNames() = %v, want [Dracula Slate]", names)
	}
}

func TestNextTheme(t *testing.T) {
	if got := NextTheme("Dracula"); got != "Slate" {
		t.Fatalf("NextTheme(Dracula) = %q, want Slate", got)
	}
	if got := NextTheme("Slate"); got != "Dracula" {
		t.Fatalf("NextTheme(Slate) = %q, want Dracula", got)
	}
	if got := NextTheme("unknown"); got != "Dracula" {
		t.Fatalf("NextTheme(unknown) = %q, want Dracula", got)
	}
}

func TestGetThemeFallsBack(t *testing.T) {
	if got := GetTheme("nope").Name; got != "Dracula" {
		t.Fatalf("GetTheme(nope) = %q, want Dracula", got)
	}
	if got := GetTheme("Slate").Name; got != "Slate" {
		t.Fatalf("GetTheme(Slate) = %q, want Slate", got)
	}
}
