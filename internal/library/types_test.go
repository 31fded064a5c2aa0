package library

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/five82/deckhand/internal/jobstatus"
)

func TestSongUnmarshal_DownloadStatusPresence(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantKnown bool
		wantState jobstatus.State
	}{
		{name: "absent", body: `{"spotify_id":"a"}`, wantKnown: false},
		{name: "null", body: `{"spotify_id":"a","download_status":null}`, wantKnown: true, wantState: jobstatus.StateNone},
		{name: "value", body: `{"spotify_id":"a","download_status":"analyzing","download_progress":55}`, wantKnown: true, wantState: jobstatus.StateAnalyzing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Song
			if err := json.Unmarshal([]byte(tt.body), &s); err != nil {
				t.Fatalf("Unmarshal returned error: %v", err)
			}
			st, ok := s.Status()
			if ok != tt.wantKnown {
				t.Fatalf("known = %v, want %v", ok, tt.wantKnown)
			}
			if ok && st.State != tt.wantState {
				t.Fatalf("state = %s, want %s", st.State, tt.wantState)
			}
		})
	}
}

func TestSongUnmarshal_UnknownStatusIsUnknown(t *testing.T) {
	var page SongPage
	body := `{"songs":[{"spotify_id":"a","download_status":"completed"},{"spotify_id":"b","download_status":"queued"}],"total":2}`
	if err := json.Unmarshal([]byte(body), &page); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if len(page.Songs) != 2 {
		t.Fatalf("songs = %d, want 2", len(page.Songs))
	}
	if st, ok := page.Songs[0].Status(); !ok || st.State != jobstatus.StateCompleted {
		t.Fatalf("first song status = %v (known %v), want completed", st, ok)
	}
	b := page.Songs[1]
	if _, ok := b.Status(); ok {
		t.Fatal("status of an unrecognized state should be unknown")
	}
	if got := b.UnrecognizedStatus(); got != "queued" {
		t.Fatalf("UnrecognizedStatus = %q, want queued", got)
	}
	if got := b.WithStatus(jobstatus.NewStatus(jobstatus.StatePending, 0)).UnrecognizedStatus(); got != "" {
		t.Fatalf("UnrecognizedStatus after WithStatus = %q, want empty", got)
	}
}

func TestSongUnmarshal_AlbumNameFallback(t *testing.T) {
	var s Song
	if err := json.Unmarshal([]byte(`{"spotify_id":"a","album_name":"Night Drive"}`), &s); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if s.Album == nil || *s.Album != "Night Drive" {
		t.Fatalf("album = %v, want Night Drive", s.Album)
	}
}

func TestSongClone_DoesNotAlias(t *testing.T) {
	bpm := 128.0
	saved := true
	orig := Song{SpotifyID: "a", BPM: &bpm, IsSaved: &saved}
	clone := orig.Clone()
	*clone.BPM = 90
	*clone.IsSaved = false
	if *orig.BPM != 128 || !*orig.IsSaved {
		t.Fatal("Clone shares pointer fields with the original")
	}
}

func TestSongWithStatus(t *testing.T) {
	s := Song{SpotifyID: "a"}
	next := s.WithStatus(jobstatus.NewStatus(jobstatus.StateDownloading, 30))
	if _, ok := s.Status(); ok {
		t.Fatal("WithStatus modified the receiver")
	}
	st, ok := next.Status()
	if !ok || st.State != jobstatus.StateDownloading || st.Progress != 30 {
		t.Fatalf("status = %+v/%v, want downloading(30)", st, ok)
	}
}

func TestJobReportStatus(t *testing.T) {
	completed := "completed"
	if st, err := (JobReport{HasMatch: true, DownloadStatus: &completed, DownloadProgress: 100}).JobStatus(); err != nil || st.State != jobstatus.StateCompleted {
		t.Fatalf("JobStatus = %+v, %v; want completed", st, err)
	}
	if st, _ := (JobReport{HasMatch: false, DownloadStatus: &completed}).JobStatus(); st.State != jobstatus.StateNone {
		t.Fatalf("report without match = %s, want none", st.State)
	}
}

func TestParseTimeLayouts(t *testing.T) {
	if parseTime("2025-12-13T10:11:12Z").IsZero() {
		t.Fatalf("parseTime should parse RFC3339")
	}
	got := parseTime("2025-12-13 10:11:12")
	if got.Year() != 2025 || got.Month() != time.December || got.Day() != 13 {
		t.Fatalf("parseTime = %v, want 2025-12-13", got)
	}
	if !parseTime("yesterday").IsZero() {
		t.Fatal("parseTime should return zero for unknown layouts")
	}
}
