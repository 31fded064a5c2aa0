// Package jobstatus describes the download/convert/analyze pipeline state of a
// matched song.
package jobstatus

import (
	"errors"
	"fmt"
	"strings"
)

// State is the pipeline state reported by the backend.
type State string

const (
	// StateNone means no match has been chosen, so no job exists.
	StateNone        State = "none"
	StatePending     State = "pending"
	StateDownloading State = "downloading"
	StateAnalyzing   State = "analyzing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// convertingThreshold is the download percentage from which the backend is
// converting the file rather than fetching it.
const convertingThreshold = 80

var (
	// ErrIllegalRetry is returned when a retry is requested from any state
	// other than failed.
	ErrIllegalRetry = errors.New("retry is only allowed from failed")

	// ErrUnknownState is returned by Parse for values outside the pipeline.
	ErrUnknownState = errors.New("unknown job state")
)

// Parse converts a wire value into a State. Blank and null values mean no job.
func Parse(raw string) (State, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "", "null", string(StateNone):
		return StateNone, nil
	}
	s := State(value)
	switch s {
	case StatePending, StateDownloading, StateAnalyzing, StateCompleted, StateFailed:
		return s, nil
	}
	return StateNone, fmt.Errorf("%w: %q", ErrUnknownState, raw)
}

// String returns the wire value.
func (s State) String() string {
	if s == "" {
		return string(StateNone)
	}
	return string(s)
}

// IsTerminal reports whether no further transition happens without a retry.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// IsActive reports whether the backend is still working on the job.
func (s State) IsActive() bool {
	return s == StatePending || s == StateDownloading || s == StateAnalyzing
}

// HasProgress reports whether a progress value is meaningful in this state.
func (s State) HasProgress() bool {
	return s == StateDownloading || s == StateAnalyzing
}

// Status pairs a state with its progress percentage.
type Status struct {
	State    State
	Progress int
}

// NewStatus builds a Status with progress clamped to 0–100.
func NewStatus(state State, progress int) Status {
	if state == "" {
		state = StateNone
	}
	switch {
	case progress < 0:
		progress = 0
	case progress > 100:
		progress = 100
	}
	return Status{State: state, Progress: progress}
}

// Percent returns the progress and whether it may be interpreted.
func (st Status) Percent() (int, bool) {
	if !st.State.HasProgress() {
		return 0, false
	}
	return st.Progress, true
}

// Retry returns the optimistic status after a retry request.
func (st Status) Retry() (Status, error) {
	if st.State != StateFailed {
		return st, fmt.Errorf("%w (state %s)", ErrIllegalRetry, st.State)
	}
	return Status{State: StatePending}, nil
}

// Label renders the status the way both presentation layers show it.
func (st Status) Label() string {
	switch st.State {
	case StatePending:
		return "Download pending..."
	case StateDownloading:
		if st.Progress >= convertingThreshold {
			return fmt.Sprintf("Converting: %d%%", st.Progress)
		}
		return fmt.Sprintf("Downloading: %d%%", st.Progress)
	case StateAnalyzing:
		return fmt.Sprintf("Analyzing: %d%%", st.Progress)
	case StateCompleted:
		return "Download and analysis completed"
	case StateFailed:
		return "Download failed"
	default:
		return ""
	}
}
