package domain

import "time"

// RunWindow is the simulation time range written into the control file.
type RunWindow struct {
	Start time.Time
	End   time.Time
}

// ComputeRunWindow derives the window from now: the instant is floored to the
// top of the hour in UTC, then offset backward and forward by whole hours.
func ComputeRunWindow(now time.Time, lookbackHours, lookaheadHours int) RunWindow {
	floored := now.UTC().Truncate(time.Hour)
	return RunWindow{
		Start: floored.Add(-time.Duration(lookbackHours) * time.Hour),
		End:   floored.Add(time.Duration(lookaheadHours) * time.Hour),
	}
}

// String renders the window in control-file notation.
func (w RunWindow) String() string {
	layout := controlDateLayout + " " + controlTimeLayout
	return w.Start.Format(layout) + " to " + w.End.Format(layout)
}
