package domain

// FetchStats counts per-file outcomes of one download pass. Missing is only
// meaningful for forecast fetches, where unpublished hours are expected.
type FetchStats struct {
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
	Missing    int `json:"missing,omitempty"`
	Failed     int `json:"failed"`
}

// Total is the number of files considered by the pass.
func (s FetchStats) Total() int {
	return s.Downloaded + s.Skipped + s.Missing + s.Failed
}
