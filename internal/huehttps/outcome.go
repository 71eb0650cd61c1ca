package huehttps

import "time"

// Outcome is the terminal result of one request cycle: the single fact a
// caller can observe about a dispatched request besides the logs.
type Outcome struct {
	ResourcePath string
	Attempts     int
	StatusCode   int // last HTTP status seen, 0 if no attempt completed
	Err          error
	Duration     time.Duration
}

// Ok reports whether the cycle ended with a 200 response.
func (o Outcome) Ok() bool {
	return o.Err == nil
}

// Recorder receives request cycle outcomes. Implementations must not block
// the dispatch worker for long; recording happens between cycles.
type Recorder interface {
	RecordOutcome(Outcome)
}
