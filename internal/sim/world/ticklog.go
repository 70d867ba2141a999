package world

// TickLogger receives one entry per completed tick.
// Implementations must not retain the entry past the call.
type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type TickLogEntry struct {
	Tick       uint64 `json:"tick"`
	Entities   int    `json:"entities"`
	Moved      int    `json:"moved"`
	Blocked    int    `json:"blocked"`
	Waited     int    `json:"waited"`
	Turned     int    `json:"turned"`
	StepMicros int64  `json:"step_us"`
	Digest     string `json:"digest"`
}

func newTickLogEntry(s StepStats, digest string) TickLogEntry {
	return TickLogEntry{
		Tick:       s.Tick,
		Entities:   s.Entities,
		Moved:      s.Moved,
		Blocked:    s.Blocked,
		Waited:     s.Waited,
		Turned:     s.Turned,
		StepMicros: s.Duration.Microseconds(),
		Digest:     digest,
	}
}
