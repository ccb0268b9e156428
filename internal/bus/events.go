package bus

import (
	"time"

	"github.com/MaDonald/imsimap/internal/record"
)

type EventKind int

const (
	// EventLine is a raw decoder line that was appended to the run's log.
	EventLine EventKind = iota
	// EventRecord is a parsed record appended to the live table.
	EventRecord
	// EventStarted and EventStopped bracket a capture run.
	EventStarted
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventLine:
		return "line"
	case EventRecord:
		return "record"
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind      EventKind
	RunID     string
	Key       string
	Line      string
	Record    record.Record
	Row       int
	Timestamp time.Time
}
