package history

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Event is one parsed command line.
type Event struct {
	TimestampMicros int64  `json:"timestamp_micros"`
	Line            string `json:"line"`
	Dir             string `json:"dir"`
}

// EventRecorder is a callback that stores events in an external datastore.
type EventRecorder func(ev *Event) error

// Recorder observes command lines after they parse.
type Recorder struct {
	Record EventRecorder
	now    func() time.Time
}

// NewJsonLinesRecorder creates a Recorder that exports events in newline
// delimited JSON object format.
func NewJsonLinesRecorder(w io.Writer) *Recorder {
	return &Recorder{
		Record: func(ev *Event) error {
			entry, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(w, string(entry))
			return err
		},
	}
}

// Observe records a command line typed in dir.
func (r *Recorder) Observe(line, dir string) error {
	now := time.Now
	if r.now != nil {
		now = r.now
	}

	return r.Record(&Event{
		TimestampMicros: now().UnixNano() / int64(time.Microsecond),
		Line:            line,
		Dir:             dir,
	})
}
