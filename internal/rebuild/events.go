package rebuild

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Phase identifies a step of the executor state machine.
type Phase string

const (
	PhaseValidating Phase = "validating"
	PhaseEnvLoading Phase = "env_loading"
	PhaseConfigure  Phase = "configuring"
	PhaseExecuting  Phase = "executing"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// Event types. Phase transitions use TypePhase; the rest annotate the
// Executing phase or report the terminal outcome.
const (
	TypePhase        = "phase"
	TypeLog          = "log"
	TypeAPIError     = "api_error"
	TypeBuildSuccess = "build_success"
	TypeBuildFailed  = "build_failed"
	TypeProcessError = "process_error"
)

// Event is one self-describing record of build progress, consumable
// by external callers without scraping prose logs.
type Event struct {
	Type       string    `json:"type"`
	Phase      Phase     `json:"phase"`
	JobID      string    `json:"job_id,omitempty"`
	Journal    string    `json:"journal,omitempty"`
	Message    string    `json:"message,omitempty"`
	Line       string    `json:"line,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	Timestamp  time.Time `json:"ts"`
}

// Emitter consumes executor events.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// JSONEmitter writes one JSON line per event. Raw build output
// (TypeLog) is passed through unmodified instead of being wrapped, so
// the subprocess's own lines survive verbatim.
type JSONEmitter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONEmitter constructs a JSONEmitter over w.
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{w: w}
}

func (j *JSONEmitter) Emit(e Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if e.Type == TypeLog {
		_, _ = io.WriteString(j.w, e.Line+"\n")
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	_, _ = j.w.Write(append(payload, '\n'))
}

type multiEmitter []Emitter

func (m multiEmitter) Emit(e Event) {
	for _, em := range m {
		if em != nil {
			em.Emit(e)
		}
	}
}

// MultiEmitter fans events out to every given emitter.
func MultiEmitter(emitters ...Emitter) Emitter {
	return multiEmitter(emitters)
}
