package restir

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/restir/engine/core"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhasePreparing
	PhaseBound
	PhaseExecuting
	PhaseCapturing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhasePreparing:
		return "Preparing"
	case PhaseBound:
		return "Bound"
	case PhaseExecuting:
		return "Executing"
	case PhaseCapturing:
		return "Capturing"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// next is the only legal successor of every phase.
var next = map[Phase]Phase{
	PhaseIdle:      PhasePreparing,
	PhasePreparing: PhaseBound,
	PhaseBound:     PhaseExecuting,
	PhaseExecuting: PhaseCapturing,
	PhaseCapturing: PhaseIdle,
}

// TransitionHook observes every accepted transition before the new phase's work runs.
type TransitionHook func(frame uint64, from, to Phase)

// FrameStateMachine walks Idle, Preparing, Bound, Executing, Capturing and
// back to Idle once per frame. Any other move is rejected.
type FrameStateMachine struct {
	phase        Phase
	frame        uint64
	completed    bool
	lastDone     uint64
	trace        []Phase
	lastTrace    []Phase
	onTransition TransitionHook
}

func NewFrameStateMachine() *FrameStateMachine {
	return &FrameStateMachine{}
}

func (m *FrameStateMachine) OnTransition(hook TransitionHook) {
	m.onTransition = hook
}

func (m *FrameStateMachine) Phase() Phase {
	return m.phase
}

// Frame is the index of the frame in progress, or of the last one finished.
func (m *FrameStateMachine) Frame() uint64 {
	return m.frame
}

// LastCompleted returns the last frame that reached Idle through Capturing.
func (m *FrameStateMachine) LastCompleted() (uint64, bool) {
	return m.lastDone, m.completed
}

// Enter moves to phase to. Entering Preparing starts frame, which must be
// newer than the last completed one; other phases must belong to the frame
// in progress.
func (m *FrameStateMachine) Enter(frame uint64, to Phase) error {
	if next[m.phase] != to {
		return fmt.Errorf("%w: frame %d: %s -> %s", core.ErrSequenceViolation, frame, m.phase, to)
	}
	if to == PhasePreparing {
		if m.completed && frame <= m.lastDone {
			return fmt.Errorf("%w: frame %d already recorded, last completed frame is %d", core.ErrSequenceViolation, frame, m.lastDone)
		}
		m.frame = frame
		m.trace = m.trace[:0]
	} else if frame != m.frame {
		return fmt.Errorf("%w: frame %d entered %s while frame %d is in progress", core.ErrSequenceViolation, frame, to, m.frame)
	}
	from := m.phase
	m.phase = to
	if to == PhaseIdle {
		m.lastTrace = append(m.lastTrace[:0], m.trace...)
		m.completed = true
		m.lastDone = frame
	} else {
		m.trace = append(m.trace, to)
	}
	if m.onTransition != nil {
		m.onTransition(frame, from, to)
	}
	return nil
}

// Abort drops the frame in progress and returns to Idle. The partial trace
// is kept as the last trace so failures can be inspected. The aborted frame
// does not count as completed.
func (m *FrameStateMachine) Abort() {
	if m.phase == PhaseIdle {
		return
	}
	m.lastTrace = append(m.lastTrace[:0], m.trace...)
	m.trace = m.trace[:0]
	m.phase = PhaseIdle
}

// Trace returns the phases of the last finished or aborted frame.
func (m *FrameStateMachine) Trace() []Phase {
	out := make([]Phase, len(m.lastTrace))
	copy(out, m.lastTrace)
	return out
}

// TraceString joins Trace with commas, for example "Preparing,Bound,Executing,Capturing".
func (m *FrameStateMachine) TraceString() string {
	names := make([]string, len(m.lastTrace))
	for i, p := range m.lastTrace {
		names[i] = p.String()
	}
	return strings.Join(names, ",")
}
