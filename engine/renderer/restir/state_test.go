package restir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/restir/engine/core"
)

var framePhases = []Phase{PhasePreparing, PhaseBound, PhaseExecuting, PhaseCapturing, PhaseIdle}

func walkFrame(t *testing.T, m *FrameStateMachine, frame uint64) {
	t.Helper()
	for _, p := range framePhases {
		require.NoError(t, m.Enter(frame, p))
	}
}

type transition struct {
	frame uint64
	to    Phase
}

func TestFrameStateMachineRejectsIllegalTransitions(t *testing.T) {
	tests := []struct {
		name      string
		completed []uint64
		accepted  []transition
		rejected  transition
		phase     Phase
	}{
		{
			name:     "skipped phase",
			accepted: []transition{{0, PhasePreparing}, {0, PhaseBound}},
			rejected: transition{0, PhaseCapturing},
			phase:    PhaseBound,
		},
		{
			name:     "start mid frame",
			rejected: transition{0, PhaseBound},
			phase:    PhaseIdle,
		},
		{
			name:     "repeated phase",
			accepted: []transition{{0, PhasePreparing}},
			rejected: transition{0, PhasePreparing},
			phase:    PhasePreparing,
		},
		{
			name:     "backward",
			accepted: []transition{{0, PhasePreparing}, {0, PhaseBound}, {0, PhaseExecuting}},
			rejected: transition{0, PhaseBound},
			phase:    PhaseExecuting,
		},
		{
			name:     "other frame mid flight",
			accepted: []transition{{0, PhasePreparing}},
			rejected: transition{1, PhaseBound},
			phase:    PhasePreparing,
		},
		{
			name:      "completed frame recorded again",
			completed: []uint64{3},
			rejected:  transition{3, PhasePreparing},
			phase:     PhaseIdle,
		},
		{
			name:      "older frame after newer",
			completed: []uint64{3},
			rejected:  transition{2, PhasePreparing},
			phase:     PhaseIdle,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewFrameStateMachine()
			for _, f := range tt.completed {
				walkFrame(t, m, f)
			}
			for _, tr := range tt.accepted {
				require.NoError(t, m.Enter(tr.frame, tr.to))
			}
			err := m.Enter(tt.rejected.frame, tt.rejected.to)
			assert.ErrorIs(t, err, core.ErrSequenceViolation)
			assert.Equal(t, tt.phase, m.Phase())
		})
	}
}

func TestFrameStateMachineAcceptsNewerFrames(t *testing.T) {
	m := NewFrameStateMachine()
	walkFrame(t, m, 0)
	walkFrame(t, m, 1)
	// Frames may be skipped, only going back is rejected.
	walkFrame(t, m, 5)

	last, ok := m.LastCompleted()
	assert.True(t, ok)
	assert.Equal(t, uint64(5), last)
	assert.Equal(t, "Preparing,Bound,Executing,Capturing", m.TraceString())
}

func TestFrameStateMachineAbortKeepsPartialTrace(t *testing.T) {
	m := NewFrameStateMachine()
	walkFrame(t, m, 0)

	require.NoError(t, m.Enter(1, PhasePreparing))
	require.NoError(t, m.Enter(1, PhaseBound))
	m.Abort()

	assert.Equal(t, PhaseIdle, m.Phase())
	assert.Equal(t, []Phase{PhasePreparing, PhaseBound}, m.Trace())
	assert.Equal(t, "Preparing,Bound", m.TraceString())

	// The aborted frame never completed and may be recorded again.
	last, _ := m.LastCompleted()
	assert.Equal(t, uint64(0), last)
	walkFrame(t, m, 1)

	// Aborting while idle changes nothing.
	m.Abort()
	assert.Equal(t, "Preparing,Bound,Executing,Capturing", m.TraceString())
}
