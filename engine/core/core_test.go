package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiagnosticSinkBounded(t *testing.T) {
	sink := NewDiagnosticSink(2)
	sink.Report(DiagnosticInfo, "printf", "one")
	sink.Report(DiagnosticWarning, "validation", "two")
	sink.Report(DiagnosticError, "validation", "three")

	assert.Equal(t, uint64(1), sink.Dropped())
	got := sink.Drain()
	if assert.Len(t, got, 2) {
		assert.Equal(t, "two", got[0].Message)
		assert.Equal(t, "three", got[1].Message)
		assert.Equal(t, DiagnosticError, got[1].Severity)
	}
	assert.Equal(t, 0, sink.Len())
}

func TestDiagnosticSinkClosedIgnoresReports(t *testing.T) {
	sink := NewDiagnosticSink(4)
	sink.Close()
	sink.Report(DiagnosticError, "validation", "late")
	assert.Empty(t, sink.Drain())
}

func TestEventBusDispatch(t *testing.T) {
	bus := NewEventBus()
	var width, height uint32
	listener := &struct{}{}
	ok := bus.Register(EVENT_CODE_RESIZED, listener, func(code SystemEventCode, sender, l interface{}, data EventContext) bool {
		width, height = data.Data.U32[0], data.Data.U32[1]
		return true
	})
	assert.True(t, ok)
	assert.False(t, bus.Register(EVENT_CODE_RESIZED, listener, nil))

	ctx := EventContext{}
	ctx.Data.U32[0] = 1024
	ctx.Data.U32[1] = 768
	assert.True(t, bus.Fire(EVENT_CODE_RESIZED, nil, ctx))
	assert.Equal(t, uint32(1024), width)
	assert.Equal(t, uint32(768), height)

	assert.True(t, bus.Unregister(EVENT_CODE_RESIZED, listener))
	assert.False(t, bus.Fire(EVENT_CODE_RESIZED, nil, ctx))
}

func TestMetricsAverage(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.016)
	}
	assert.InDelta(t, 16.0, m.FrameTime(), 1e-9)
}

func TestSetLogLevel(t *testing.T) {
	assert.NoError(t, SetLogLevel("info"))
	assert.Error(t, SetLogLevel("loud"))
	assert.NoError(t, SetLogLevel("debug"))
}
