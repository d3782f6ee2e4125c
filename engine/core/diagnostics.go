package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/restir/engine/containers"
)

type DiagnosticSeverity int

const (
	DiagnosticDebug DiagnosticSeverity = iota
	DiagnosticInfo
	DiagnosticWarning
	DiagnosticError
)

func (s DiagnosticSeverity) String() string {
	switch s {
	case DiagnosticDebug:
		return "debug"
	case DiagnosticInfo:
		return "info"
	case DiagnosticWarning:
		return "warning"
	case DiagnosticError:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

type Diagnostic struct {
	Time     time.Time
	Severity DiagnosticSeverity
	Source   string
	Message  string
}

// DiagnosticSink collects messages produced by the device validation layer
// and device-side printf. It holds at most Cap messages; the oldest ones are
// dropped first. A closed sink ignores new messages.
type DiagnosticSink struct {
	mu      sync.Mutex
	queue   *containers.RingQueue[Diagnostic]
	dropped uint64
	closed  bool
}

func NewDiagnosticSink(capacity int) *DiagnosticSink {
	return &DiagnosticSink{
		queue: containers.NewRingQueue[Diagnostic](capacity),
	}
}

// Report is safe to call from any goroutine, including driver callback threads.
func (s *DiagnosticSink) Report(severity DiagnosticSeverity, source, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.queue.Push(Diagnostic{
		Time:     time.Now(),
		Severity: severity,
		Source:   source,
		Message:  message,
	}) {
		s.dropped++
	}
}

// Drain removes and returns all pending messages in arrival order.
func (s *DiagnosticSink) Drain() []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Diagnostic, 0, s.queue.Len())
	for !s.queue.IsEmpty() {
		d, _ := s.queue.Dequeue()
		out = append(out, d)
	}
	return out
}

// Dropped returns how many messages were evicted because the sink was full.
func (s *DiagnosticSink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *DiagnosticSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

func (s *DiagnosticSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// LogPending drains the sink into the engine logger.
func (s *DiagnosticSink) LogPending() {
	for _, d := range s.Drain() {
		switch d.Severity {
		case DiagnosticError:
			LogError("[%s] %s", d.Source, d.Message)
		case DiagnosticWarning:
			LogWarn("[%s] %s", d.Source, d.Message)
		case DiagnosticInfo:
			LogInfo("[%s] %s", d.Source, d.Message)
		default:
			LogDebug("[%s] %s", d.Source, d.Message)
		}
	}
}
