package systems

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobSystemRunsCallbacks(t *testing.T) {
	js, err := NewJobSystem(2, 8)
	require.NoError(t, err)

	var completed, failed atomic.Int32
	for i := 0; i < 6; i++ {
		fail := i%3 == 0
		require.NoError(t, js.Submit(JobTask{
			Name: "job",
			Run: func() error {
				if fail {
					return errors.New("boom")
				}
				return nil
			},
			OnComplete: func() { completed.Add(1) },
			OnFailure:  func(error) { failed.Add(1) },
		}))
	}
	require.NoError(t, js.Shutdown())
	assert.Equal(t, int32(4), completed.Load())
	assert.Equal(t, int32(2), failed.Load())

	assert.ErrorIs(t, js.Submit(JobTask{Run: func() error { return nil }}), ErrJobSystemClosed)
	assert.NoError(t, js.Shutdown())
}

func TestNewJobSystemValidates(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}
