package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMat4InverseRoundTrip(t *testing.T) {
	mt := NewMat4EulerXYZ(0.3, -0.7, 1.1).Mul(NewMat4Translation(NewVec3(1, 2, 3)))
	got := mt.Mul(mt.Inverse())
	assert.True(t, got.Compare(NewMat4Identity(), 1e-5), "got %v", got.Data)
}

func TestMat4TranslationTransform(t *testing.T) {
	p := NewVec3(1, 1, 1).Transform(NewMat4Translation(NewVec3(2, -1, 0.5)))
	assert.True(t, p.Compare(NewVec3(3, 0, 1.5), K_FLOAT_EPSILON))
}

func TestLookAtMovesEyeToOrigin(t *testing.T) {
	eye := NewVec3(0, 0, 5)
	view := NewMat4LookAt(eye, NewVec3Zero(), NewVec3Up())
	assert.True(t, eye.Transform(view).Compare(NewVec3Zero(), 1e-5))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 4, Clamp(9, 1, 4))
	assert.Equal(t, float32(0.5), Clamp(float32(0.5), 0, 1))
	assert.Equal(t, uint32(1), Clamp(uint32(0), 1, 16))
}

func TestLookAtForwardPointsAtTarget(t *testing.T) {
	view := NewMat4LookAt(NewVec3(0, 0, 5), NewVec3Zero(), NewVec3Up())
	assert.True(t, view.Forward().Compare(NewVec3(0, 0, -1), 1e-5), "got %v", view.Forward())
	assert.True(t, view.Right().Compare(NewVec3(1, 0, 0), 1e-5), "got %v", view.Right())
}
