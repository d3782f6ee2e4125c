package restir

import (
	"fmt"

	"github.com/spaghettifunk/restir/engine/renderer"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

// uniformBuffer is a device local uniform buffer fed from one host visible
// staging buffer per frame in flight. A staging buffer is only rewritten
// once the frame that last used it has retired.
type uniformBuffer struct {
	registry *renderer.Registry
	size     uint64
	staging  []*renderer.Owned[metadata.Buffer]
	device   *renderer.Owned[metadata.Buffer]
}

func newUniformBuffer(registry *renderer.Registry, name string, size uint64, framesInFlight uint32) (*uniformBuffer, error) {
	if framesInFlight == 0 {
		framesInFlight = 1
	}
	u := &uniformBuffer{registry: registry, size: size}
	dev, err := registry.CreateBuffer(metadata.BufferDesc{
		Name:   name,
		Size:   size,
		Usage:  metadata.BufferUsageUniform | metadata.BufferUsageTransferDst,
		Memory: metadata.MemoryDevicePreferred,
	})
	if err != nil {
		return nil, err
	}
	u.device = dev
	for i := uint32(0); i < framesInFlight; i++ {
		st, err := registry.CreateBuffer(metadata.BufferDesc{
			Name:   fmt.Sprintf("%s.staging#%d", name, i),
			Size:   size,
			Usage:  metadata.BufferUsageTransferSrc,
			Memory: metadata.MemoryHostVisible,
		})
		if err != nil {
			u.release()
			return nil, err
		}
		u.staging = append(u.staging, st)
	}
	return u, nil
}

func (u *uniformBuffer) Buffer() *metadata.Buffer {
	return u.device.Get()
}

// upload writes data into the frame's staging buffer and records the copy
// into the device buffer, fenced on both sides against compute reads.
func (u *uniformBuffer) upload(frame *renderer.FrameInfo, data []byte) error {
	if uint64(len(data)) > u.size {
		return fmt.Errorf("uniform data of %d bytes exceeds buffer of %d", len(data), u.size)
	}
	staging := u.staging[frame.Index%uint64(len(u.staging))].Get()
	if err := u.registry.Backend().BufferWrite(staging, 0, data); err != nil {
		return err
	}
	dev := u.device.Get()
	frame.Stream.BufferBarrier(renderer.BufferBarrier{
		Buffer:    dev,
		SrcStage:  metadata.StageComputeShader,
		DstStage:  metadata.StageTransfer,
		SrcAccess: metadata.AccessUniformRead,
		DstAccess: metadata.AccessTransferWrite,
	})
	frame.Stream.CopyBuffer(staging, dev, uint64(len(data)))
	frame.Stream.BufferBarrier(renderer.BufferBarrier{
		Buffer:    dev,
		SrcStage:  metadata.StageTransfer,
		DstStage:  metadata.StageComputeShader,
		SrcAccess: metadata.AccessTransferWrite,
		DstAccess: metadata.AccessUniformRead,
	})
	return nil
}

func (u *uniformBuffer) release() {
	for _, s := range u.staging {
		s.Release()
	}
	u.staging = nil
	u.device.Release()
}
