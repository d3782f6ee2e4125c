package metadata

import "fmt"

// Extent2D is the pixel size of a screen sized resource.
type Extent2D struct {
	Width  uint32
	Height uint32
}

func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent2D) Pixels() uint64 {
	return uint64(e.Width) * uint64(e.Height)
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}
