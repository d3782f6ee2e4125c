package loaders

import (
	"encoding/binary"
	"fmt"
	"os"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

type ShaderLoader struct{}

// Load reads a SPIR-V binary and checks it is a whole number of words
// starting with the SPIR-V magic.
func (sl *ShaderLoader) Load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 || len(data)%4 != 0 {
		return nil, fmt.Errorf("%s: %d bytes is not a SPIR-V module", path, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data); magic != SPIRVMagic {
		return nil, fmt.Errorf("%s: bad SPIR-V magic %#x", path, magic)
	}
	return data, nil
}

// SourceLoader reads text assets as they are.
type SourceLoader struct{}

func (sl *SourceLoader) Load(path string) ([]byte, error) {
	return os.ReadFile(path)
}
