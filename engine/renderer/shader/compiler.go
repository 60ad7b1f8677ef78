package shader

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/naga"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

// Compiler translates processed WGSL source into SPIR-V words.
type Compiler func(source string) ([]uint32, error)

// NagaCompiler compiles WGSL with naga and returns the module as little-endian SPIR-V words.
func NagaCompiler(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("naga: %w", err)
	}
	if len(spirvBytes) < 4 || len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("naga: malformed SPIR-V output of %d bytes", len(spirvBytes))
	}

	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	if words[0] != SPIRVMagic {
		return nil, errors.New("naga: output is not a SPIR-V module")
	}
	return words, nil
}

// SPIRVBytes encodes SPIR-V words as the little-endian byte stream a shader module is created from.
func SPIRVBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}
