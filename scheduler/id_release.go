//go:build !ioqueuedebug

package scheduler

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// newIDSource returns an entropy-seeded generator, used in non-debug
// builds so task ids are unpredictable across process runs.
func newIDSource() *rand.Rand {
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		panic(fmt.Sprintf("scheduler: failed to read entropy for task id seed: %v", err))
	}
	s1 := binary.LittleEndian.Uint64(seed[:8])
	s2 := binary.LittleEndian.Uint64(seed[8:])
	return rand.New(rand.NewPCG(s1, s2))
}
