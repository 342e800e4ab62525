package fluxruntime

import (
	"crypto/rand"
	"encoding/binary"
)

// RandomSeed generates a random non-negative seed for a render.
// crypto/rand keeps seeds unguessable across deployments; reproducibility
// comes from the seed being returned to the caller in job metadata, not from
// the generator being deterministic.
func RandomSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is effectively a broken host. A fixed seed is
		// still a valid render; better than refusing the job.
		return 42
	}

	seed := int64(binary.LittleEndian.Uint64(buf[:]) &^ (1 << 63))
	return seed
}
