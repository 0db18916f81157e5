// Package rand exposes random number generators backed by crypto/rand,
// usable wherever a math/rand API is convenient but guessable output is not
// acceptable (one-time access codes, credential material).
package rand

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

type source struct{}

// Seed does nothing when crypto/rand is used as the source.
func (_ *source) Seed(_ int64) {}

// Int63 returns a uniformly-distributed random int64 value within [0, 1<<63).
// Panics if the random generator reader cannot return data.
func (s *source) Int63() int64 {
	return int64(s.Uint64() & ^uint64(1<<63))
}

// Uint64 returns a uniformly-distributed random uint64 value.
// Panics if the random generator reader cannot return data.
func (_ *source) Uint64() (val uint64) {
	if err := binary.Read(rand.Reader, binary.BigEndian, &val); err != nil {
		panic(err)
	}
	return
}

// NewGenerator returns a generator that draws from crypto/rand. Performance
// takes a hit compared to math/rand, so use it where unpredictability
// matters and not in hot loops.
func NewGenerator() *mrand.Rand {
	return mrand.New(&source{}) // #nosec G404 -- crypto/rand-backed source
}

// NewDeterministicGenerator returns a generator seeded with a constant,
// producing a reproducible stream. For tests only.
func NewDeterministicGenerator() *mrand.Rand {
	return mrand.New(mrand.NewSource(42)) // #nosec G404 -- test use only
}
