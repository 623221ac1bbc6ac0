package oncrpc

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync/atomic"
)

// xidGenerator generates transaction identifiers for one client.
//
// It starts from a cryptographically random value so that a reconnecting client does not
// reuse the xids of a previous connection, and increments atomically afterwards.
type xidGenerator struct {
	id atomic.Uint32
}

func newXIDGenerator() *xidGenerator {
	gen := &xidGenerator{}
	var buf [4]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return gen
	}
	gen.id.Store(binary.LittleEndian.Uint32(buf[:]))

	return gen
}

func (g *xidGenerator) next() uint32 {
	return g.id.Add(1)
}
