package pool

import (
	"sync"
)

// maxPooledSize caps the capacity of buffers returned to the pool, so one large
// instrument transfer does not pin memory for the lifetime of the process.
const maxPooledSize = 256 * 1024

var bufferPool = sync.Pool{New: func() any { return make([]byte, 0, 512) }}

// GetBuffer returns an empty byte slice from the pool with at least size bytes of capacity.
//
// Return the slice back to the pool with PutBuffer once its contents are no longer referenced.
func GetBuffer(size int) []byte {
	buf, _ := bufferPool.Get().([]byte) //nolint:staticcheck
	if cap(buf) < size {
		return make([]byte, 0, size)
	}

	return buf[:0]
}

// PutBuffer returns buf to the pool.
//
// buf cannot be accessed after returning to the pool.
func PutBuffer(buf []byte) {
	if buf == nil || cap(buf) > maxPooledSize {
		return
	}
	bufferPool.Put(buf[:0]) //nolint:staticcheck
}
