package contentenc

import (
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

// bPool hands out chunk-sized buffers. A pool created with "wipe" zeroes
// every buffer on Put, so cleartext does not linger in pooled memory.
type bPool struct {
	pool sync.Pool
	size int
	wipe bool
}

func newBPool(size int, wipe bool) *bPool {
	return &bPool{
		pool: sync.Pool{
			New: func() any { return make([]byte, size) },
		},
		size: size,
		wipe: wipe,
	}
}

// Get returns a buffer of the pool's chunk size.
func (b *bPool) Get() []byte {
	return b.pool.Get().([]byte)
}

// Put returns "s", which may have been resliced, to the pool.
func (b *bPool) Put(s []byte) {
	s = s[:cap(s)]
	if len(s) != b.size {
		panic(fmt.Sprintf("bPool: buffer of %d bytes, want %d", len(s), b.size))
	}
	if b.wipe {
		memguard.WipeBytes(s)
	}
	b.pool.Put(s)
}
