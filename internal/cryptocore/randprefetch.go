package cryptocore

import (
	"bytes"
	"fmt"
	"sync"
)

/*
Number of bytes to prefetch.

Every encrypted chunk needs a fresh 16-byte nonce. Reading the system CSPRNG
in small pieces is slow, so we fetch 512 bytes at a time:

Benchmark16-2      	 3000000	       567 ns/op	  28.18 MB/s
Benchmark512-2     	10000000	       191 ns/op	  83.75 MB/s
Benchmark4096-2    	10000000	       165 ns/op	  96.58 MB/s
*/
const prefetchN = 512

// PrefetchRandom buffers random bytes from an underlying RandomSource.
type PrefetchRandom struct {
	sync.Mutex
	buf bytes.Buffer
	src RandomSource
}

// NewPrefetchRandom returns a RandomSource that reads "src" in batches of
// 512 bytes.
func NewPrefetchRandom(src RandomSource) *PrefetchRandom {
	return &PrefetchRandom{src: src}
}

// RandBytes returns "want" bytes from the buffer, refilling it as needed.
// Requests larger than the prefetch size bypass the buffer.
func (r *PrefetchRandom) RandBytes(want int) ([]byte, error) {
	if want > prefetchN {
		return r.src.RandBytes(want)
	}
	out := make([]byte, want)
	r.Lock()
	// Note: don't use defer, it slows us down!
	have, _ := r.buf.Read(out)
	if have == want {
		r.Unlock()
		return out, nil
	}
	// Buffer ran dry -> re-fill and serve the rest
	fresh, err := r.src.RandBytes(prefetchN)
	if err != nil {
		r.Unlock()
		return nil, err
	}
	if len(fresh) != prefetchN {
		r.Unlock()
		return nil, fmt.Errorf("%w: refill got %d bytes instead of %d",
			ErrRandomGenerationFailed, len(fresh), prefetchN)
	}
	r.buf.Reset()
	r.buf.Write(fresh)
	n, _ := r.buf.Read(out[have:])
	r.Unlock()
	if have+n != want {
		return nil, fmt.Errorf("%w: could not satisfy read: have=%d want=%d",
			ErrRandomGenerationFailed, have+n, want)
	}
	return out, nil
}
