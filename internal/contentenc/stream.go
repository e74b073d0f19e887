package contentenc

import (
	"errors"
	"fmt"
	"io"

	"github.com/rfjakob/vaultcryptor/internal/cryptocore"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
)

// ProgressFunc receives the fraction of chunks processed so far, in (0, 1].
// It is called after every chunk, or once with 1.0 for files without
// chunks.
type ProgressFunc func(fraction float64)

func (p ProgressFunc) report(done, total uint64) {
	if p == nil {
		return
	}
	if total == 0 {
		p(1)
		return
	}
	p(float64(done) / float64(total))
}

func chunkCount(n, bs uint64) uint64 {
	return (n + bs - 1) / bs
}

// paddingLen returns the number of random bytes appended to a file of
// "size" cleartext bytes in size-obfuscating formats: uniformly distributed
// in [0, min(size/10, 4096)].
func (be *ContentEnc) paddingLen(size uint64) (uint64, error) {
	if !be.format.SizeObfuscated {
		return 0, nil
	}
	maxPad := min(size/10, 4096)
	r, err := cryptocore.RandUint64(be.rand)
	if err != nil {
		return 0, err
	}
	return r % (maxPad + 1), nil
}

// EncryptStream reads "size" cleartext bytes from "src" and writes the
// header and encrypted chunks to "dst".
func (be *ContentEnc) EncryptStream(dst io.Writer, src io.Reader, size int64, progress ProgressFunc) error {
	if size < 0 {
		return fmt.Errorf("%w: negative size %d", cryptocore.ErrEncryptionFailed, size)
	}
	pad, err := be.paddingLen(uint64(size))
	if err != nil {
		return err
	}
	h, err := be.NewHeader(size)
	if err != nil {
		return err
	}
	defer h.Wipe()
	if err := be.WriteHeader(dst, h); err != nil {
		return err
	}

	// Padding is encrypted like regular content and cut off again on
	// decryption using the size in the header.
	in := io.MultiReader(io.LimitReader(src, size), &randReader{rs: be.rand, n: pad})
	total := chunkCount(uint64(size)+pad, be.plainBS)
	buf := be.pBlockPool.Get()
	defer be.pBlockPool.Put(buf)
	var read uint64
	for chunkNo := uint64(0); ; chunkNo++ {
		n, err := io.ReadFull(in, buf)
		if n > 0 {
			read += uint64(n)
			ct, err2 := be.EncryptChunk(buf[:n], chunkNo, h)
			if err2 != nil {
				return err2
			}
			if _, err2 := dst.Write(ct); err2 != nil {
				return fmt.Errorf("%w: %w", cryptocore.ErrEncryptionFailed, err2)
			}
			progress.report(chunkNo+1, total)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		} else if err != nil {
			return fmt.Errorf("%w: %w", cryptocore.ErrEncryptionFailed, err)
		}
	}
	if read != uint64(size)+pad {
		return fmt.Errorf("%w: source delivered %d bytes, expected %d",
			cryptocore.ErrEncryptionFailed, read-min(read, pad), size)
	}
	if total == 0 {
		progress.report(0, 0)
	}
	return nil
}

// walkChunks reads the header and all chunks from "src" and calls "fn" for
// each chunk in order. The first error stops the walk.
func (be *ContentEnc) walkChunks(src io.Reader, cipherSize int64, progress ProgressFunc,
	fn func(h *Header, chunkNo uint64, ciphertext []byte) error) error {
	h, err := be.ReadHeader(src)
	if err != nil {
		return err
	}
	defer h.Wipe()
	var total uint64
	if cipherSize > HeaderLen {
		total = chunkCount(uint64(cipherSize-HeaderLen), be.cipherBS)
	}
	buf := be.cBlockPool.Get()
	defer be.cBlockPool.Put(buf)
	var chunks, clearLen uint64
	for {
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			if err := fn(h, chunks, buf[:n]); err != nil {
				return err
			}
			chunks++
			clearLen += uint64(n - ChunkOverhead)
			progress.report(chunks, max(total, chunks))
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		} else if err != nil {
			return fmt.Errorf("%w: %w", cryptocore.ErrDecryptionFailed, err)
		}
	}
	if chunks == 0 {
		progress.report(0, 0)
	}
	if be.format.SizeObfuscated && h.Payload.Size >= 0 && clearLen < uint64(h.Payload.Size) {
		// All chunks were authentic, but there are fewer of them than the
		// header promises.
		return fmt.Errorf("%w: file has %d bytes, recorded size is %d",
			cryptocore.ErrAuthenticationFailed, clearLen, h.Payload.Size)
	}
	return nil
}

// DecryptStream reads an encrypted file from "src" and writes the cleartext
// to "dst". "cipherSize" is the total input length and is only used for
// progress reporting. Chunks are written only after they have been
// authenticated; the first failure aborts.
//
// Only v3 and v4 headers carry the cleartext size. For later formats a file
// cut exactly at a chunk boundary decrypts to a shorter, authentic prefix.
func (be *ContentEnc) DecryptStream(dst io.Writer, src io.Reader, cipherSize int64, progress ProgressFunc) error {
	var written uint64
	return be.walkChunks(src, cipherSize, progress, func(h *Header, chunkNo uint64, ciphertext []byte) error {
		pt, err := be.DecryptChunk(ciphertext, chunkNo, h)
		if err != nil {
			return err
		}
		if be.format.SizeObfuscated && h.Payload.Size >= 0 {
			// Cut off the padding
			limit := uint64(h.Payload.Size)
			pt = pt[:min(uint64(len(pt)), limit-min(written, limit))]
		}
		if len(pt) == 0 {
			return nil
		}
		if _, err := dst.Write(pt); err != nil {
			return fmt.Errorf("%w: %w", cryptocore.ErrDecryptionFailed, err)
		}
		written += uint64(len(pt))
		return nil
	})
}

// AuthenticateStream verifies the header and every chunk MAC of the
// encrypted file in "src" without producing cleartext.
func (be *ContentEnc) AuthenticateStream(src io.Reader, cipherSize int64, progress ProgressFunc) error {
	return be.walkChunks(src, cipherSize, progress, func(h *Header, chunkNo uint64, ciphertext []byte) error {
		return be.AuthenticateChunk(ciphertext, chunkNo, h)
	})
}

// randReader yields "n" random bytes from "rs".
type randReader struct {
	rs cryptocore.RandomSource
	n  uint64
}

var errShortRandom = errors.New("random source returned fewer bytes than requested")

func (r *randReader) Read(p []byte) (int, error) {
	if r.n == 0 {
		return 0, io.EOF
	}
	want := min(uint64(len(p)), r.n)
	b, err := r.rs.RandBytes(int(want))
	if err != nil {
		return 0, err
	}
	if uint64(len(b)) != want {
		tlog.Warn.Printf("randReader: got %d bytes, want %d", len(b), want)
		return 0, errShortRandom
	}
	copy(p, b)
	r.n -= want
	return int(want), nil
}
