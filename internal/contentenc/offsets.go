package contentenc

import (
	"fmt"
	"io"

	"github.com/rfjakob/vaultcryptor/internal/cryptocore"
)

// Contentenc methods that translate offsets and sizes between ciphertext
// and plaintext

const defaultCipherBS = DefaultBS + ChunkOverhead

// CiphertextSizeFromCleartextSize returns the size of the encrypted file
// (header included) for "plainSize" cleartext bytes without padding.
func CiphertextSizeFromCleartextSize(plainSize uint64) uint64 {
	return HeaderLen + plainSize + chunkCount(plainSize, DefaultBS)*ChunkOverhead
}

// CleartextSizeFromCiphertextSize is the inverse of
// CiphertextSizeFromCleartextSize. It fails for sizes no encrypted file can
// have: shorter than the header, or ending in a chunk with no room for
// payload.
func CleartextSizeFromCiphertextSize(cipherSize uint64) (uint64, error) {
	if cipherSize < HeaderLen {
		return 0, fmt.Errorf("%w: size %d is smaller than the header",
			cryptocore.ErrCorruptedHeader, cipherSize)
	}
	body := cipherSize - HeaderLen
	full := body / defaultCipherBS
	rest := body % defaultCipherBS
	if rest > 0 && rest <= ChunkOverhead {
		return 0, fmt.Errorf("%w: size %d leaves a %d byte partial chunk",
			cryptocore.ErrAuthenticationFailed, cipherSize, rest)
	}
	plain := full * DefaultBS
	if rest > 0 {
		plain += rest - ChunkOverhead
	}
	return plain, nil
}

// CleartextSize is like CleartextSizeFromCiphertextSize but fails with
// ErrSizeObfuscated for formats where the ciphertext size includes random
// padding.
func (be *ContentEnc) CleartextSize(cipherSize uint64) (uint64, error) {
	if be.format.SizeObfuscated {
		return 0, ErrSizeObfuscated
	}
	return CleartextSizeFromCiphertextSize(cipherSize)
}

// PlainOffToBlockNo - get the block number at plain-text offset
func (be *ContentEnc) PlainOffToBlockNo(plainOffset uint64) uint64 {
	return plainOffset / be.plainBS
}

// BlockNoToCipherOff - get ciphertext offset of block "blockNo"
func (be *ContentEnc) BlockNoToCipherOff(blockNo uint64) uint64 {
	return HeaderLen + blockNo*be.cipherBS
}

// BlockNoToPlainOff - get plaintext offset of block "blockNo"
func (be *ContentEnc) BlockNoToPlainOff(blockNo uint64) uint64 {
	return blockNo * be.plainBS
}

// ExplodePlainRange splits a plaintext byte range into (possibly partial)
// blocks. Returns an empty slice if length == 0.
func (be *ContentEnc) ExplodePlainRange(offset uint64, length uint64) []intraBlock {
	var blocks []intraBlock
	var nextBlock intraBlock
	nextBlock.fs = be

	for length > 0 {
		nextBlock.BlockNo = be.PlainOffToBlockNo(offset)
		nextBlock.Skip = offset - be.BlockNoToPlainOff(nextBlock.BlockNo)

		// Minimum of remaining plaintext data and remaining space in the block
		nextBlock.Length = min(length, be.plainBS-nextBlock.Skip)

		blocks = append(blocks, nextBlock)
		offset += nextBlock.Length
		length -= nextBlock.Length
	}
	return blocks
}

// DecryptRange decrypts "length" cleartext bytes starting at "offset" from
// the encrypted file "src" and writes them to "dst". Only the chunks that
// overlap the range are read and authenticated. Reading past the end of
// the file stops early without error, like io.ReaderAt would.
// Returns the number of bytes written.
func (be *ContentEnc) DecryptRange(dst io.Writer, src io.ReaderAt, offset, length uint64) (uint64, error) {
	hdr := make([]byte, HeaderLen)
	n, err := src.ReadAt(hdr, 0)
	if n < HeaderLen {
		if err == nil || err == io.EOF {
			return 0, fmt.Errorf("%w: file is %d bytes, shorter than the header",
				cryptocore.ErrCorruptedHeader, n)
		}
		return 0, fmt.Errorf("%w: %w", cryptocore.ErrDecryptionFailed, err)
	}
	fh, err := ParseHeader(hdr)
	if err != nil {
		return 0, err
	}
	h, err := be.DecryptHeader(fh)
	if err != nil {
		return 0, err
	}
	defer h.Wipe()
	if be.format.SizeObfuscated && h.Payload.Size >= 0 {
		size := uint64(h.Payload.Size)
		if offset >= size {
			return 0, nil
		}
		length = min(length, size-offset)
	}

	buf := be.cBlockPool.Get()
	defer be.cBlockPool.Put(buf)
	var written uint64
	for _, b := range be.ExplodePlainRange(offset, length) {
		off, l := b.CiphertextRange()
		n, err := src.ReadAt(buf[:l], int64(off))
		if n == 0 {
			if err == nil || err == io.EOF {
				break
			}
			return written, fmt.Errorf("%w: %w", cryptocore.ErrDecryptionFailed, err)
		}
		if err != nil && err != io.EOF {
			return written, fmt.Errorf("%w: %w", cryptocore.ErrDecryptionFailed, err)
		}
		pt, err := be.DecryptChunk(buf[:n], b.BlockNo, h)
		if err != nil {
			return written, err
		}
		if b.IsPartial() {
			if b.Skip >= uint64(len(pt)) {
				break
			}
			pt = pt[b.Skip:min(uint64(len(pt)), b.Skip+b.Length)]
		}
		if _, err := dst.Write(pt); err != nil {
			return written, fmt.Errorf("%w: %w", cryptocore.ErrDecryptionFailed, err)
		}
		written += uint64(len(pt))
		if uint64(len(pt)) < b.Length {
			// Short final chunk
			break
		}
	}
	return written, nil
}
