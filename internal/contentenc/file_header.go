package contentenc

// Per-file header
//
// Format: [ nonce 16 bytes ] [ encrypted payload 40 bytes ] [ HMAC-SHA256 32 bytes ]
// Payload: [ cleartext size uint64 big endian ] [ content key 32 bytes ]

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/awnumar/memguard"

	"github.com/rfjakob/vaultcryptor/internal/cryptocore"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
)

const (
	headerSizeLen = 8
	// ContentKeyLen is the length of the per-file content key.
	ContentKeyLen = cryptocore.KeyLen
	payloadLen    = headerSizeLen + ContentKeyLen
	// HeaderLen is the total header length
	HeaderLen = NonceLen + payloadLen + MACLen
	// sizeNotEmbedded marks a payload that does not carry the file size.
	sizeNotEmbedded = math.MaxUint64
)

// HeaderPayload is the secret part of the file header.
type HeaderPayload struct {
	// Size is the cleartext size, or -1 if the format does not embed it.
	Size int64
	// ContentKey encrypts the chunks of this file.
	ContentKey []byte
}

// Header is a decrypted file header.
type Header struct {
	// Nonce is the header nonce. It also binds every chunk MAC to this file.
	Nonce   []byte
	Payload HeaderPayload
}

// Wipe overwrites the content key.
func (h *Header) Wipe() {
	memguard.WipeBytes(h.Payload.ContentKey)
}

// FileHeader is the on-disk form of a Header.
type FileHeader struct {
	Nonce            []byte
	EncryptedPayload []byte
	MAC              []byte
}

// Pack - serialize fileHeader object
func (fh *FileHeader) Pack() []byte {
	if len(fh.Nonce) != NonceLen || len(fh.EncryptedPayload) != payloadLen || len(fh.MAC) != MACLen {
		panic("FileHeader object not properly initialized")
	}
	buf := make([]byte, 0, HeaderLen)
	buf = append(buf, fh.Nonce...)
	buf = append(buf, fh.EncryptedPayload...)
	return append(buf, fh.MAC...)
}

// ParseHeader - parse "buf" into fileHeader object
func ParseHeader(buf []byte) (*FileHeader, error) {
	if len(buf) != HeaderLen {
		return nil, fmt.Errorf("%w: invalid length: got %d, want %d",
			cryptocore.ErrCorruptedHeader, len(buf), HeaderLen)
	}
	return &FileHeader{
		Nonce:            buf[:NonceLen],
		EncryptedPayload: buf[NonceLen : NonceLen+payloadLen],
		MAC:              buf[NonceLen+payloadLen:],
	}, nil
}

// NewHeader creates a header with a random nonce and content key. "size"
// is only recorded if the format obfuscates sizes.
func (be *ContentEnc) NewHeader(size int64) (*Header, error) {
	b, err := be.rand.RandBytes(NonceLen + ContentKeyLen)
	if err != nil {
		return nil, err
	}
	h := &Header{
		Nonce: b[:NonceLen],
		Payload: HeaderPayload{
			Size:       -1,
			ContentKey: b[NonceLen:],
		},
	}
	if be.format.SizeObfuscated {
		h.Payload.Size = size
	}
	return h, nil
}

func (p *HeaderPayload) pack() []byte {
	buf := make([]byte, payloadLen)
	size := uint64(sizeNotEmbedded)
	if p.Size >= 0 {
		size = uint64(p.Size)
	}
	binary.BigEndian.PutUint64(buf, size)
	copy(buf[headerSizeLen:], p.ContentKey)
	return buf
}

func (be *ContentEnc) headerMAC(nonce, encryptedPayload []byte) []byte {
	mac := hmac.New(sha256.New, be.masterKey.MacKey())
	mac.Write(nonce)
	mac.Write(encryptedPayload)
	return mac.Sum(nil)
}

// EncryptHeader encrypts the payload of "h" under the master key.
func (be *ContentEnc) EncryptHeader(h *Header) (*FileHeader, error) {
	if len(h.Nonce) != NonceLen || len(h.Payload.ContentKey) != ContentKeyLen {
		return nil, fmt.Errorf("%w: header not properly initialized", cryptocore.ErrEncryptionFailed)
	}
	plain := h.Payload.pack()
	defer memguard.WipeBytes(plain)
	enc := make([]byte, payloadLen)
	if err := aesCTR(be.masterKey.CipherKey(), h.Nonce, enc, plain); err != nil {
		return nil, fmt.Errorf("%w: %v", cryptocore.ErrEncryptionFailed, err)
	}
	return &FileHeader{
		Nonce:            append([]byte{}, h.Nonce...),
		EncryptedPayload: enc,
		MAC:              be.headerMAC(h.Nonce, enc),
	}, nil
}

// DecryptHeader verifies and decrypts "fh".
func (be *ContentEnc) DecryptHeader(fh *FileHeader) (*Header, error) {
	if !cryptocore.ConstantTimeEqual(be.headerMAC(fh.Nonce, fh.EncryptedPayload), fh.MAC) {
		tlog.Warn.Printf("DecryptHeader: MAC mismatch")
		return nil, fmt.Errorf("%w: file header", cryptocore.ErrAuthenticationFailed)
	}
	plain := make([]byte, payloadLen)
	defer memguard.WipeBytes(plain)
	if err := aesCTR(be.masterKey.CipherKey(), fh.Nonce, plain, fh.EncryptedPayload); err != nil {
		return nil, fmt.Errorf("%w: %v", cryptocore.ErrDecryptionFailed, err)
	}
	h := &Header{
		Nonce: append([]byte{}, fh.Nonce...),
		Payload: HeaderPayload{
			Size:       -1,
			ContentKey: append([]byte{}, plain[headerSizeLen:]...),
		},
	}
	size := binary.BigEndian.Uint64(plain)
	if size != sizeNotEmbedded {
		if size > math.MaxInt64 {
			return nil, fmt.Errorf("%w: size field %d out of range", cryptocore.ErrCorruptedHeader, size)
		}
		h.Payload.Size = int64(size)
	}
	return h, nil
}

// ReadHeader reads, parses and decrypts the header at the start of "src".
func (be *ContentEnc) ReadHeader(src io.Reader) (*Header, error) {
	buf := make([]byte, HeaderLen)
	n, err := io.ReadFull(src, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("%w: file is %d bytes, shorter than the header",
			cryptocore.ErrCorruptedHeader, n)
	} else if err != nil {
		return nil, fmt.Errorf("%w: %w", cryptocore.ErrDecryptionFailed, err)
	}
	fh, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}
	return be.DecryptHeader(fh)
}

// WriteHeader encrypts "h" and writes it to "dst".
func (be *ContentEnc) WriteHeader(dst io.Writer, h *Header) error {
	fh, err := be.EncryptHeader(h)
	if err != nil {
		return err
	}
	if _, err := dst.Write(fh.Pack()); err != nil {
		return fmt.Errorf("%w: %w", cryptocore.ErrEncryptionFailed, err)
	}
	return nil
}
