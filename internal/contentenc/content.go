// Package contentenc encrypts and decrypts file content chunks and the
// per-file header.
package contentenc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"

	"github.com/rfjakob/vaultcryptor/internal/cryptocore"
	"github.com/rfjakob/vaultcryptor/internal/tlog"
	"github.com/rfjakob/vaultcryptor/internal/vaultformat"
)

const (
	// DefaultBS is the cleartext chunk size.
	DefaultBS = 32 * 1024
	// NonceLen is the length of the random nonce in front of every chunk
	// and of the header.
	NonceLen = 16
	// MACLen is the length of the HMAC-SHA256 tag behind every chunk and
	// the header.
	MACLen = sha256.Size
	// ChunkOverhead is the number of bytes each chunk adds.
	ChunkOverhead = NonceLen + MACLen
)

// ErrSizeObfuscated is returned when the cleartext size cannot be computed
// from the ciphertext size alone because the format pads files.
var ErrSizeObfuscated = errors.New("cleartext size is obfuscated in this vault format")

// ContentEnc is used to encipher and decipher file content.
// It is safe for concurrent use.
type ContentEnc struct {
	masterKey *cryptocore.MasterKey
	format    vaultformat.Format
	rand      cryptocore.RandomSource
	// Plaintext block size
	plainBS uint64
	// Ciphertext block size
	cipherBS uint64
	// Buffers for streaming. pBlockPool holds cleartext and is wiped.
	cBlockPool *bPool
	pBlockPool *bPool
}

// New returns an initialized ContentEnc instance. "rs" may be nil to use
// cryptocore.Default.
func New(mk *cryptocore.MasterKey, format vaultformat.Format, rs cryptocore.RandomSource) *ContentEnc {
	cipherBS := uint64(defaultCipherBS)
	return &ContentEnc{
		masterKey:  mk,
		format:     format,
		rand:       cryptocore.OrDefault(rs),
		plainBS:    DefaultBS,
		cipherBS:   cipherBS,
		cBlockPool: newBPool(int(cipherBS), false),
		pBlockPool: newBPool(DefaultBS, true),
	}
}

// PlainBS returns the plaintext block size
func (be *ContentEnc) PlainBS() uint64 {
	return be.plainBS
}

// CipherBS returns the ciphertext block size
func (be *ContentEnc) CipherBS() uint64 {
	return be.cipherBS
}

// Format returns the vault format this instance was created for.
func (be *ContentEnc) Format() vaultformat.Format {
	return be.format
}

func aesCTR(key, nonce, dst, src []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	cipher.NewCTR(block, nonce).XORKeyStream(dst, src)
	return nil
}

// chunkMAC computes HMAC(macKey, headerNonce ‖ BE64(chunkNo) ‖ nonce ‖ ciphertext).
func (be *ContentEnc) chunkMAC(h *Header, chunkNo uint64, nonceAndCiphertext []byte) []byte {
	var mac hash.Hash = hmac.New(sha256.New, be.masterKey.MacKey())
	mac.Write(h.Nonce)
	mac.Write(cryptocore.Uint64BE(chunkNo))
	mac.Write(nonceAndCiphertext)
	return mac.Sum(nil)
}

// EncryptChunk encrypts the cleartext chunk "plaintext" (at most PlainBS()
// bytes) at position "chunkNo" of the file described by "h".
// Returns nonce ‖ ciphertext ‖ mac.
func (be *ContentEnc) EncryptChunk(plaintext []byte, chunkNo uint64, h *Header) ([]byte, error) {
	if uint64(len(plaintext)) > be.plainBS {
		return nil, fmt.Errorf("%w: chunk of %d bytes exceeds %d", cryptocore.ErrEncryptionFailed, len(plaintext), be.plainBS)
	}
	nonce, err := be.rand.RandBytes(NonceLen)
	if err != nil {
		return nil, err
	}
	out := make([]byte, NonceLen+len(plaintext), NonceLen+len(plaintext)+MACLen)
	copy(out, nonce)
	if err := aesCTR(h.Payload.ContentKey, nonce, out[NonceLen:], plaintext); err != nil {
		return nil, fmt.Errorf("%w: %v", cryptocore.ErrEncryptionFailed, err)
	}
	return append(out, be.chunkMAC(h, chunkNo, out)...), nil
}

// AuthenticateChunk verifies the MAC of "ciphertext" without decrypting it.
func (be *ContentEnc) AuthenticateChunk(ciphertext []byte, chunkNo uint64, h *Header) error {
	if len(ciphertext) < ChunkOverhead {
		tlog.Warn.Printf("AuthenticateChunk: chunk %d is too short: %d bytes", chunkNo, len(ciphertext))
		return fmt.Errorf("%w: chunk %d is too short", cryptocore.ErrAuthenticationFailed, chunkNo)
	}
	if uint64(len(ciphertext)) > be.cipherBS {
		return fmt.Errorf("%w: chunk %d is too long", cryptocore.ErrAuthenticationFailed, chunkNo)
	}
	body := ciphertext[:len(ciphertext)-MACLen]
	tag := ciphertext[len(ciphertext)-MACLen:]
	if !cryptocore.ConstantTimeEqual(be.chunkMAC(h, chunkNo, body), tag) {
		tlog.Warn.Printf("AuthenticateChunk: MAC mismatch in chunk %d, len=%d", chunkNo, len(ciphertext))
		tlog.Debug.Println(hex.Dump(ciphertext))
		return fmt.Errorf("%w: chunk %d", cryptocore.ErrAuthenticationFailed, chunkNo)
	}
	return nil
}

// DecryptChunk verifies and decrypts one chunk. No plaintext is returned
// unless the MAC matches.
func (be *ContentEnc) DecryptChunk(ciphertext []byte, chunkNo uint64, h *Header) ([]byte, error) {
	if err := be.AuthenticateChunk(ciphertext, chunkNo, h); err != nil {
		return nil, err
	}
	nonce := ciphertext[:NonceLen]
	body := ciphertext[NonceLen : len(ciphertext)-MACLen]
	plaintext := make([]byte, len(body))
	if err := aesCTR(h.Payload.ContentKey, nonce, plaintext, body); err != nil {
		return nil, fmt.Errorf("%w: %v", cryptocore.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
