package contentenc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rfjakob/vaultcryptor/internal/cryptocore"
)

func encryptBytes(t *testing.T, ce *ContentEnc, pt []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	if err := ce.EncryptStream(&out, bytes.NewReader(pt), int64(len(pt)), nil); err != nil {
		t.Fatal(err)
	}
	return out.Bytes()
}

func TestStreamRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 4096, DefaultBS - 1, DefaultBS, DefaultBS + 1, 3 * DefaultBS, 100 * 1024}
	for _, v := range []uint32{3, 4, 5, 7, 8} {
		ce := newTestCE(t, v)
		for _, n := range sizes {
			pt := testData(n)
			ct := encryptBytes(t, ce, pt)
			want := CiphertextSizeFromCleartextSize(uint64(n))
			if ce.format.SizeObfuscated {
				maxPad := uint64(min(n/10, 4096))
				if uint64(len(ct)) < want || uint64(len(ct)) > CiphertextSizeFromCleartextSize(uint64(n)+maxPad) {
					t.Errorf("v%d n=%d: ciphertext size %d out of range", v, n, len(ct))
				}
			} else if uint64(len(ct)) != want {
				t.Errorf("v%d n=%d: ciphertext size %d, want %d", v, n, len(ct), want)
			}
			var out bytes.Buffer
			if err := ce.DecryptStream(&out, bytes.NewReader(ct), int64(len(ct)), nil); err != nil {
				t.Fatalf("v%d n=%d: %v", v, n, err)
			}
			if !bytes.Equal(out.Bytes(), pt) {
				t.Errorf("v%d n=%d: cleartext differs", v, n)
			}
			if err := ce.AuthenticateStream(bytes.NewReader(ct), int64(len(ct)), nil); err != nil {
				t.Errorf("v%d n=%d: authenticate: %v", v, n, err)
			}
		}
	}
}

// Encrypt 100 KiB: one header plus four chunks. Corrupting chunk 3 fails
// decryption exactly there, after chunks 0-2 have been delivered.
func TestCorruptChunkPartialProgress(t *testing.T) {
	ce := newTestCE(t, 7)
	pt := testData(100 * 1024)
	var progress []float64
	var out bytes.Buffer
	err := ce.EncryptStream(&out, bytes.NewReader(pt), int64(len(pt)),
		func(f float64) { progress = append(progress, f) })
	if err != nil {
		t.Fatal(err)
	}
	ct := out.Bytes()
	if want := HeaderLen + 3*(DefaultBS+ChunkOverhead) + 4096 + ChunkOverhead; len(ct) != want {
		t.Fatalf("ciphertext is %d bytes, want %d", len(ct), want)
	}
	if len(progress) != 4 || progress[3] != 1 {
		t.Errorf("encrypt progress: %v", progress)
	}

	progress = nil
	err = ce.AuthenticateStream(bytes.NewReader(ct), int64(len(ct)), func(f float64) { progress = append(progress, f) })
	if err != nil {
		t.Fatal(err)
	}
	if len(progress) != 4 {
		t.Errorf("authenticate progress: %v", progress)
	}

	// Flip a byte inside the ciphertext of chunk 3
	ct[int(ce.BlockNoToCipherOff(3))+NonceLen+10] ^= 0xff
	progress = nil
	out.Reset()
	err = ce.DecryptStream(&out, bytes.NewReader(ct), int64(len(ct)), func(f float64) { progress = append(progress, f) })
	if !errors.Is(err, cryptocore.ErrAuthenticationFailed) {
		t.Fatalf("got %v", err)
	}
	want := []float64{0.25, 0.5, 0.75}
	if len(progress) != len(want) {
		t.Fatalf("progress before failure: %v", progress)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress[%d] = %v, want %v", i, progress[i], want[i])
		}
	}
	if !bytes.Equal(out.Bytes(), pt[:3*DefaultBS]) {
		t.Errorf("expected exactly chunks 0-2 to be written, got %d bytes", out.Len())
	}
	if err := ce.AuthenticateStream(bytes.NewReader(ct), int64(len(ct)), nil); !errors.Is(err, cryptocore.ErrAuthenticationFailed) {
		t.Errorf("authenticate: got %v", err)
	}
}

func TestZeroChunkProgress(t *testing.T) {
	ce := newTestCE(t, 7)
	var progress []float64
	report := func(f float64) { progress = append(progress, f) }
	var out bytes.Buffer
	if err := ce.EncryptStream(&out, bytes.NewReader(nil), 0, report); err != nil {
		t.Fatal(err)
	}
	if out.Len() != HeaderLen {
		t.Errorf("empty file encrypts to %d bytes", out.Len())
	}
	ct := out.Bytes()
	out.Reset()
	if err := ce.DecryptStream(&out, bytes.NewReader(ct), int64(len(ct)), report); err != nil {
		t.Fatal(err)
	}
	if len(progress) != 2 || progress[0] != 1 || progress[1] != 1 {
		t.Errorf("progress: %v", progress)
	}
}

func TestReorderedChunks(t *testing.T) {
	ce := newTestCE(t, 7)
	ct := encryptBytes(t, ce, testData(2*DefaultBS))
	cbs := int(ce.CipherBS())
	swapped := append([]byte{}, ct[:HeaderLen]...)
	swapped = append(swapped, ct[HeaderLen+cbs:]...)
	swapped = append(swapped, ct[HeaderLen:HeaderLen+cbs]...)
	var out bytes.Buffer
	err := ce.DecryptStream(&out, bytes.NewReader(swapped), int64(len(swapped)), nil)
	if !errors.Is(err, cryptocore.ErrAuthenticationFailed) {
		t.Errorf("got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("%d unauthenticated bytes written", out.Len())
	}
}

func TestTruncated(t *testing.T) {
	ce := newTestCE(t, 7)
	ct := encryptBytes(t, ce, testData(DefaultBS+100))
	var out bytes.Buffer
	// Cut into the MAC of the last chunk
	err := ce.DecryptStream(&out, bytes.NewReader(ct[:len(ct)-1]), int64(len(ct)-1), nil)
	if !errors.Is(err, cryptocore.ErrAuthenticationFailed) {
		t.Errorf("got %v", err)
	}
	// Leave a fragment shorter than the chunk overhead
	cut := HeaderLen + int(ce.CipherBS()) + 10
	err = ce.DecryptStream(&out, bytes.NewReader(ct[:cut]), int64(cut), nil)
	if !errors.Is(err, cryptocore.ErrAuthenticationFailed) {
		t.Errorf("got %v", err)
	}
	// Header only
	err = ce.DecryptStream(&out, bytes.NewReader(ct[:HeaderLen-1]), HeaderLen-1, nil)
	if !errors.Is(err, cryptocore.ErrCorruptedHeader) {
		t.Errorf("got %v", err)
	}
}

// Size-obfuscating formats record the size, so dropping whole chunks is
// detected.
func TestTruncatedObfuscated(t *testing.T) {
	ce := newTestCE(t, 3)
	ct := encryptBytes(t, ce, testData(2*DefaultBS))
	cut := HeaderLen + int(ce.CipherBS())
	var out bytes.Buffer
	err := ce.DecryptStream(&out, bytes.NewReader(ct[:cut]), int64(cut), nil)
	if !errors.Is(err, cryptocore.ErrAuthenticationFailed) {
		t.Errorf("got %v", err)
	}
	if err := ce.AuthenticateStream(bytes.NewReader(ct[:cut]), int64(cut), nil); !errors.Is(err, cryptocore.ErrAuthenticationFailed) {
		t.Errorf("authenticate: got %v", err)
	}
}

// Formats from v5 on record no size in the header, so a file cut at a chunk
// boundary still decrypts and authenticates, just shorter. Every chunk
// that is present is verified; the loss of trailing chunks is not.
func TestTruncatedAtChunkBoundary(t *testing.T) {
	for _, v := range []uint32{5, 6, 7, 8} {
		ce := newTestCE(t, v)
		pt := testData(2 * DefaultBS)
		ct := encryptBytes(t, ce, pt)
		cut := HeaderLen + int(ce.CipherBS())
		var out bytes.Buffer
		if err := ce.DecryptStream(&out, bytes.NewReader(ct[:cut]), int64(cut), nil); err != nil {
			t.Errorf("v%d: decrypt: %v", v, err)
		}
		if !bytes.Equal(out.Bytes(), pt[:DefaultBS]) {
			t.Errorf("v%d: got %d bytes, want the first chunk", v, out.Len())
		}
		if err := ce.AuthenticateStream(bytes.NewReader(ct[:cut]), int64(cut), nil); err != nil {
			t.Errorf("v%d: authenticate: %v", v, err)
		}
		// Dropping a chunk in the middle shifts the chunk numbers
		mid := append(append([]byte{}, ct[:HeaderLen]...), ct[cut:]...)
		if err := ce.AuthenticateStream(bytes.NewReader(mid), int64(len(mid)), nil); !errors.Is(err, cryptocore.ErrAuthenticationFailed) {
			t.Errorf("v%d: dropped first chunk: got %v", v, err)
		}
	}
}

func TestShortSource(t *testing.T) {
	ce := newTestCE(t, 7)
	var out bytes.Buffer
	err := ce.EncryptStream(&out, bytes.NewReader([]byte("abc")), 10, nil)
	if !errors.Is(err, cryptocore.ErrEncryptionFailed) {
		t.Errorf("got %v", err)
	}
}

func BenchmarkEncryptStream(b *testing.B) {
	ce := newTestCE(b, 7)
	pt := testData(1024 * 1024)
	b.SetBytes(int64(len(pt)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var out bytes.Buffer
		if err := ce.EncryptStream(&out, bytes.NewReader(pt), int64(len(pt)), nil); err != nil {
			b.Fatal(err)
		}
	}
}
