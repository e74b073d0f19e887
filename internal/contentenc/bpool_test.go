package contentenc

import (
	"bytes"
	"testing"
)

func TestBPoolWipe(t *testing.T) {
	p := newBPool(16, true)
	s := p.Get()
	copy(s, "secret cleartext")
	p.Put(s[:3])
	if !bytes.Equal(s, make([]byte, 16)) {
		t.Errorf("buffer not wiped: %q", s)
	}

	keep := newBPool(16, false)
	s = keep.Get()
	copy(s, "ciphertext bytes")
	keep.Put(s)
	if string(s) != "ciphertext bytes" {
		t.Errorf("buffer modified: %q", s)
	}
}

func TestBPoolWrongSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Put of a foreign buffer did not panic")
		}
	}()
	newBPool(16, true).Put(make([]byte, 8))
}

// The cleartext buffer of a ContentEnc is wiped after encryption.
func TestStreamWipesCleartextBuffer(t *testing.T) {
	ce := newTestCE(t, 7)
	encryptBytes(t, ce, testData(100))
	s := ce.pBlockPool.Get()
	if !bytes.Equal(s, make([]byte, len(s))) {
		t.Error("pooled cleartext buffer is not zero")
	}
}
