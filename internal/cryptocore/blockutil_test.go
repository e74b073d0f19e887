package cryptocore

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestDbl(t *testing.T) {
	testTable := []struct {
		in   string
		want string
	}{
		// No carry: plain left shift
		{"00000000000000000000000000000001", "00000000000000000000000000000002"},
		// Carry out of the top bit folds 0x87 into the last byte
		{"80000000000000000000000000000000", "00000000000000000000000000000087"},
		// RFC 5297 A.1: dbl(CMAC(zero))
		{"0e04dfafc1efbf040140582859bf073a", "1c09bf5f83df7e080280b050b37e0e74"},
	}
	for _, v := range testTable {
		b, _ := hex.DecodeString(v.in)
		Dbl(b)
		if have := hex.EncodeToString(b); have != v.want {
			t.Errorf("Dbl(%s): want=%s have=%s", v.in, v.want, have)
		}
	}
}

func TestPadISO7816(t *testing.T) {
	have := PadISO7816([]byte{1, 2, 3}, 8)
	want := []byte{1, 2, 3, 0x80, 0, 0, 0, 0}
	if !bytes.Equal(have, want) {
		t.Errorf("want=%x have=%x", want, have)
	}
	have = PadISO7816(nil, 4)
	if !bytes.Equal(have, []byte{0x80, 0, 0, 0}) {
		t.Errorf("empty input: have=%x", have)
	}
}

func TestPadISO7816Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("The code did not panic")
		}
	}()
	PadISO7816(make([]byte, 16), 16)
}

func TestXorEnd(t *testing.T) {
	in := []byte{1, 2, 3, 4, 5}
	have := XorEnd(in, []byte{0xff, 0xff})
	want := []byte{1, 2, 3, 4 ^ 0xff, 5 ^ 0xff}
	if !bytes.Equal(have, want) {
		t.Errorf("want=%x have=%x", want, have)
	}
	// Input must not be modified
	if !bytes.Equal(in, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("input was modified: %x", in)
	}
}

func TestBigEndian(t *testing.T) {
	if have := hex.EncodeToString(Uint64BE(0x0102030405060708)); have != "0102030405060708" {
		t.Errorf("Uint64BE: %s", have)
	}
	if have := hex.EncodeToString(Uint32BE(7)); have != "00000007" {
		t.Errorf("Uint32BE: %s", have)
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual([]byte("abc"), []byte("abc")) {
		t.Error("equal slices compare unequal")
	}
	if ConstantTimeEqual([]byte("abc"), []byte("abd")) {
		t.Error("different slices compare equal")
	}
	if ConstantTimeEqual([]byte("abc"), []byte("ab")) {
		t.Error("different lengths compare equal")
	}
}
