package configfile

import (
	"fmt"
	"math"
	"math/bits"

	"golang.org/x/crypto/scrypt"

	"github.com/rfjakob/vaultcryptor/internal/cryptocore"
)

const (
	// ScryptDefaultN is the default scrypt cost parameter, the value
	// Cryptomator writes into new vaults.
	// N=2^15 uses 32MB of memory with r=8.
	ScryptDefaultN = 1 << 15
	// ScryptDefaultR is the default scrypt block size.
	ScryptDefaultR = 8
	// ScryptSaltLen is the length of newly generated salts.
	ScryptSaltLen = 8
	// logN=10 takes 6ms on a Pentium G630. This should be fast enough for all
	// purposes. We reject lower values.
	scryptMinLogN = 10
	// Upper bounds keep a hostile key file from making us allocate
	// gigabytes: 128 * r * N bytes are needed.
	scryptMaxLogN = 24
	scryptMaxR    = 32
	scryptMinR    = 1
	scryptP       = 1
	// We always generate 8-byte salts. Anything smaller than that is rejected.
	scryptMinSaltLen = ScryptSaltLen
)

// ScryptKDF is an instance of the scrypt key derivation function.
type ScryptKDF struct {
	// Salt is the random salt that is passed to scrypt
	Salt []byte
	// N: scrypt CPU/Memory cost parameter
	N uint64
	// R: scrypt block size parameter
	R uint32
	// KeyLen is the output data length
	KeyLen int
}

// NewScryptKDF returns a new instance of ScryptKDF with a fresh salt from
// "rs". Zero values for "n" and "r" select the defaults.
func NewScryptKDF(rs cryptocore.RandomSource, n uint64, r uint32, keyLen int) (ScryptKDF, error) {
	var s ScryptKDF
	salt, err := cryptocore.OrDefault(rs).RandBytes(ScryptSaltLen)
	if err != nil {
		return s, fmt.Errorf("%w: %w", ErrKeyDerivationFailed, err)
	}
	s.Salt = salt
	s.N = n
	if s.N == 0 {
		s.N = ScryptDefaultN
	}
	s.R = r
	if s.R == 0 {
		s.R = ScryptDefaultR
	}
	s.KeyLen = keyLen
	if err := s.validateParams(); err != nil {
		return s, fmt.Errorf("%w: %v", ErrKeyDerivationFailed, err)
	}
	return s, nil
}

// DeriveKey returns a new key from a supplied password and pepper.
// The pepper is appended to the salt.
func (s *ScryptKDF) DeriveKey(pw, pepper []byte) ([]byte, error) {
	if err := s.validateParams(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	salt := make([]byte, 0, len(s.Salt)+len(pepper))
	salt = append(salt, s.Salt...)
	salt = append(salt, pepper...)
	k, err := scrypt.Key(pw, salt, int(s.N), int(s.R), scryptP, s.KeyLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivationFailed, err)
	}
	return k, nil
}

// LogN - N is saved as 2^LogN, but LogN is much easier to work with.
// This function gives you LogN = Log2(N).
func (s *ScryptKDF) LogN() int {
	return int(math.Log2(float64(s.N)) + 0.5)
}

// validateParams checks that all parameters are within hardcoded limits.
// This makes sure we do not get weak parameters passed through a
// rogue masterkey file.
func (s *ScryptKDF) validateParams() error {
	if s.N < 1<<scryptMinLogN {
		return fmt.Errorf("scrypt cost parameter %d below minimum %d", s.N, 1<<scryptMinLogN)
	}
	if s.N > 1<<scryptMaxLogN {
		return fmt.Errorf("scrypt cost parameter %d above maximum %d", s.N, 1<<scryptMaxLogN)
	}
	if bits.OnesCount64(s.N) != 1 {
		return fmt.Errorf("scrypt cost parameter %d is not a power of two", s.N)
	}
	if s.R < scryptMinR || s.R > scryptMaxR {
		return fmt.Errorf("scrypt block size %d out of range [%d, %d]", s.R, scryptMinR, scryptMaxR)
	}
	if len(s.Salt) < scryptMinSaltLen {
		return fmt.Errorf("scrypt salt length below minimum: value=%d, min=%d", len(s.Salt), scryptMinSaltLen)
	}
	if err := cryptocore.CheckKeyLen(make([]byte, s.KeyLen)); err != nil {
		return fmt.Errorf("scrypt output length: %v", err)
	}
	return nil
}
