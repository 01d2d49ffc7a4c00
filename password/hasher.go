package password

import (
	"errors"
	"strings"
)

// ErrMalformedHash is returned by Verify when the stored hash cannot be decoded.
var ErrMalformedHash = errors.New("malformed password hash")

// Hasher hashes plaintext passwords and verifies them against stored hashes.
//
// Verify reports (false, nil) for a well-formed hash that does not match and a
// non-nil error only when the stored hash itself is unusable.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encoded string) (bool, error)
}

// Rehasher is implemented by hashers that can tell when a stored hash was
// produced with weaker parameters than the current configuration.
type Rehasher interface {
	NeedsRehash(encoded string) (bool, error)
}

// Algorithm names accepted by New.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// Options selects and tunes a hasher.
type Options struct {
	Algorithm  string
	BcryptCost int
	Argon2     Argon2Config
}

// New returns the hasher described by opts. An empty algorithm selects bcrypt.
func New(opts Options) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Algorithm)) {
	case "", AlgorithmBcrypt:
		return NewBcrypt(opts.BcryptCost)
	case AlgorithmArgon2id:
		return NewArgon2(opts.Argon2)
	default:
		return nil, errors.New("unsupported password algorithm")
	}
}
