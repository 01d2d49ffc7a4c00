package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2ID            = "argon2id"
	argon2MinMemoryKB   = 8 * 1024
	argon2MinSaltLength = 16
	argon2MinKeyLength  = 16
)

// Argon2Config tunes the argon2id hasher. Memory is in KiB.
type Argon2Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns interactive-login parameters.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < argon2MinMemoryKB:
		return errors.New("argon2 memory must be >= 8192 KiB")
	case c.Time < 1:
		return errors.New("argon2 time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("argon2 parallelism must be >= 1")
	case c.SaltLength < argon2MinSaltLength:
		return errors.New("argon2 salt length must be >= 16")
	case c.KeyLength < argon2MinKeyLength:
		return errors.New("argon2 key length must be >= 16")
	}
	return nil
}

// Argon2 hashes passwords with argon2id and encodes them in PHC format.
type Argon2 struct {
	cfg Argon2Config
}

// NewArgon2 returns an argon2id hasher. A zero config selects DefaultArgon2Config.
func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	if cfg == (Argon2Config{}) {
		cfg = DefaultArgon2Config()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{cfg: cfg}, nil
}

// Hash derives a key from plaintext with a random salt.
func (a *Argon2) Hash(plaintext string) (string, error) {
	salt := make([]byte, a.cfg.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(plaintext), salt, a.cfg.Time, a.cfg.Memory, a.cfg.Parallelism, a.cfg.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2ID, argon2.Version,
		a.cfg.Memory, a.cfg.Time, a.cfg.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify re-derives the key with the parameters stored in encoded.
func (a *Argon2) Verify(plaintext, encoded string) (bool, error) {
	phc, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(plaintext), phc.salt, phc.Time, phc.Memory, phc.Parallelism, phc.KeyLength)
	return subtle.ConstantTimeCompare(key, phc.key) == 1, nil
}

// NeedsRehash reports whether encoded uses weaker parameters than a.
func (a *Argon2) NeedsRehash(encoded string) (bool, error) {
	phc, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	weaker := a.cfg.Memory > phc.Memory ||
		a.cfg.Time > phc.Time ||
		a.cfg.Parallelism > phc.Parallelism ||
		a.cfg.KeyLength != phc.KeyLength
	return weaker, nil
}

type phcHash struct {
	Argon2Config
	salt []byte
	key  []byte
}

func decodePHC(encoded string) (*phcHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != argon2ID {
		return nil, fmt.Errorf("%w: not an argon2id PHC string", ErrMalformedHash)
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, fmt.Errorf("%w: unsupported argon2 version", ErrMalformedHash)
	}

	out := &phcHash{}
	if err := out.decodeParams(parts[3]); err != nil {
		return nil, err
	}

	var err error
	if out.salt, err = base64.StdEncoding.DecodeString(parts[4]); err != nil || len(out.salt) < argon2MinSaltLength {
		return nil, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	if out.key, err = base64.StdEncoding.DecodeString(parts[5]); err != nil || len(out.key) == 0 {
		return nil, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}
	out.SaltLength = uint32(len(out.salt))
	out.KeyLength = uint32(len(out.key))
	return out, nil
}

func (p *phcHash) decodeParams(s string) error {
	seen := 0
	for _, pair := range strings.Split(s, ",") {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: bad parameter %q", ErrMalformedHash, pair)
		}
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: bad parameter %q", ErrMalformedHash, pair)
		}
		switch name {
		case "m":
			if v < argon2MinMemoryKB {
				return fmt.Errorf("%w: memory too low", ErrMalformedHash)
			}
			p.Memory = uint32(v)
		case "t":
			if v < 1 {
				return fmt.Errorf("%w: time too low", ErrMalformedHash)
			}
			p.Time = uint32(v)
		case "p":
			if v < 1 || v > 255 {
				return fmt.Errorf("%w: bad parallelism", ErrMalformedHash)
			}
			p.Parallelism = uint8(v)
		default:
			return fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, name)
		}
		seen++
	}
	if seen != 3 {
		return fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}
	return nil
}
