package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest accepted HS256 signing secret, in bytes.
const MinSecretLength = 32

var (
	// ErrInvalid is wrapped by every parse failure.
	ErrInvalid = errors.New("invalid token")
	// ErrSignatureInvalid reports a bad signature or an unexpected algorithm.
	ErrSignatureInvalid = fmt.Errorf("%w: signature", ErrInvalid)
	// ErrExpired reports a correctly signed token past its expiry.
	ErrExpired = fmt.Errorf("%w: expired", ErrInvalid)
	// ErrMalformed reports a token that cannot be decoded or lacks required claims.
	ErrMalformed = fmt.Errorf("%w: malformed", ErrInvalid)
	// ErrClaimNotFound is returned by ClaimOf for an absent claim.
	ErrClaimNotFound = errors.New("claim not found")
	// ErrWeakSecret is returned by NewCodec when the secret is too short.
	ErrWeakSecret = fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)
)

// Identity is the application payload carried by a token.
type Identity struct {
	Username string
	Roles    []string
}

// Claims is the decoded payload of a verified token.
type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the application payload of c.
func (c *Claims) Identity() Identity {
	return Identity{Username: c.Username, Roles: append([]string(nil), c.Roles...)}
}

// Config holds the process-wide signing parameters.
type Config struct {
	Secret []byte
	Issuer string
	Leeway time.Duration
}

// Option customizes a Codec.
type Option func(*Codec)

// WithClock replaces time.Now for both issuance and verification.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// Codec signs and verifies tokens. It is safe for concurrent use.
type Codec struct {
	secret []byte
	issuer string
	parser *jwt.Parser
	now    func() time.Time
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("leeway must be within [0, 2m]")
	}

	c := &Codec{
		secret: append([]byte(nil), cfg.Secret...),
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	}
	if cfg.Leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	c.parser = jwt.NewParser(parserOpts...)

	return c, nil
}

// Issue signs a token for subject that expires ttl from now.
func (c *Codec) Issue(subject string, id Identity, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}

	now := c.now()
	claims := Claims{
		Username: id.Username,
		Roles:    id.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Parse verifies token and returns its claims.
func (c *Codec) Parse(token string) (*Claims, error) {
	// Non-canonical signature encodings are rejected as signature failures,
	// not malformed tokens: the signature segment is all the caller altered.
	if i := strings.LastIndexByte(token, '.'); i >= 0 && strings.Count(token, ".") == 2 {
		if _, err := c.parser.DecodeSegment(token[i+1:]); err != nil {
			return nil, fmt.Errorf("%w: signature encoding: %v", ErrSignatureInvalid, err)
		}
	}

	claims := &Claims{}
	if _, err := c.parser.ParseWithClaims(token, claims, c.key); err != nil {
		return nil, classify(err)
	}
	if claims.Subject == "" || claims.Username == "" {
		return nil, fmt.Errorf("%w: missing subject or username", ErrMalformed)
	}
	return claims, nil
}

// SubjectOf returns the verified subject of token.
func (c *Codec) SubjectOf(token string) (string, error) {
	claims, err := c.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ClaimOf returns a single verified claim by its JSON name. Numeric claims
// decode as float64, arrays as []any.
func (c *Codec) ClaimOf(token, key string) (any, error) {
	if _, err := c.Parse(token); err != nil {
		return nil, err
	}
	// Verified above. Decode again into a map to expose arbitrary keys.
	mc := jwt.MapClaims{}
	if _, err := c.parser.ParseWithClaims(token, mc, c.key); err != nil {
		return nil, classify(err)
	}
	v, ok := mc[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClaimNotFound, key)
	}
	return v, nil
}

func (c *Codec) key(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	return c.secret, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
