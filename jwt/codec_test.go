package jwt

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCodec(t *testing.T, cfg Config) (*Codec, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	if cfg.Secret == nil {
		cfg.Secret = testSecret
	}
	c, err := NewCodec(cfg, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c, clock
}

func TestIssueParseRoundTrip(t *testing.T) {
	c, _ := newTestCodec(t, Config{Issuer: "authkeep"})
	id := Identity{Username: "alice", Roles: []string{"ROLE_USER", "ROLE_ADMIN"}}

	token, err := c.Issue("42", id, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("expected three segments, got %q", token)
	}

	claims, err := c.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "42" || claims.Username != "alice" || !slices.Equal(claims.Roles, id.Roles) {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Hour {
		t.Fatalf("exp - iat = %v, want 1h", got)
	}
}

func TestParseExpired(t *testing.T) {
	c, clock := newTestCodec(t, Config{})
	token, err := c.Issue("1", Identity{Username: "bob"}, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.Advance(59 * time.Second)
	if _, err := c.Parse(token); err != nil {
		t.Fatalf("expected token valid before expiry: %v", err)
	}

	clock.Advance(2 * time.Second)
	_, err = c.Parse(token)
	if !errors.Is(err, ErrExpired) || !errors.Is(err, ErrInvalid) {
		t.Fatalf("Parse after expiry err = %v, want ErrExpired", err)
	}
	if _, err := c.SubjectOf(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("SubjectOf after expiry err = %v, want ErrExpired", err)
	}
}

func TestParseLeewayExtendsExpiry(t *testing.T) {
	c, clock := newTestCodec(t, Config{Leeway: 30 * time.Second})
	token, _ := c.Issue("1", Identity{Username: "bob"}, time.Minute)
	clock.Advance(80 * time.Second)
	if _, err := c.Parse(token); err != nil {
		t.Fatalf("expected leeway to accept token: %v", err)
	}
}

func TestSignatureTamperAnyPosition(t *testing.T) {
	c, _ := newTestCodec(t, Config{})
	token, err := c.Issue("7", Identity{Username: "carol", Roles: []string{"ROLE_USER"}}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	sigStart := strings.LastIndexByte(token, '.') + 1
	for i := sigStart; i < len(token); i++ {
		b := []byte(token)
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
		claims, err := c.Parse(string(b))
		if !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("tamper at %d: err = %v, want ErrSignatureInvalid", i, err)
		}
		if claims != nil {
			t.Fatalf("tamper at %d: claims leaked: %+v", i, claims)
		}
	}
}

// TestSignatureTrailingBitsRejected flips the low bit of the last signature
// character. Those bits fall outside the 32 signature bytes, so only strict
// decoding tells the two encodings apart.
func TestSignatureTrailingBitsRejected(t *testing.T) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	c, _ := newTestCodec(t, Config{})
	token, err := c.Issue("7", Identity{Username: "carol"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	last := strings.IndexByte(alphabet, token[len(token)-1])
	if last < 0 {
		t.Fatalf("unexpected signature character %q", token[len(token)-1])
	}
	tampered := token[:len(token)-1] + string(alphabet[last^1])

	claims, err := c.Parse(tampered)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("err = %v, want ErrSignatureInvalid", err)
	}
	if claims != nil {
		t.Fatalf("claims leaked: %+v", claims)
	}
	if _, err := c.SubjectOf(tampered); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("SubjectOf err = %v, want ErrSignatureInvalid", err)
	}
}

func TestSignatureCheckedBeforeExpiry(t *testing.T) {
	c, clock := newTestCodec(t, Config{})
	token, _ := c.Issue("7", Identity{Username: "carol"}, time.Minute)
	clock.Advance(time.Hour)

	sigStart := strings.LastIndexByte(token, '.') + 1
	b := []byte(token)
	if b[sigStart] == 'A' {
		b[sigStart] = 'B'
	} else {
		b[sigStart] = 'A'
	}
	if _, err := c.Parse(string(b)); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expired forged token err = %v, want ErrSignatureInvalid", err)
	}
}

func TestParseRejectsOtherSecretAndAlgorithm(t *testing.T) {
	c, clock := newTestCodec(t, Config{})
	other, err := NewCodec(Config{Secret: []byte("ffffffffffffffffffffffffffffffff")}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	foreign, _ := other.Issue("1", Identity{Username: "x"}, time.Hour)
	if _, err := c.Parse(foreign); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("foreign secret err = %v, want ErrSignatureInvalid", err)
	}

	claims := Claims{Username: "x", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "1",
		IssuedAt:  gjwt.NewNumericDate(clock.Now()),
		ExpiresAt: gjwt.NewNumericDate(clock.Now().Add(time.Hour)),
	}}
	hs512, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString(testSecret)
	if _, err := c.Parse(hs512); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("HS512 token err = %v, want ErrSignatureInvalid", err)
	}

	none, _ := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if _, err := c.Parse(none); !errors.Is(err, ErrInvalid) {
		t.Fatalf("alg=none token err = %v, want ErrInvalid", err)
	}
}

func TestParseMalformed(t *testing.T) {
	c, clock := newTestCodec(t, Config{Issuer: "authkeep"})
	for _, raw := range []string{"", "abc", "a.b", "a.b.c", "....", "Bearer x.y.z"} {
		if _, err := c.Parse(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Parse(%q) err = %v, want ErrMalformed", raw, err)
		}
	}

	noExp := Claims{Username: "x", RegisteredClaims: gjwt.RegisteredClaims{Subject: "1", Issuer: "authkeep"}}
	tok, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, noExp).SignedString(testSecret)
	if _, err := c.Parse(tok); !errors.Is(err, ErrMalformed) {
		t.Fatalf("missing exp err = %v, want ErrMalformed", err)
	}

	noSub := Claims{Username: "x", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "authkeep",
		ExpiresAt: gjwt.NewNumericDate(clock.Now().Add(time.Hour)),
	}}
	tok, _ = gjwt.NewWithClaims(gjwt.SigningMethodHS256, noSub).SignedString(testSecret)
	if _, err := c.Parse(tok); !errors.Is(err, ErrMalformed) {
		t.Fatalf("missing sub err = %v, want ErrMalformed", err)
	}

	wrongIss := Claims{Username: "x", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "1",
		Issuer:    "someone-else",
		ExpiresAt: gjwt.NewNumericDate(clock.Now().Add(time.Hour)),
	}}
	tok, _ = gjwt.NewWithClaims(gjwt.SigningMethodHS256, wrongIss).SignedString(testSecret)
	if _, err := c.Parse(tok); !errors.Is(err, ErrMalformed) {
		t.Fatalf("wrong issuer err = %v, want ErrMalformed", err)
	}
}

func TestClaimOf(t *testing.T) {
	c, clock := newTestCodec(t, Config{})
	token, _ := c.Issue("9", Identity{Username: "dave", Roles: []string{"ROLE_USER"}}, time.Hour)

	v, err := c.ClaimOf(token, "username")
	if err != nil || v != "dave" {
		t.Fatalf("ClaimOf(username) = (%v, %v)", v, err)
	}
	roles, err := c.ClaimOf(token, "roles")
	if err != nil {
		t.Fatalf("ClaimOf(roles): %v", err)
	}
	if list, ok := roles.([]any); !ok || len(list) != 1 || list[0] != "ROLE_USER" {
		t.Fatalf("ClaimOf(roles) = %#v", roles)
	}
	if _, err := c.ClaimOf(token, "email"); !errors.Is(err, ErrClaimNotFound) {
		t.Fatalf("ClaimOf(email) err = %v, want ErrClaimNotFound", err)
	}

	clock.Advance(2 * time.Hour)
	if _, err := c.ClaimOf(token, "username"); !errors.Is(err, ErrExpired) {
		t.Fatalf("ClaimOf after expiry err = %v, want ErrExpired", err)
	}
}

func TestNewCodecRejectsWeakSecret(t *testing.T) {
	if _, err := NewCodec(Config{Secret: []byte("short")}); !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("NewCodec short secret err = %v, want ErrWeakSecret", err)
	}
	if _, err := NewCodec(Config{Secret: testSecret, Leeway: time.Hour}); err == nil {
		t.Fatal("expected excessive leeway to be rejected")
	}
}

func TestIssueValidatesInput(t *testing.T) {
	c, _ := newTestCodec(t, Config{})
	if _, err := c.Issue("", Identity{Username: "x"}, time.Hour); err == nil {
		t.Fatal("expected empty subject to fail")
	}
	if _, err := c.Issue("1", Identity{Username: "x"}, 0); err == nil {
		t.Fatal("expected zero ttl to fail")
	}
}
