package core

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	tsEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// TokenGenerator signs day-granular expiring tokens over a caller-provided value.
// The value should change whenever previously issued tokens must stop working
// (e.g. it includes the password hash for password resets).
type TokenGenerator struct {
	Salt    []byte
	Secret  string
	Timeout time.Duration
	NowFunc func() time.Time // mockable
}

func (g TokenGenerator) now() time.Time {
	if g.NowFunc != nil {
		return g.NowFunc()
	}
	return time.Now()
}

// Make generates a token for value.
func (g TokenGenerator) Make(value []byte) (string, error) {
	return g.makeWithTimestamp(value, numDaysSince2001(g.now()))
}

// Verify checks that token was generated for value and has not expired.
func (g TokenGenerator) Verify(value []byte, token string) error {
	if token == "" {
		return ErrInvalidToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return ErrInvalidToken
	}

	data, err := tsEncoding.DecodeString(parts[0])
	if err != nil {
		return ErrInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return ErrInvalidToken
	}

	// check that token has not been tampered with
	newToken, err := g.makeWithTimestamp(value, ts)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(newToken), []byte(token)) == 0 {
		return ErrInvalidToken
	}

	// check that the timestamp is within limit
	if (numDaysSince2001(g.now()) - ts) > int(g.Timeout/(24*time.Hour)) {
		return ErrTokenExpired
	}
	return nil
}

func (g TokenGenerator) makeWithTimestamp(value []byte, ts int) (string, error) {
	tsB32 := tsEncoding.EncodeToString([]byte(strconv.Itoa(ts)))
	sig, err := g.sign(append(append([]byte{}, value...), strconv.Itoa(ts)...))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", tsB32, sig), nil
}

func (g TokenGenerator) sign(val []byte) (string, error) {
	key := sha256.Sum256(append(append([]byte{}, g.Salt...), g.Secret...))
	h := hmac.New(sha256.New, key[:])
	if _, err := h.Write(val); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}
