package authn

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"time"
)

// TokenAuth issues and verifies signed, opaque bearer tokens. The wire
// format follows tinode/chat's server/auth/token package: a fixed binary
// header followed by an HMAC-SHA256 signature, base64url-encoded for
// transport.
//
// Layout: [2:usernameLen][usernameLen:username][4:expires][32:signature]
type TokenAuth struct {
	hmacSalt []byte
	timeout  time.Duration
}

const tokenMinSaltLength = 32

// NewTokenAuth builds a TokenAuth. salt must be at least 32 bytes;
// defaultTimeout is used whenever GenToken is called with lifetime 0.
func NewTokenAuth(salt []byte, defaultTimeout time.Duration) (*TokenAuth, error) {
	if len(salt) < tokenMinSaltLength {
		return nil, errors.New("authn: signing key is missing or too short")
	}
	if defaultTimeout <= 0 {
		return nil, errors.New("authn: invalid default token lifetime")
	}
	return &TokenAuth{hmacSalt: salt, timeout: defaultTimeout}, nil
}

// GenToken issues a new token for username, valid for lifetime (or the
// configured default timeout when lifetime is 0).
func (ta *TokenAuth) GenToken(username string, lifetime time.Duration) ([]byte, time.Time, error) {
	if lifetime == 0 {
		lifetime = ta.timeout
	} else if lifetime < 0 {
		return nil, time.Time{}, errors.New("authn: negative lifetime")
	}
	if len(username) > 0xFFFF {
		return nil, time.Time{}, errors.New("authn: username too long")
	}

	expires := time.Now().Add(lifetime).UTC().Round(time.Second)

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint16(len(username)))
	buf.WriteString(username)
	binary.Write(buf, binary.LittleEndian, uint32(expires.Unix()))

	hasher := hmac.New(sha256.New, ta.hmacSalt)
	hasher.Write(buf.Bytes())
	sig := hasher.Sum(nil)
	buf.Write(sig)

	return []byte(base64.URLEncoding.EncodeToString(buf.Bytes())), expires, nil
}

// Authenticate verifies a token produced by GenToken and returns the
// principal's username, per spec.md's authenticate(token) -> principal |
// AuthError contract.
func (ta *TokenAuth) Authenticate(token string) (username string, err *Err) {
	raw, decErr := base64.URLEncoding.DecodeString(token)
	if decErr != nil {
		return "", NewErr(ErrMalformed, decErr)
	}
	if len(raw) < 2 {
		return "", NewErr(ErrMalformed, errors.New("authn: token too short"))
	}

	ulen := int(binary.LittleEndian.Uint16(raw[0:2]))
	need := 2 + ulen + 4 + sha256.Size
	if len(raw) != need {
		return "", NewErr(ErrMalformed, errors.New("authn: invalid token length"))
	}

	uname := string(raw[2 : 2+ulen])
	expiresRaw := raw[2+ulen : 2+ulen+4]
	sig := raw[2+ulen+4:]

	hasher := hmac.New(sha256.New, ta.hmacSalt)
	hasher.Write(raw[:2+ulen+4])
	want := hasher.Sum(nil)
	if !hmac.Equal(sig, want) {
		return "", NewErr(ErrFailed, errors.New("authn: invalid signature"))
	}

	expires := time.Unix(int64(binary.LittleEndian.Uint32(expiresRaw)), 0).UTC()
	if expires.Before(time.Now()) {
		return "", NewErr(ErrExpired, errors.New("authn: expired token"))
	}

	return uname, nil
}
