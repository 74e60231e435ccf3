package authn

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSalt() []byte {
	return []byte(strings.Repeat("k", 32))
}

func TestGenAndAuthenticateRoundTrip(t *testing.T) {
	ta, err := NewTokenAuth(testSalt(), time.Hour)
	require.NoError(t, err)

	tok, _, err := ta.GenToken("alice", 0)
	require.NoError(t, err)

	name, authErr := ta.Authenticate(string(tok))
	require.Nil(t, authErr)
	assert.Equal(t, "alice", name)
}

func TestAuthenticateExpired(t *testing.T) {
	ta, err := NewTokenAuth(testSalt(), time.Hour)
	require.NoError(t, err)

	tok, _, err := ta.GenToken("alice", -time.Second)
	require.Error(t, err) // negative lifetime is rejected outright

	tok, _, err = ta.GenToken("alice", time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(2 * time.Second) // expiry rounds to whole seconds

	_, authErr := ta.Authenticate(string(tok))
	require.NotNil(t, authErr)
	assert.Equal(t, ErrExpired, authErr.Kind)
}

func TestAuthenticateTamperedSignature(t *testing.T) {
	ta, err := NewTokenAuth(testSalt(), time.Hour)
	require.NoError(t, err)

	tok, _, err := ta.GenToken("alice", 0)
	require.NoError(t, err)

	tampered := string(tok[:len(tok)-2]) + "zz"
	_, authErr := ta.Authenticate(tampered)
	require.NotNil(t, authErr)
}

func TestAuthenticateMalformed(t *testing.T) {
	ta, err := NewTokenAuth(testSalt(), time.Hour)
	require.NoError(t, err)

	_, authErr := ta.Authenticate("not-a-real-token")
	require.NotNil(t, authErr)
	assert.Equal(t, ErrMalformed, authErr.Kind)
}

func TestNewTokenAuthRejectsShortSalt(t *testing.T) {
	_, err := NewTokenAuth([]byte("short"), time.Hour)
	assert.Error(t, err)
}

func TestCheckRegisterableRejectsSystem(t *testing.T) {
	assert.Error(t, CheckRegisterable(System))
	assert.NoError(t, CheckRegisterable("alice"))
}
