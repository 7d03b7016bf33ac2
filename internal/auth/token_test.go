package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	tok, err := IssueToken("s3cret", "dev", "user_abc", time.Hour, Claims{Username: "alice"})
	require.NoError(t, err)

	claims, err := ParseToken("s3cret", tok)
	require.NoError(t, err)
	assert.Equal(t, "user_abc", claims.ExternalID())
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "dev", claims.Issuer)
}

func TestParseRejectsWrongSecretAndExpiry(t *testing.T) {
	tok, err := IssueToken("s3cret", "dev", "user_abc", time.Hour, Claims{})
	require.NoError(t, err)

	_, err = ParseToken("other", tok)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	expired, err := IssueToken("s3cret", "dev", "user_abc", -time.Minute, Claims{})
	require.NoError(t, err)
	_, err = ParseToken("s3cret", expired)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	_, err = ParseToken("s3cret", "")
	assert.True(t, errors.Is(err, ErrMissingToken))
}

func TestPeekClaimsSkipsVerification(t *testing.T) {
	tok, err := IssueToken("whatever", "dev", "user_xyz", time.Hour, Claims{})
	require.NoError(t, err)

	claims, err := PeekClaims(tok)
	require.NoError(t, err)
	assert.Equal(t, "user_xyz", claims.ExternalID())

	_, err = PeekClaims("not-a-jwt")
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestIssueRequiresSubject(t *testing.T) {
	_, err := IssueToken("s", "dev", "", time.Hour, Claims{})
	assert.ErrorIs(t, err, ErrMissingSubject)
}
