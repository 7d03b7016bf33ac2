package relation

import (
	"errors"
	"testing"

	"chat-sync/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses() {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseStatus("deleted")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = ParseStatus("ACCEPTED")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		name     string
		from, to Status
		isSender bool
		want     error
	}{
		{"receiver accepts", StatusPending, StatusAccepted, false, nil},
		{"sender cannot accept own request", StatusPending, StatusAccepted, true, apperr.ErrAuthorization},
		{"pending cannot be blocked", StatusPending, StatusBlocked, false, apperr.ErrValidation},
		{"pending cannot be blocked by sender", StatusPending, StatusBlocked, true, apperr.ErrValidation},
		{"pending to pending", StatusPending, StatusPending, false, apperr.ErrValidation},
		{"block by last actor", StatusAccepted, StatusBlocked, true, nil},
		{"block by other side", StatusAccepted, StatusBlocked, false, nil},
		{"accepted back to pending", StatusAccepted, StatusPending, false, apperr.ErrValidation},
		{"accepted to accepted", StatusAccepted, StatusAccepted, false, apperr.ErrValidation},
		{"blocked is terminal", StatusBlocked, StatusAccepted, false, apperr.ErrValidation},
		{"blocked to pending", StatusBlocked, StatusPending, true, apperr.ErrValidation},
		{"unknown target", StatusAccepted, Status("friends"), false, apperr.ErrValidation},
		{"unknown source", Status("gone"), StatusAccepted, false, apperr.ErrValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Check(tc.from, tc.to, tc.isSender)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestAllowed(t *testing.T) {
	assert.Equal(t, []Status{StatusAccepted}, Allowed(StatusPending, false))
	assert.Empty(t, Allowed(StatusPending, true))
	assert.Equal(t, []Status{StatusBlocked}, Allowed(StatusAccepted, true))
	assert.Empty(t, Allowed(StatusBlocked, false))
}

func TestPairKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, PairKey("a", "b"), PairKey("b", "a"))
	assert.NotEqual(t, PairKey("a", "b"), PairKey("a", "c"))
}

func TestIsParticipant(t *testing.T) {
	assert.True(t, IsParticipant("a", "a", "b"))
	assert.True(t, IsParticipant("b", "a", "b"))
	assert.False(t, IsParticipant("c", "a", "b"))
	assert.False(t, IsParticipant("", "", "b"))
}
