package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"chat-sync/internal/apitest"
	"chat-sync/internal/apperr"
	"chat-sync/internal/identity"
	"chat-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clientFor(t *testing.T, srv *apitest.Server, ext, name string) *Client {
	t.Helper()
	p := identity.Static{P: identity.Principal{ExternalID: ext, Token: srv.Token(ext, name), Username: name}}
	c, err := New(Options{BaseURL: srv.APIURL()}, p)
	require.NoError(t, err)
	return c
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New(Options{BaseURL: "/api/v1"}, identity.Static{})
	assert.Error(t, err)
}

func TestInactiveIdentityMakesNoRequest(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL}, identity.Static{})
	require.NoError(t, err)

	_, err = c.ListUsers(context.Background())
	assert.ErrorIs(t, err, ErrNoPrincipal)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestErrorBodiesMapToKinds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/relationships":
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"code":409,"message":"relationship already exists","status":"accepted"}`))
		case "/users":
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream down"))
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL}, identity.Static{P: identity.Principal{ExternalID: "x", Token: "t"}})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.SendRequest(ctx, "b5c3a0c4-8d8e-4b5e-9f6e-0e7b1c2d3e4f")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "accepted", apperr.CurrentStatus(err))

	_, err = c.ListUsers(ctx)
	assert.ErrorIs(t, err, apperr.ErrSync)
	assert.Contains(t, err.Error(), "upstream down")

	err = c.DeleteRelationship(ctx, "x")
	assert.ErrorIs(t, err, apperr.ErrAuthorization)
}

func TestTransportFailureIsSyncError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: url, Timeout: time.Second}, identity.Static{P: identity.Principal{ExternalID: "x"}})
	require.NoError(t, err)

	_, err = c.ListMessages(context.Background())
	assert.ErrorIs(t, err, apperr.ErrSync)
}

func TestRateLimiterHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL, Rate: 0.001, Burst: 1}, identity.Static{P: identity.Principal{ExternalID: "x"}})
	require.NoError(t, err)

	_, err = c.ListUsers(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.ListUsers(ctx)
	assert.ErrorIs(t, err, apperr.ErrSync)
}

func TestClientAgainstAPI(t *testing.T) {
	srv := apitest.New(t)
	ctx := context.Background()
	v := clientFor(t, srv, "ext_v", "vera")
	u := clientFor(t, srv, "ext_u", "umar")

	_, err := v.Me(ctx)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	vUser, err := v.EnsureProfile(ctx, models.EnsureProfileRequest{Username: "vera"})
	require.NoError(t, err)
	uUser, err := u.EnsureProfile(ctx, models.EnsureProfileRequest{Username: "umar"})
	require.NoError(t, err)

	me, err := v.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, vUser.ID, me.ID)

	users, err := v.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	_, err = v.SendRequest(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	rel, err := v.SendRequest(ctx, uUser.ID)
	require.NoError(t, err)

	_, err = u.SendRequest(ctx, vUser.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "pending", apperr.CurrentStatus(err))

	_, err = v.UpdateRelationship(ctx, rel.ID, "accepted")
	assert.ErrorIs(t, err, apperr.ErrAuthorization)

	accepted, err := u.UpdateRelationship(ctx, rel.ID, "accepted")
	require.NoError(t, err)
	assert.Equal(t, uUser.ID, accepted.SenderID)

	_, err = v.SendMessage(ctx, models.SendMessageRequest{ReceiverID: uUser.ID, Content: "hi"})
	require.NoError(t, err)

	msgs, err := u.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	n, err := u.MarkSeen(ctx, vUser.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = u.MarkSeen(ctx, vUser.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = u.UpdateMessage(ctx, msgs[0].ID, map[string]interface{}{"seen": false})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	edited, err := v.UpdateMessage(ctx, msgs[0].ID, map[string]interface{}{"content": "hi!"})
	require.NoError(t, err)
	assert.Equal(t, "hi!", edited.Content)

	require.NoError(t, v.DeleteRelationship(ctx, rel.ID))
	err = v.DeleteRelationship(ctx, rel.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
