package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"chat-sync/internal/apperr"
	"chat-sync/internal/changefeed"
	"chat-sync/internal/database"
	"chat-sync/internal/models"
	"chat-sync/internal/relation"
	"chat-sync/internal/repository"
	"chat-sync/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type recorder struct {
	mu     sync.Mutex
	tables []changefeed.Table
}

func (r *recorder) Publish(_ context.Context, t changefeed.Table) error {
	r.mu.Lock()
	r.tables = append(r.tables, t)
	r.mu.Unlock()
	return nil
}

func (r *recorder) count(t changefeed.Table) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.tables {
		if x == t {
			n++
		}
	}
	return n
}

type fixture struct {
	db            *gorm.DB
	pub           *recorder
	users         *UserService
	relationships *RelationshipService
	messages      *MessageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenDialector(sqlite.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	pub := &recorder{}
	log := logger.Nop()
	userRepo := repository.NewUserRepository(db)
	relRepo := repository.NewRelationshipRepository(db)
	msgRepo := repository.NewMessageRepository(db)

	return &fixture{
		db:            db,
		pub:           pub,
		users:         NewUserService(userRepo, pub, log),
		relationships: NewRelationshipService(relRepo, userRepo, pub, log),
		messages:      NewMessageService(msgRepo, relRepo, userRepo, pub, log),
	}
}

func (f *fixture) user(t *testing.T, name string) *models.User {
	t.Helper()
	u, created, err := f.users.EnsureProfile(context.Background(), "ext_"+name, &models.EnsureProfileRequest{Username: name})
	require.NoError(t, err)
	require.True(t, created)
	return u
}

func (f *fixture) snapshot(t *testing.T) []models.Relationship {
	t.Helper()
	var rels []models.Relationship
	require.NoError(t, f.db.Order("id").Find(&rels).Error)
	return rels
}

func TestEnsureProfileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := f.user(t, "alice")
	again, created, err := f.users.EnsureProfile(ctx, "ext_alice", &models.EnsureProfileRequest{Username: "ignored"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, "alice", again.Username)
	assert.Equal(t, 1, f.pub.count(changefeed.TableUsers))

	_, _, err = f.users.EnsureProfile(ctx, "ext_new", &models.EnsureProfileRequest{Username: "  "})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	name := "alicia"
	updated, err := f.users.UpdateProfile(ctx, again, &models.UpdateProfileRequest{Username: &name})
	require.NoError(t, err)
	assert.Equal(t, "alicia", updated.Username)
	assert.Equal(t, 2, f.pub.count(changefeed.TableUsers))
}

func TestSendRequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "a")

	_, err := f.relationships.SendRequest(ctx, a.ID, "not-a-uuid")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.relationships.SendRequest(ctx, a.ID, a.ID)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.relationships.SendRequest(ctx, a.ID, uuid.NewString())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	assert.Zero(t, f.pub.count(changefeed.TableRelationships))
}

func TestAtMostOneEdgePerPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "a"), f.user(t, "b")

	rel, err := f.relationships.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, relation.StatusPending, rel.Status)
	assert.Equal(t, a.ID, rel.SenderID)

	_, err = f.relationships.SendRequest(ctx, a.ID, b.ID)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Equal(t, "pending", apperr.CurrentStatus(err))

	_, err = f.relationships.SendRequest(ctx, b.ID, a.ID)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	assert.Len(t, f.snapshot(t), 1)
}

func TestConcurrentRequestsCreateOneEdge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "a"), f.user(t, "b")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := a.ID, b.ID
			if i%2 == 1 {
				from, to = to, from
			}
			_, errs[i] = f.relationships.SendRequest(ctx, from, to)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, f.snapshot(t), 1)
}

func TestNonParticipantCannotMutate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user(t, "a"), f.user(t, "b"), f.user(t, "c")

	rel, err := f.relationships.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)
	before := f.snapshot(t)

	for _, status := range []string{"accepted", "blocked", "pending", "bogus"} {
		_, err = f.relationships.Transition(ctx, c.ID, rel.ID, status)
		assert.True(t, errors.Is(err, apperr.ErrAuthorization), "status %s: %v", status, err)
	}
	err = f.relationships.Remove(ctx, c.ID, rel.ID)
	assert.True(t, errors.Is(err, apperr.ErrAuthorization))

	assert.Equal(t, before, f.snapshot(t))
}

func TestAcceptRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, u := f.user(t, "v"), f.user(t, "u")

	rel, err := f.relationships.SendRequest(ctx, v.ID, u.ID)
	require.NoError(t, err)

	_, err = f.relationships.Transition(ctx, v.ID, rel.ID, "accepted")
	assert.True(t, errors.Is(err, apperr.ErrAuthorization))

	_, err = f.relationships.Transition(ctx, u.ID, rel.ID, "blocked")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.relationships.Transition(ctx, u.ID, rel.ID, "friends")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	got, err := f.relationships.Transition(ctx, u.ID, rel.ID, "accepted")
	require.NoError(t, err)
	assert.Equal(t, relation.StatusAccepted, got.Status)
	assert.Equal(t, u.ID, got.SenderID)
	require.NotNil(t, got.Sender)
	assert.Equal(t, "u", got.Sender.Username)

	got, err = f.relationships.Transition(ctx, v.ID, rel.ID, "blocked")
	require.NoError(t, err)
	assert.Equal(t, relation.StatusBlocked, got.Status)
	assert.Equal(t, v.ID, got.SenderID)

	_, err = f.relationships.Transition(ctx, u.ID, rel.ID, "accepted")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	list, err := f.relationships.List(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, relation.StatusBlocked, list[0].Status)

	require.NoError(t, f.relationships.Remove(ctx, u.ID, rel.ID))
	_, err = f.relationships.Transition(ctx, u.ID, rel.ID, "accepted")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.relationships.SendRequest(ctx, u.ID, v.ID)
	assert.NoError(t, err)
}

func connect(t *testing.T, f *fixture, a, b *models.User) {
	t.Helper()
	ctx := context.Background()
	rel, err := f.relationships.SendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = f.relationships.Transition(ctx, b.ID, rel.ID, "accepted")
	require.NoError(t, err)
}

func TestSendMessageRequiresAcceptedRelationship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "a"), f.user(t, "b")

	_, err := f.messages.Send(ctx, a.ID, &models.SendMessageRequest{ReceiverID: b.ID, Content: "hi"})
	assert.True(t, errors.Is(err, apperr.ErrAuthorization))

	connect(t, f, a, b)

	_, err = f.messages.Send(ctx, a.ID, &models.SendMessageRequest{ReceiverID: b.ID, Content: "   "})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	msg, err := f.messages.Send(ctx, a.ID, &models.SendMessageRequest{ReceiverID: b.ID, Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Content)
	assert.False(t, msg.Seen)
	assert.Equal(t, "b", msg.Receiver.Username)
	assert.Equal(t, 1, f.pub.count(changefeed.TableMessages))
}

func TestMarkSeenIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "a"), f.user(t, "b")
	connect(t, f, a, b)

	for _, text := range []string{"one", "two"} {
		_, err := f.messages.Send(ctx, a.ID, &models.SendMessageRequest{ReceiverID: b.ID, Content: text})
		require.NoError(t, err)
	}
	published := f.pub.count(changefeed.TableMessages)

	n, err := f.messages.MarkSeen(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	first, err := f.messages.List(ctx, b.ID)
	require.NoError(t, err)

	n, err = f.messages.MarkSeen(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	second, err := f.messages.List(ctx, b.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, published+1, f.pub.count(changefeed.TableMessages))

	// The sender marking their own outgoing messages changes nothing.
	n, err = f.messages.MarkSeen(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func raw(t *testing.T, v map[string]interface{}) map[string]json.RawMessage {
	t.Helper()
	out := make(map[string]json.RawMessage, len(v))
	for k, x := range v {
		b, err := json.Marshal(x)
		require.NoError(t, err)
		out[k] = b
	}
	return out
}

func TestUpdateMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user(t, "a"), f.user(t, "b"), f.user(t, "c")
	connect(t, f, a, b)

	msg, err := f.messages.Send(ctx, a.ID, &models.SendMessageRequest{ReceiverID: b.ID, Content: "hi"})
	require.NoError(t, err)

	_, err = f.messages.Update(ctx, a.ID, msg.ID, raw(t, map[string]interface{}{"sender_id": c.ID}))
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.messages.Update(ctx, a.ID, msg.ID, raw(t, map[string]interface{}{"seen": false}))
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.messages.Update(ctx, a.ID, msg.ID, nil)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.messages.Update(ctx, c.ID, msg.ID, raw(t, map[string]interface{}{"content": "hacked"}))
	assert.True(t, errors.Is(err, apperr.ErrAuthorization))

	_, err = f.messages.Update(ctx, a.ID, uuid.NewString(), raw(t, map[string]interface{}{"content": "x"}))
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	got, err := f.messages.Update(ctx, a.ID, msg.ID, raw(t, map[string]interface{}{"content": "edited", "media_url": "http://m/x.png"}))
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Content)
	require.NotNil(t, got.MediaURL)
	assert.Equal(t, "http://m/x.png", *got.MediaURL)

	got, err = f.messages.Update(ctx, b.ID, msg.ID, raw(t, map[string]interface{}{"seen": true}))
	require.NoError(t, err)
	assert.True(t, got.Seen)
}
