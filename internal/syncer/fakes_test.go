package syncer

import (
	"context"
	"sync"
	"time"

	"chat-sync/internal/changefeed"
	"chat-sync/internal/models"
	"chat-sync/internal/relation"

	"github.com/google/uuid"
)

type fakeBackend struct {
	mu    sync.Mutex
	self  models.User
	users []models.User
	rels  []models.Relationship
	msgs  []models.Message

	listErr     error
	seenResult  int64
	seenCalls   []string
	listCalls   int
	sendCalls   int
	deleteCalls int

	// holdMessages, when set, blocks the next ListMessages after it has
	// snapshotted the current messages.
	holdMessages chan struct{}
	heldMessages chan struct{}

	// holdRequest blocks SendRequest for the given target.
	holdRequestFor string
	holdRequest    chan struct{}
	heldRequest    chan struct{}
	requestErr     error
}

func newFakeBackend(username string) *fakeBackend {
	self := models.User{ID: uuid.NewString(), ExternalID: "ext_" + username, Username: username}
	return &fakeBackend{self: self, users: []models.User{self}}
}

func (f *fakeBackend) addUser(name string) models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := models.User{ID: uuid.NewString(), ExternalID: "ext_" + name, Username: name}
	f.users = append(f.users, u)
	return u
}

func (f *fakeBackend) addEdge(user, friend models.User, sender string, status relation.Status) models.Relationship {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, fr := user, friend
	rel := models.Relationship{
		ID:       uuid.NewString(),
		UserID:   user.ID,
		FriendID: friend.ID,
		SenderID: sender,
		Status:   status,
		User:     &u,
		Friend:   &fr,
	}
	f.rels = append(f.rels, rel)
	return rel
}

func (f *fakeBackend) addMessage(from, to models.User, content string, seen bool) models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, r := from, to
	msg := models.Message{
		ID:         uuid.NewString(),
		SenderID:   from.ID,
		ReceiverID: to.ID,
		Content:    content,
		Seen:       seen,
		CreatedAt:  time.Now(),
		Sender:     &s,
		Receiver:   &r,
	}
	f.msgs = append(f.msgs, msg)
	return msg
}

func (f *fakeBackend) setListErr(err error) {
	f.mu.Lock()
	f.listErr = err
	f.mu.Unlock()
}

func (f *fakeBackend) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeBackend) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seenCalls...)
}

func (f *fakeBackend) EnsureProfile(context.Context, models.EnsureProfileRequest) (*models.User, error) {
	u := f.self
	return &u, nil
}

func (f *fakeBackend) ListUsers(context.Context) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.User(nil), f.users...), nil
}

func (f *fakeBackend) ListRelationships(context.Context) ([]models.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.Relationship(nil), f.rels...), nil
}

func (f *fakeBackend) ListMessages(ctx context.Context) ([]models.Message, error) {
	f.mu.Lock()
	f.listCalls++
	if f.listErr != nil {
		err := f.listErr
		f.mu.Unlock()
		return nil, err
	}
	out := append([]models.Message(nil), f.msgs...)
	hold, held := f.holdMessages, f.heldMessages
	f.holdMessages = nil
	f.mu.Unlock()

	if hold != nil {
		close(held)
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

func (f *fakeBackend) SendRequest(ctx context.Context, friendID string) (*models.Relationship, error) {
	f.mu.Lock()
	f.sendCalls++
	hold, held := f.holdRequest, f.heldRequest
	if friendID != f.holdRequestFor {
		hold = nil
	}
	err := f.requestErr
	f.mu.Unlock()

	if hold != nil {
		close(held)
		<-hold
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	rel := models.Relationship{ID: uuid.NewString(), UserID: f.self.ID, FriendID: friendID, SenderID: f.self.ID, Status: relation.StatusPending}
	f.rels = append(f.rels, rel)
	return &rel, nil
}

func (f *fakeBackend) UpdateRelationship(_ context.Context, id, status string) (*models.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rels {
		if f.rels[i].ID == id {
			f.rels[i].Status = relation.Status(status)
			f.rels[i].SenderID = f.self.ID
			rel := f.rels[i]
			return &rel, nil
		}
	}
	return nil, nil
}

func (f *fakeBackend) DeleteRelationship(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	for i := range f.rels {
		if f.rels[i].ID == id {
			f.rels = append(f.rels[:i], f.rels[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeBackend) SendMessage(_ context.Context, req models.SendMessageRequest) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := models.Message{ID: uuid.NewString(), SenderID: f.self.ID, ReceiverID: req.ReceiverID, Content: req.Content, CreatedAt: time.Now()}
	f.msgs = append(f.msgs, msg)
	return &msg, nil
}

func (f *fakeBackend) MarkSeen(_ context.Context, senderID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seenCalls = append(f.seenCalls, senderID)
	var n int64
	for i := range f.msgs {
		if f.msgs[i].SenderID == senderID && f.msgs[i].ReceiverID == f.self.ID && !f.msgs[i].Seen {
			f.msgs[i].Seen = true
			n++
		}
	}
	if f.seenResult != 0 {
		return f.seenResult, nil
	}
	return n, nil
}

func (f *fakeBackend) UpdateMessage(_ context.Context, id string, patch map[string]interface{}) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.msgs {
		if f.msgs[i].ID == id {
			if c, ok := patch["content"].(string); ok {
				f.msgs[i].Content = c
			}
			msg := f.msgs[i]
			return &msg, nil
		}
	}
	return nil, nil
}

type fakeSource struct {
	mu         sync.Mutex
	handler    changefeed.Handler
	subscribed int
	closed     bool
}

func (s *fakeSource) Subscribe(_ context.Context, h changefeed.Handler) (changefeed.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
	s.subscribed++
	return s, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) emit(table changefeed.Table) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(changefeed.NewEvent(table))
	}
}

// gatedSource blocks Subscribe until release is closed and counts the
// subscriptions it opened and closed.
type gatedSource struct {
	entered chan struct{}
	release chan struct{}

	mu     sync.Mutex
	opened int
	closed int
}

func newGatedSource() *gatedSource {
	return &gatedSource{entered: make(chan struct{}, 4), release: make(chan struct{})}
}

func (s *gatedSource) Subscribe(context.Context, changefeed.Handler) (changefeed.Subscription, error) {
	s.entered <- struct{}{}
	<-s.release
	s.mu.Lock()
	s.opened++
	s.mu.Unlock()
	return &gatedSubscription{src: s}, nil
}

func (s *gatedSource) counts() (opened, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened, s.closed
}

type gatedSubscription struct {
	src  *gatedSource
	once sync.Once
}

func (g *gatedSubscription) Close() error {
	g.once.Do(func() {
		g.src.mu.Lock()
		g.src.closed++
		g.src.mu.Unlock()
	})
	return nil
}

type failingSource struct {
	err error
}

func (s *failingSource) Subscribe(ctx context.Context, h changefeed.Handler) (changefeed.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	return (&fakeSource{}).Subscribe(ctx, h)
}
