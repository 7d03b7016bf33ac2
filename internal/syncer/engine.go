// Package syncer keeps a client's view of users, relationships and messages
// consistent with the backend. Every trigger (start, change event, conversation
// poll, successful mutation) runs a full resync that replaces the local stores.
package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"chat-sync/internal/apperr"
	"chat-sync/internal/changefeed"
	"chat-sync/internal/identity"
	"chat-sync/internal/models"
	"chat-sync/internal/relation"
	"chat-sync/pkg/logger"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrInactive is returned by operations that need a signed-in viewer.
	ErrInactive       = errors.New("syncer: no active principal")
	ErrClosed         = errors.New("syncer: engine closed")
	ErrAlreadyStarted = errors.New("syncer: engine already started")
)

// DefaultPollInterval re-marks the selected conversation as seen.
const DefaultPollInterval = 100 * time.Second

// Fetcher reads the three snapshots a resync is built from.
type Fetcher interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	ListRelationships(ctx context.Context) ([]models.Relationship, error)
	ListMessages(ctx context.Context) ([]models.Message, error)
}

// Backend is everything the engine needs from the API.
type Backend interface {
	Fetcher
	EnsureProfile(ctx context.Context, req models.EnsureProfileRequest) (*models.User, error)
	SendRequest(ctx context.Context, friendID string) (*models.Relationship, error)
	UpdateRelationship(ctx context.Context, id, status string) (*models.Relationship, error)
	DeleteRelationship(ctx context.Context, id string) error
	SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.Message, error)
	MarkSeen(ctx context.Context, senderID string) (int64, error)
	UpdateMessage(ctx context.Context, id string, patch map[string]interface{}) (*models.Message, error)
}

type Config struct {
	PollInterval time.Duration
	Logger       *logger.Logger
}

// Snapshot is the state handed to OnUpdate listeners after each applied resync.
type Snapshot struct {
	Seq      uint64
	Viewer   models.User
	Users    []models.User
	Friends  []FriendView
	Messages []MessageView
}

type Engine struct {
	backend  Backend
	identity identity.Provider
	source   changefeed.Source
	cfg      Config
	log      *logger.Logger

	relationships RelationshipStore
	conversations ConversationStore
	users         UserDirectory

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	sub       changefeed.Subscription
	viewer    *models.User
	principal identity.Principal
	starting  bool
	closed    bool
	wg        sync.WaitGroup

	initiated atomic.Uint64
	applyMu   sync.Mutex
	applied   uint64

	listenersMu sync.RWMutex
	listeners   []func(Snapshot)

	poller *poller
	guard  *Guard
}

// New builds an engine. source may be nil, in which case only explicit
// triggers and the conversation poll cause resyncs.
func New(backend Backend, id identity.Provider, source changefeed.Source, cfg Config) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	e := &Engine{
		backend:  backend,
		identity: id,
		source:   source,
		cfg:      cfg,
		log:      log.With("component", "syncer"),
	}
	e.poller = newPoller(cfg.PollInterval)
	e.guard = &Guard{engine: e}
	return e
}

// Start activates the engine for the current principal: it ensures the
// viewer's profile, subscribes to change events and runs the initial load.
// With no principal it does nothing and the engine stays inactive.
func (e *Engine) Start(ctx context.Context) error {
	principal, ok := e.identity.Current(ctx)
	if !ok {
		e.log.Info("No principal, sync engine inactive")
		return nil
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.starting || e.viewer != nil {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.starting = true
	e.mu.Unlock()

	activated := false
	defer func() {
		if !activated {
			e.mu.Lock()
			e.starting = false
			e.mu.Unlock()
		}
	}()

	username := principal.Username
	if username == "" {
		username = principal.ExternalID
	}
	viewer, err := e.backend.EnsureProfile(ctx, models.EnsureProfileRequest{Username: username})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	var sub changefeed.Subscription
	if e.source != nil {
		sub, err = e.source.Subscribe(runCtx, e.onChange)
		if err != nil {
			cancel()
			return apperr.Sync(err, "subscribe to change feed")
		}
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		if sub != nil {
			if err := sub.Close(); err != nil {
				e.log.Warn("Failed to release change feed", "error", err)
			}
		}
		return ErrClosed
	}
	e.ctx, e.cancel, e.sub = runCtx, cancel, sub
	e.viewer = viewer
	e.principal = principal
	e.starting = false
	activated = true
	e.mu.Unlock()

	e.log.Info("Sync engine started", "userID", viewer.ID, "externalID", principal.ExternalID)

	if err := e.Resync(ctx); err != nil {
		e.log.Warn("Initial load failed", "error", err)
	}
	return nil
}

// Close stops the poller, releases the subscription and waits for in-flight resyncs.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	cancel, sub := e.cancel, e.sub
	e.mu.Unlock()

	e.poller.stop()
	if cancel != nil {
		cancel()
	}
	var err error
	if sub != nil {
		err = sub.Close()
	}
	e.wg.Wait()
	return err
}

// OnUpdate registers fn to run after every applied resync.
func (e *Engine) OnUpdate(fn func(Snapshot)) {
	e.listenersMu.Lock()
	e.listeners = append(e.listeners, fn)
	e.listenersMu.Unlock()
}

// Active reports whether the engine is running for a principal.
func (e *Engine) Active() bool {
	_, ok := e.current()
	return ok
}

// Viewer returns the signed-in user's profile.
func (e *Engine) Viewer() (models.User, bool) {
	v, ok := e.current()
	if !ok {
		return models.User{}, false
	}
	return *v, true
}

// Guard returns the relationship action guard bound to this engine.
func (e *Engine) Guard() *Guard {
	return e.guard
}

func (e *Engine) current() (*models.User, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.viewer == nil {
		return nil, false
	}
	return e.viewer, true
}

func (e *Engine) runContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// spawn runs fn in a tracked goroutine unless the engine is closing.
func (e *Engine) spawn(fn func(ctx context.Context)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.ctx == nil {
		return false
	}
	ctx := e.ctx
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(ctx)
	}()
	return true
}

func (e *Engine) onChange(ev changefeed.Event) {
	e.spawn(func(ctx context.Context) {
		if err := e.Resync(ctx); err != nil && ctx.Err() == nil {
			e.log.Warn("Resync after change failed", "table", ev.Table, "error", err)
		}
	})
}

// Resync reads users, relationships and messages concurrently and replaces the
// stores. A result is discarded when a later-initiated resync has already been
// applied. Read failures leave the stores untouched.
func (e *Engine) Resync(ctx context.Context) error {
	viewer, ok := e.current()
	if !ok {
		return ErrInactive
	}
	seq := e.initiated.Add(1)

	var (
		users []models.User
		rels  []models.Relationship
		msgs  []models.Message
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = e.backend.ListUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		rels, err = e.backend.ListRelationships(gctx)
		return err
	})
	g.Go(func() (err error) {
		msgs, err = e.backend.ListMessages(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		e.log.Warn("Resync failed, keeping previous state", "seq", seq, "error", err)
		if errors.Is(err, apperr.ErrSync) {
			return err
		}
		return apperr.Sync(err, "resync")
	}

	friends := deriveFriends(viewer.ID, rels, e.log)
	views := deriveMessages(viewer.ID, msgs, e.log)

	e.applyMu.Lock()
	if seq < e.applied {
		e.applyMu.Unlock()
		e.log.Debug("Discarding superseded resync", "seq", seq, "applied", e.applied)
		return nil
	}
	e.applied = seq
	e.users.replace(users)
	e.relationships.replace(friends)
	e.conversations.replace(views)
	snap := Snapshot{
		Seq:      seq,
		Viewer:   *viewer,
		Users:    append([]models.User(nil), users...),
		Friends:  append([]FriendView(nil), friends...),
		Messages: append([]MessageView(nil), views...),
	}
	e.applyMu.Unlock()

	e.log.Debug("Resync applied", "seq", seq, "users", len(users), "friends", len(friends), "messages", len(views))

	e.listenersMu.RLock()
	listeners := make([]func(Snapshot), len(e.listeners))
	copy(listeners, e.listeners)
	e.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(snap)
	}
	return nil
}

// Friends returns every edge touching the viewer, blocked ones included.
func (e *Engine) Friends() []FriendView {
	return e.relationships.All()
}

// Conversations returns accepted friends, the people the viewer can message.
func (e *Engine) Conversations() []FriendView {
	return e.relationships.Filter(func(f FriendView) bool { return f.Status == relation.StatusAccepted })
}

// PendingIncoming returns requests waiting for the viewer to accept.
func (e *Engine) PendingIncoming() []FriendView {
	return e.relationships.Filter(isPendingFor(true))
}

// PendingOutgoing returns requests the viewer sent that are not yet accepted.
func (e *Engine) PendingOutgoing() []FriendView {
	return e.relationships.Filter(isPendingFor(false))
}

func (e *Engine) Messages() []MessageView {
	return e.conversations.All()
}

func (e *Engine) MessagesWith(interlocutorID string) []MessageView {
	return e.conversations.With(interlocutorID)
}

func (e *Engine) Unseen(interlocutorID string) int {
	return e.conversations.Unseen(interlocutorID)
}

func (e *Engine) Users() []models.User {
	return e.users.All()
}

// Candidates lists users the viewer could send a request to: not the viewer,
// not already connected in any status, username containing query.
func (e *Engine) Candidates(query string) []models.User {
	e.mu.Lock()
	self := e.principal.ExternalID
	e.mu.Unlock()
	return e.users.search(query, self, e.relationships.userIDs())
}

// MarkSeen marks everything interlocutorID sent the viewer as seen. When
// nothing changed it returns without resyncing.
func (e *Engine) MarkSeen(ctx context.Context, interlocutorID string) error {
	if _, ok := e.current(); !ok {
		return ErrInactive
	}
	if err := validateID("sender id", interlocutorID); err != nil {
		return err
	}
	n, err := e.backend.MarkSeen(ctx, interlocutorID)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	return e.Resync(ctx)
}

// SelectConversation marks the conversation seen now and keeps re-marking it
// every poll interval until another conversation is selected or it is cleared.
func (e *Engine) SelectConversation(ctx context.Context, interlocutorID string) error {
	if _, ok := e.current(); !ok {
		return ErrInactive
	}
	if err := validateID("interlocutor id", interlocutorID); err != nil {
		return err
	}
	e.poller.start(e.runContext(), interlocutorID, e.spawn, func(ctx context.Context, target string) {
		if err := e.MarkSeen(ctx, target); err != nil && ctx.Err() == nil {
			e.log.Warn("Conversation poll failed", "interlocutorID", target, "error", err)
		}
	})
	return e.MarkSeen(ctx, interlocutorID)
}

// ClearConversation stops the conversation poll.
func (e *Engine) ClearConversation() {
	e.poller.stop()
}

// SelectedConversation returns the interlocutor being polled, if any.
func (e *Engine) SelectedConversation() (string, bool) {
	return e.poller.current()
}

// SendMessage sends content (and optionally a media URL) to an accepted friend.
func (e *Engine) SendMessage(ctx context.Context, interlocutorID, content string, mediaURL *string) (*models.Message, error) {
	if _, ok := e.current(); !ok {
		return nil, ErrInactive
	}
	if err := validateID("receiver id", interlocutorID); err != nil {
		return nil, err
	}
	if content == "" && mediaURL == nil {
		return nil, apperr.Validation("message needs content or media")
	}
	msg, err := e.backend.SendMessage(ctx, models.SendMessageRequest{ReceiverID: interlocutorID, Content: content, MediaURL: mediaURL})
	if err != nil {
		return nil, err
	}
	e.resyncAfterMutation(ctx)
	return msg, nil
}

// EditMessage patches content, media_url or seen on a single message.
func (e *Engine) EditMessage(ctx context.Context, id string, patch map[string]interface{}) (*models.Message, error) {
	if _, ok := e.current(); !ok {
		return nil, ErrInactive
	}
	if err := validateID("message id", id); err != nil {
		return nil, err
	}
	msg, err := e.backend.UpdateMessage(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	e.resyncAfterMutation(ctx)
	return msg, nil
}

// resyncAfterMutation refreshes after a write the backend already accepted.
// A failed refresh is logged; the change event or next trigger catches up.
func (e *Engine) resyncAfterMutation(ctx context.Context) {
	if err := e.Resync(ctx); err != nil {
		e.log.Warn("Resync after mutation failed", "error", err)
	}
}
