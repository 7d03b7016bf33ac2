package syncer

import (
	"context"
	"errors"
	"sync"

	"chat-sync/internal/apperr"
	"chat-sync/internal/models"
	"chat-sync/internal/relation"

	"github.com/google/uuid"
)

// ErrRequestInFlight is returned when a request to the same user is already pending.
var ErrRequestInFlight = errors.New("syncer: request already in flight")

func validateID(field, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validation("%s must be a UUID, got %q", field, id)
	}
	return nil
}

// Guard performs relationship actions. It validates inputs locally, lets the
// backend enforce the transition table, and resyncs on success. It never
// writes the stores itself.
type Guard struct {
	engine *Engine
}

func (g *Guard) viewer() (*models.User, error) {
	v, ok := g.engine.current()
	if !ok {
		return nil, ErrInactive
	}
	return v, nil
}

// SendRequest creates a pending request from the viewer to friendID.
func (g *Guard) SendRequest(ctx context.Context, friendID string) (*models.Relationship, error) {
	viewer, err := g.viewer()
	if err != nil {
		return nil, err
	}
	if err := validateID("friend id", friendID); err != nil {
		return nil, err
	}
	if friendID == viewer.ID {
		return nil, apperr.Validation("cannot send a request to yourself")
	}
	rel, err := g.engine.backend.SendRequest(ctx, friendID)
	if err != nil {
		return nil, err
	}
	g.engine.resyncAfterMutation(ctx)
	return rel, nil
}

// Transition moves an edge to status.
func (g *Guard) Transition(ctx context.Context, relationshipID, status string) (*models.Relationship, error) {
	if _, err := g.viewer(); err != nil {
		return nil, err
	}
	if err := validateID("relationship id", relationshipID); err != nil {
		return nil, err
	}
	if _, err := relation.ParseStatus(status); err != nil {
		return nil, err
	}
	rel, err := g.engine.backend.UpdateRelationship(ctx, relationshipID, status)
	if err != nil {
		return nil, err
	}
	g.engine.resyncAfterMutation(ctx)
	return rel, nil
}

func (g *Guard) Accept(ctx context.Context, relationshipID string) (*models.Relationship, error) {
	return g.Transition(ctx, relationshipID, string(relation.StatusAccepted))
}

func (g *Guard) Block(ctx context.Context, relationshipID string) (*models.Relationship, error) {
	return g.Transition(ctx, relationshipID, string(relation.StatusBlocked))
}

// Remove deletes an edge in any status.
func (g *Guard) Remove(ctx context.Context, relationshipID string) error {
	if _, err := g.viewer(); err != nil {
		return err
	}
	if err := validateID("relationship id", relationshipID); err != nil {
		return err
	}
	if err := g.engine.backend.DeleteRelationship(ctx, relationshipID); err != nil {
		return err
	}
	g.engine.resyncAfterMutation(ctx)
	return nil
}

// Connector sends friend requests from search results, allowing one request
// per target at a time.
type Connector struct {
	guard *Guard

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewConnector(g *Guard) *Connector {
	return &Connector{guard: g, inFlight: make(map[string]struct{})}
}

// Connect sends a request to friendID. A second call for the same target while
// the first is outstanding fails with ErrRequestInFlight.
func (c *Connector) Connect(ctx context.Context, friendID string) (*models.Relationship, error) {
	c.mu.Lock()
	if _, busy := c.inFlight[friendID]; busy {
		c.mu.Unlock()
		return nil, ErrRequestInFlight
	}
	c.inFlight[friendID] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, friendID)
		c.mu.Unlock()
	}()

	return c.guard.SendRequest(ctx, friendID)
}

// InFlight reports whether a request to friendID is outstanding.
func (c *Connector) InFlight(friendID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[friendID]
	return ok
}
