package services

import (
	"context"

	"chat-sync/internal/apperr"
	"chat-sync/internal/changefeed"
	"chat-sync/internal/models"
	"chat-sync/internal/relation"
	"chat-sync/internal/repository"
	"chat-sync/pkg/logger"
)

// RelationshipService enforces the relationship state machine for the API.
type RelationshipService struct {
	repo  repository.RelationshipRepository
	users repository.UserRepository
	notifier
}

func NewRelationshipService(repo repository.RelationshipRepository, users repository.UserRepository, publisher changefeed.Publisher, log *logger.Logger) *RelationshipService {
	return &RelationshipService{
		repo:     repo,
		users:    users,
		notifier: newNotifier(publisher, log.With("service", "relationships")),
	}
}

// List returns every edge touching viewerID, blocked ones included.
func (s *RelationshipService) List(ctx context.Context, viewerID string) ([]models.Relationship, error) {
	return s.repo.ListForUser(ctx, viewerID)
}

// SendRequest creates a pending edge from viewerID to friendID.
func (s *RelationshipService) SendRequest(ctx context.Context, viewerID, friendID string) (*models.Relationship, error) {
	if err := validateID("friend_id", friendID); err != nil {
		return nil, err
	}
	if friendID == viewerID {
		return nil, apperr.Validation("cannot send a friend request to yourself")
	}
	if _, err := s.users.FindByID(ctx, friendID); err != nil {
		return nil, err
	}

	rel := &models.Relationship{
		UserID:   viewerID,
		FriendID: friendID,
		SenderID: viewerID,
		Status:   relation.StatusPending,
	}
	if err := s.repo.Create(ctx, rel); err != nil {
		return nil, err
	}

	s.log.Info("Friend request sent", "relationshipID", rel.ID, "from", viewerID, "to", friendID)
	s.notify(ctx, changefeed.TableRelationships)
	return s.repo.FindByID(ctx, rel.ID)
}

// loadForParticipant fetches the edge and checks viewerID is one of its endpoints.
func (s *RelationshipService) loadForParticipant(ctx context.Context, viewerID, id string) (*models.Relationship, error) {
	if err := validateID("relationship id", id); err != nil {
		return nil, err
	}
	rel, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !relation.IsParticipant(viewerID, rel.UserID, rel.FriendID) {
		return nil, apperr.Authorization("not a participant of relationship %s", id)
	}
	return rel, nil
}

// Transition moves the edge to rawStatus and records viewerID as its sender.
func (s *RelationshipService) Transition(ctx context.Context, viewerID, id, rawStatus string) (*models.Relationship, error) {
	rel, err := s.loadForParticipant(ctx, viewerID, id)
	if err != nil {
		return nil, err
	}
	to, err := relation.ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	if err := relation.Check(rel.Status, to, rel.SenderID == viewerID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, rel.Status, to, viewerID); err != nil {
		return nil, err
	}

	s.log.Info("Relationship updated", "relationshipID", id, "from", rel.Status, "to", to, "by", viewerID)
	s.notify(ctx, changefeed.TableRelationships)
	return s.repo.FindByID(ctx, id)
}

// Remove deletes the edge. Either participant may do so from any status.
func (s *RelationshipService) Remove(ctx context.Context, viewerID, id string) error {
	if _, err := s.loadForParticipant(ctx, viewerID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info("Relationship removed", "relationshipID", id, "by", viewerID)
	s.notify(ctx, changefeed.TableRelationships)
	return nil
}
