package services

import (
	"context"
	"encoding/json"
	"strings"

	"chat-sync/internal/apperr"
	"chat-sync/internal/changefeed"
	"chat-sync/internal/models"
	"chat-sync/internal/repository"
	"chat-sync/pkg/logger"
)

type MessageService struct {
	repo          repository.MessageRepository
	relationships repository.RelationshipRepository
	users         repository.UserRepository
	notifier
}

func NewMessageService(repo repository.MessageRepository, relationships repository.RelationshipRepository, users repository.UserRepository, publisher changefeed.Publisher, log *logger.Logger) *MessageService {
	return &MessageService{
		repo:          repo,
		relationships: relationships,
		users:         users,
		notifier:      newNotifier(publisher, log.With("service", "messages")),
	}
}

// List returns the viewer's messages in both directions, oldest first.
func (s *MessageService) List(ctx context.Context, viewerID string) ([]models.Message, error) {
	return s.repo.ListForUser(ctx, viewerID)
}

// Send stores a message to an accepted friend.
func (s *MessageService) Send(ctx context.Context, senderID string, req *models.SendMessageRequest) (*models.Message, error) {
	if err := validateID("receiver_id", req.ReceiverID); err != nil {
		return nil, err
	}
	if req.ReceiverID == senderID {
		return nil, apperr.Validation("cannot message yourself")
	}
	content := strings.TrimSpace(req.Content)
	hasMedia := req.MediaURL != nil && *req.MediaURL != ""
	if content == "" && !hasMedia {
		return nil, apperr.Validation("message needs content or media")
	}
	if _, err := s.users.FindByID(ctx, req.ReceiverID); err != nil {
		return nil, err
	}

	connected, err := s.relationships.AreConnected(ctx, senderID, req.ReceiverID)
	if err != nil {
		return nil, err
	}
	if !connected {
		return nil, apperr.Authorization("messages require an accepted relationship")
	}

	msg := &models.Message{
		SenderID:   senderID,
		ReceiverID: req.ReceiverID,
		Content:    content,
	}
	if hasMedia {
		msg.MediaURL = req.MediaURL
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, err
	}

	s.log.Debug("Message sent", "messageID", msg.ID, "from", senderID, "to", req.ReceiverID)
	s.notify(ctx, changefeed.TableMessages)
	return s.repo.FindByID(ctx, msg.ID)
}

// MarkSeen flags every unseen message from senderID to viewerID. Zero matches is not an error.
func (s *MessageService) MarkSeen(ctx context.Context, viewerID, senderID string) (int64, error) {
	if err := validateID("sender_id", senderID); err != nil {
		return 0, err
	}
	n, err := s.repo.MarkSeen(ctx, viewerID, senderID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.notify(ctx, changefeed.TableMessages)
	}
	return n, nil
}

// Update applies a single-message patch. Only content, media_url and seen may
// appear, and seen can only be set to true.
func (s *MessageService) Update(ctx context.Context, viewerID, id string, patch map[string]json.RawMessage) (*models.Message, error) {
	fields, err := parseMessagePatch(patch)
	if err != nil {
		return nil, err
	}
	if err := validateID("message id", id); err != nil {
		return nil, err
	}

	msg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if viewerID != msg.SenderID && viewerID != msg.ReceiverID {
		return nil, apperr.Authorization("not a participant of message %s", id)
	}

	if err := s.repo.Update(ctx, id, fields); err != nil {
		return nil, err
	}
	s.notify(ctx, changefeed.TableMessages)
	return s.repo.FindByID(ctx, id)
}

func parseMessagePatch(patch map[string]json.RawMessage) (map[string]interface{}, error) {
	if len(patch) == 0 {
		return nil, apperr.Validation("empty update")
	}

	allowed := make(map[string]bool, len(models.MessageUpdateFields))
	for _, f := range models.MessageUpdateFields {
		allowed[f] = true
	}
	for key := range patch {
		if !allowed[key] {
			return nil, apperr.Validation("field %q cannot be updated", key)
		}
	}

	var upd models.MessageUpdate
	raw, _ := json.Marshal(patch)
	if err := json.Unmarshal(raw, &upd); err != nil {
		return nil, apperr.Validation("invalid update: %v", err)
	}

	fields := make(map[string]interface{}, len(patch))
	if _, ok := patch["content"]; ok {
		if upd.Content == nil {
			return nil, apperr.Validation("content cannot be null")
		}
		fields["content"] = *upd.Content
	}
	if _, ok := patch["media_url"]; ok {
		fields["media_url"] = upd.MediaURL
	}
	if _, ok := patch["seen"]; ok {
		if upd.Seen == nil || !*upd.Seen {
			return nil, apperr.Validation("seen can only be set to true")
		}
		fields["seen"] = true
	}
	return fields, nil
}
