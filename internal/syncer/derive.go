package syncer

import (
	"chat-sync/internal/models"
	"chat-sync/internal/relation"
	"chat-sync/pkg/logger"
)

// FriendView is the counterpart of one relationship edge as seen by the viewer.
// The embedded User is the other endpoint, not the viewer.
type FriendView struct {
	models.User
	RelationshipID string          `json:"relationship_id"`
	Status         relation.Status `json:"status"`
	// IsSender reports whether the viewer performed the edge's last action.
	IsSender bool `json:"is_sender"`
}

// MessageView is a message annotated with the viewer's side of it.
type MessageView struct {
	models.Message
	IsSender     bool        `json:"is_sender"`
	Interlocutor models.User `json:"interlocutor"`
}

func userOrStub(u *models.User, id string) models.User {
	if u != nil {
		return *u
	}
	return models.User{ID: id}
}

// deriveFriends maps relationships onto the viewer. Edges that do not touch the
// viewer are dropped.
func deriveFriends(viewerID string, rels []models.Relationship, log *logger.Logger) []FriendView {
	out := make([]FriendView, 0, len(rels))
	for _, rel := range rels {
		var other models.User
		switch viewerID {
		case rel.UserID:
			other = userOrStub(rel.Friend, rel.FriendID)
		case rel.FriendID:
			other = userOrStub(rel.User, rel.UserID)
		default:
			log.Warn("Dropping relationship without viewer", "relationshipID", rel.ID)
			continue
		}
		out = append(out, FriendView{
			User:           other,
			RelationshipID: rel.ID,
			Status:         rel.Status,
			IsSender:       rel.SenderID == viewerID,
		})
	}
	return out
}

// deriveMessages keeps server order. A message must have the viewer on exactly
// one side; anything else is dropped.
func deriveMessages(viewerID string, msgs []models.Message, log *logger.Logger) []MessageView {
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		sent := m.SenderID == viewerID
		received := m.ReceiverID == viewerID
		if sent == received {
			log.Warn("Dropping message without a single viewer side", "messageID", m.ID)
			continue
		}
		view := MessageView{Message: m, IsSender: sent}
		if sent {
			view.Interlocutor = userOrStub(m.Receiver, m.ReceiverID)
		} else {
			view.Interlocutor = userOrStub(m.Sender, m.SenderID)
		}
		out = append(out, view)
	}
	return out
}
