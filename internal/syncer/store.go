package syncer

import (
	"strings"
	"sync"

	"chat-sync/internal/models"
	"chat-sync/internal/relation"
)

// RelationshipStore holds the viewer's derived friend list.
// Only the engine replaces it; readers get copies.
type RelationshipStore struct {
	mu      sync.RWMutex
	friends []FriendView
}

func (s *RelationshipStore) replace(friends []FriendView) {
	s.mu.Lock()
	s.friends = friends
	s.mu.Unlock()
}

func (s *RelationshipStore) All() []FriendView {
	return s.Filter(nil)
}

// Filter returns the friends for which keep returns true. A nil keep returns all.
func (s *RelationshipStore) Filter(keep func(FriendView) bool) []FriendView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FriendView, 0, len(s.friends))
	for _, f := range s.friends {
		if keep == nil || keep(f) {
			out = append(out, f)
		}
	}
	return out
}

// Get returns the edge with the given relationship id.
func (s *RelationshipStore) Get(relationshipID string) (FriendView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.friends {
		if f.RelationshipID == relationshipID {
			return f, true
		}
	}
	return FriendView{}, false
}

func (s *RelationshipStore) userIDs() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make(map[string]struct{}, len(s.friends))
	for _, f := range s.friends {
		ids[f.ID] = struct{}{}
	}
	return ids
}

// ConversationStore holds the viewer's messages in server order.
type ConversationStore struct {
	mu       sync.RWMutex
	messages []MessageView
}

func (s *ConversationStore) replace(messages []MessageView) {
	s.mu.Lock()
	s.messages = messages
	s.mu.Unlock()
}

func (s *ConversationStore) All() []MessageView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]MessageView(nil), s.messages...)
}

// With returns the messages exchanged with interlocutorID, oldest first.
func (s *ConversationStore) With(interlocutorID string) []MessageView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []MessageView
	for _, m := range s.messages {
		if m.Interlocutor.ID == interlocutorID {
			out = append(out, m)
		}
	}
	return out
}

// Unseen counts received messages from interlocutorID not yet seen.
func (s *ConversationStore) Unseen(interlocutorID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages {
		if !m.IsSender && !m.Seen && m.Interlocutor.ID == interlocutorID {
			n++
		}
	}
	return n
}

// UserDirectory is the last users snapshot, used for search.
type UserDirectory struct {
	mu    sync.RWMutex
	users []models.User
}

func (d *UserDirectory) replace(users []models.User) {
	d.mu.Lock()
	d.users = users
	d.mu.Unlock()
}

func (d *UserDirectory) All() []models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]models.User(nil), d.users...)
}

// search filters by case-insensitive username substring, skipping the viewer's
// own external id and every id in exclude. An empty query matches everyone.
func (d *UserDirectory) search(query, selfExternalID string, exclude map[string]struct{}) []models.User {
	q := strings.ToLower(strings.TrimSpace(query))
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.User, 0)
	for _, u := range d.users {
		if u.ExternalID == selfExternalID {
			continue
		}
		if _, ok := exclude[u.ID]; ok {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(u.Username), q) {
			continue
		}
		out = append(out, u)
	}
	return out
}

func isPendingFor(incoming bool) func(FriendView) bool {
	return func(f FriendView) bool {
		return f.Status == relation.StatusPending && f.IsSender != incoming
	}
}
