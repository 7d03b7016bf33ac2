package main

import (
	"context"
	"errors"
	"fmt"

	"chat-sync/internal/apperr"
	"chat-sync/internal/auth"
	"chat-sync/internal/changefeed"
	"chat-sync/internal/config"
	"chat-sync/internal/database"
	"chat-sync/internal/models"
	"chat-sync/internal/repository"
	"chat-sync/internal/services"
	"chat-sync/pkg/logger"
)

func main() {
	cfg, _ := config.LoadConfig()
	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	log.Info("Starting database seeding...")

	db, err := database.Open(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database", "error", err)
	}

	userRepo := repository.NewUserRepository(db)
	relationshipRepo := repository.NewRelationshipRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	// Seeding runs offline; nobody is listening for change events.
	var publisher changefeed.Publisher = changefeed.Discard{}
	userService := services.NewUserService(userRepo, publisher, log)
	relationshipService := services.NewRelationshipService(relationshipRepo, userRepo, publisher, log)
	messageService := services.NewMessageService(messageRepo, relationshipRepo, userRepo, publisher, log)

	ctx := context.Background()

	log.Info("Creating initial users...")
	seedUsers := []struct {
		username string
		email    string
	}{
		{"alice", "alice@chat-sync.dev"},
		{"bob", "bob@chat-sync.dev"},
		{"charlie", "charlie@chat-sync.dev"},
		{"dana", "dana@chat-sync.dev"},
	}

	users := make(map[string]*models.User, len(seedUsers))
	for _, s := range seedUsers {
		user, created, err := userService.EnsureProfile(ctx, "seed_"+s.username, &models.EnsureProfileRequest{
			Username: s.username,
			Email:    s.email,
		})
		if err != nil {
			log.Fatal("Failed to create user", "username", s.username, "error", err)
		}
		users[s.username] = user
		log.Info("Seeded user", "username", s.username, "id", user.ID, "created", created)
	}

	log.Info("Creating relationships...")
	// alice and bob are friends, charlie is waiting on alice, dana has blocked bob.
	connect(ctx, log, relationshipService, users["alice"], users["bob"], true)
	connect(ctx, log, relationshipService, users["charlie"], users["alice"], false)
	if rel := connect(ctx, log, relationshipService, users["dana"], users["bob"], true); rel != nil && rel.Status != "blocked" {
		if _, err := relationshipService.Transition(ctx, users["dana"].ID, rel.ID, "blocked"); err != nil {
			log.Warn("Failed to block", "relationshipID", rel.ID, "error", err)
		}
	}

	log.Info("Creating sample messages...")
	sample := []struct {
		from, to, text string
	}{
		{"alice", "bob", "Hey Bob, welcome aboard!"},
		{"bob", "alice", "Thanks Alice, glad to be here."},
		{"alice", "bob", "Ping me if you need anything."},
	}
	for _, m := range sample {
		_, err := messageService.Send(ctx, users[m.from].ID, &models.SendMessageRequest{
			ReceiverID: users[m.to].ID,
			Content:    m.text,
		})
		if err != nil {
			log.Warn("Failed to create message", "from", m.from, "to", m.to, "error", err)
		}
	}

	log.Info("Development tokens (valid for " + cfg.JWT.ExpirationTime.String() + "):")
	for _, s := range seedUsers {
		token, err := auth.IssueToken(cfg.JWT.Secret, cfg.JWT.Issuer, "seed_"+s.username, cfg.JWT.ExpirationTime,
			auth.Claims{Username: s.username, Email: s.email})
		if err != nil {
			log.Fatal("Failed to issue token", "username", s.username, "error", err)
		}
		fmt.Printf("%-8s %s\n", s.username, token)
	}

	log.Info("Database seeding completed successfully!")
}

// connect sends a request from a to b and, when accept is set, accepts it as b.
// An existing edge is returned as is.
func connect(ctx context.Context, log *logger.Logger, svc *services.RelationshipService, a, b *models.User, accept bool) *models.Relationship {
	rel, err := svc.SendRequest(ctx, a.ID, b.ID)
	if errors.Is(err, apperr.ErrConflict) {
		log.Info("Relationship already exists", "from", a.Username, "to", b.Username, "status", apperr.CurrentStatus(err))
		existing, findErr := findEdge(ctx, svc, a.ID, b.ID)
		if findErr != nil {
			log.Warn("Failed to load existing relationship", "error", findErr)
			return nil
		}
		return existing
	}
	if err != nil {
		log.Warn("Failed to send request", "from", a.Username, "to", b.Username, "error", err)
		return nil
	}
	if !accept {
		return rel
	}
	accepted, err := svc.Transition(ctx, b.ID, rel.ID, "accepted")
	if err != nil {
		log.Warn("Failed to accept request", "relationshipID", rel.ID, "error", err)
		return rel
	}
	return accepted
}

func findEdge(ctx context.Context, svc *services.RelationshipService, a, b string) (*models.Relationship, error) {
	rels, err := svc.List(ctx, a)
	if err != nil {
		return nil, err
	}
	for i := range rels {
		if rels[i].UserID == b || rels[i].FriendID == b {
			return &rels[i], nil
		}
	}
	return nil, apperr.NotFound("relationship between %s and %s", a, b)
}
