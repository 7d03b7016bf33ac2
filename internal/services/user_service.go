package services

import (
	"context"
	"errors"
	"strings"

	"chat-sync/internal/apperr"
	"chat-sync/internal/changefeed"
	"chat-sync/internal/models"
	"chat-sync/internal/repository"
	"chat-sync/pkg/logger"
)

type UserService struct {
	repo repository.UserRepository
	notifier
}

func NewUserService(repo repository.UserRepository, publisher changefeed.Publisher, log *logger.Logger) *UserService {
	return &UserService{
		repo:     repo,
		notifier: newNotifier(publisher, log.With("service", "users")),
	}
}

// EnsureProfile returns the profile for externalID, creating it on first use.
// created reports whether a new row was written.
func (s *UserService) EnsureProfile(ctx context.Context, externalID string, req *models.EnsureProfileRequest) (user *models.User, created bool, err error) {
	existing, err := s.repo.FindByExternalID(ctx, externalID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, false, err
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, false, apperr.Validation("username is required")
	}

	user = &models.User{
		ExternalID: externalID,
		Username:   username,
		Email:      strings.TrimSpace(req.Email),
		AvatarURL:  req.AvatarURL,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		// Another request for the same identity got there first.
		if errors.Is(err, apperr.ErrConflict) {
			existing, findErr := s.repo.FindByExternalID(ctx, externalID)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	s.log.Info("Profile created", "userID", user.ID, "externalID", externalID)
	s.notify(ctx, changefeed.TableUsers)
	return user, true, nil
}

// Resolve maps the token subject to its profile.
func (s *UserService) Resolve(ctx context.Context, externalID string) (*models.User, error) {
	return s.repo.FindByExternalID(ctx, externalID)
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.repo.List(ctx)
}

func (s *UserService) UpdateProfile(ctx context.Context, user *models.User, req *models.UpdateProfileRequest) (*models.User, error) {
	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if username == "" || len(username) > 100 {
			return nil, apperr.Validation("username must be 1-100 characters")
		}
		user.Username = username
	}
	if req.Email != nil {
		user.Email = strings.TrimSpace(*req.Email)
	}
	if req.AvatarURL != nil {
		user.AvatarURL = *req.AvatarURL
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	s.notify(ctx, changefeed.TableUsers)
	return user, nil
}
