package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/learnhub/apiserver/internal/auth"
	"github.com/learnhub/apiserver/internal/events"
	"github.com/learnhub/apiserver/internal/logger"
	"github.com/learnhub/apiserver/internal/storage"
	"github.com/learnhub/apiserver/internal/store"
	"github.com/learnhub/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, user types.User) (types.User, error)
}

// RegisterInput carries a new account. Image is optional.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
	Image    *types.FileUpload
}

// ProfileInput carries a profile update. When Image is set it replaces
// ProfileImage; otherwise ProfileImage is stored as given.
type ProfileInput struct {
	Name         string
	Email        string
	ProfileImage *string
	Image        *types.FileUpload
}

// LoginResult is a signed token and the authenticated user.
type LoginResult struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// InstructorCache drops cached data that embeds an instructor's profile.
type InstructorCache interface {
	InvalidateInstructor(ctx context.Context, instructorID string)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo        UserRepository
	objects     ObjectStore
	tokens      *auth.TokenManager
	events      events.Publisher
	log         *logger.Logger
	courseCache InstructorCache
}

func NewUserService(repo UserRepository, objects ObjectStore, tokens *auth.TokenManager, publisher events.Publisher, log *logger.Logger) *UserService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &UserService{
		repo:    repo,
		objects: objects,
		tokens:  tokens,
		events:  publisher,
		log:     log.With("service", "user"),
	}
}

// SetInstructorCache makes profile updates invalidate cached course details
// of the updated user.
func (s *UserService) SetInstructorCache(c InstructorCache) {
	s.courseCache = c
}

// Register creates an account. The email is checked before anything is
// uploaded; a concurrent insert of the same email is caught by the store.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = types.RoleLearner
	}
	if !types.IsValidRole(role) {
		return types.User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return types.User{}, ErrDuplicateEmail
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, fmt.Errorf("look up email: %w", err)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := types.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
	}

	var uploaded *storage.Object
	if in.Image != nil {
		obj, err := s.objects.Upload(ctx, storage.ProfilePrefix, *in.Image)
		if err != nil {
			return types.User{}, fmt.Errorf("upload profile image: %w", err)
		}
		uploaded = &obj
		user.ProfileImage = &obj.URL
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		discardUpload(ctx, s.objects, s.log, uploaded)
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, ErrDuplicateEmail
		}
		return types.User{}, fmt.Errorf("create user: %w", err)
	}

	publish(ctx, s.log, s.events, events.UserRegistered, events.UserPayload{
		UserID: created.ID,
		Name:   created.Name,
		Email:  created.Email,
		Role:   created.Role,
	})
	return created, nil
}

// Login verifies credentials and issues a token. Unknown emails and wrong
// passwords are indistinguishable.
func (s *UserService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("look up user: %w", err)
	}

	ok, err := auth.CheckPassword(user.PasswordHash, password)
	if err != nil {
		return LoginResult{}, fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	return LoginResult{Token: token, User: user}, nil
}

func (s *UserService) GetProfile(ctx context.Context, userID string) (types.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// UpdateProfile overwrites name, email and profile image of the caller.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (types.User, error) {
	if _, err := s.GetProfile(ctx, userID); err != nil {
		return types.User{}, err
	}

	user := types.User{
		ID:           userID,
		Name:         in.Name,
		Email:        in.Email,
		ProfileImage: in.ProfileImage,
	}

	var uploaded *storage.Object
	if in.Image != nil {
		obj, err := s.objects.Upload(ctx, storage.ProfilePrefix, *in.Image)
		if err != nil {
			return types.User{}, fmt.Errorf("upload profile image: %w", err)
		}
		uploaded = &obj
		user.ProfileImage = &obj.URL
	}

	updated, err := s.repo.UpdateProfile(ctx, user)
	if err != nil {
		discardUpload(ctx, s.objects, s.log, uploaded)
		switch {
		case errors.Is(err, store.ErrConflict):
			return types.User{}, ErrDuplicateEmail
		case errors.Is(err, store.ErrNotFound):
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("update user: %w", err)
	}

	if s.courseCache != nil {
		s.courseCache.InvalidateInstructor(ctx, userID)
	}
	return updated, nil
}
