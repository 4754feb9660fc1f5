package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sakif/lunchbox/internal/apperror"
	"github.com/sakif/lunchbox/internal/model"
	"github.com/sakif/lunchbox/internal/policy"
	"github.com/sakif/lunchbox/internal/repository"
)

const (
	MaxUsernameLength = 30
	MaxNameLength     = 100

	// DefaultProfileCacheSize bounds the in-process profile cache.
	DefaultProfileCacheSize = 1024
)

// ProfileService is the Profile Directory: the public shadow of each user,
// used for display, friend search and comment authors.
//
// CACHING:
// Profiles are read far more often than they change (every comment list and
// friend list hydrates several of them), so reads go through an LRU cache.
// Every write path in this service updates the cache, and sign-out evicts
// the user's entry.
type ProfileService struct {
	repo   repository.ProfileRepository
	cache  *lru.Cache[string, model.Profile]
	authz  Authorizer
	logger *slog.Logger
}

func NewProfileService(repo repository.ProfileRepository, authz Authorizer, cacheSize int, logger *slog.Logger) (*ProfileService, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultProfileCacheSize
	}
	cache, err := lru.New[string, model.Profile](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("service/profile: creating cache: %w", err)
	}
	return &ProfileService{repo: repo, cache: cache, authz: authz, logger: logger}, nil
}

// ProfileUpdate is a partial update; nil fields are left alone.
type ProfileUpdate struct {
	Username *string `json:"username"`
	Name     *string `json:"name"`
}

// Get returns one profile, from cache when possible.
func (s *ProfileService) Get(ctx context.Context, id string) (*model.Profile, error) {
	if p, ok := s.cache.Get(id); ok {
		return &p, nil
	}
	p, err := s.repo.GetProfile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/profile: fetching %s: %w", id, err)
	}
	s.cache.Add(id, *p)
	return p, nil
}

// GetMany returns the profiles that exist among ids. Missing ids are simply
// absent from the map.
func (s *ProfileService) GetMany(ctx context.Context, ids []string) (map[string]model.Profile, error) {
	out := make(map[string]model.Profile, len(ids))
	var misses []string
	for _, id := range ids {
		if _, done := out[id]; done {
			continue
		}
		if p, ok := s.cache.Get(id); ok {
			out[id] = p
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := s.repo.GetProfiles(ctx, misses)
	if err != nil {
		return nil, fmt.Errorf("service/profile: fetching %d profiles: %w", len(misses), err)
	}
	for id, p := range fetched {
		s.cache.Add(id, p)
		out[id] = p
	}
	return out, nil
}

// Upsert creates or refreshes a profile (sign-up, first login, GitHub login).
func (s *ProfileService) Upsert(ctx context.Context, p *model.Profile) error {
	if err := validateUsername(p.Username); err != nil {
		return err
	}
	if err := s.repo.UpsertProfile(ctx, p); err != nil {
		s.cache.Remove(p.ID)
		return fmt.Errorf("service/profile: saving %s: %w", p.ID, err)
	}
	s.cache.Add(p.ID, *p)
	return nil
}

// Update applies a partial update. Only the profile's own user may edit it.
func (s *ProfileService) Update(ctx context.Context, actor, id string, upd ProfileUpdate) (*model.Profile, error) {
	in := policy.Input{Action: policy.ProfileUpdate, Actor: actor, Target: id}
	if err := authorize(ctx, s.authz, s.logger, in, "you can only edit your own profile"); err != nil {
		return nil, err
	}

	current, err := s.repo.GetProfile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/profile: fetching %s: %w", id, err)
	}

	next := *current
	if upd.Username != nil {
		next.Username = strings.TrimSpace(*upd.Username)
	}
	if upd.Name != nil {
		next.Name = strings.TrimSpace(*upd.Name)
		if utf8.RuneCountInString(next.Name) > MaxNameLength {
			return nil, apperror.ValidationFailed("name",
				fmt.Sprintf("name must be %d characters or less", MaxNameLength))
		}
	}

	if err := s.Upsert(ctx, &next); err != nil {
		return nil, err
	}
	s.logger.Info("profile updated", slog.String("userID", id))
	return &next, nil
}

// Search is a case-insensitive substring search over username or email.
func (s *ProfileService) Search(ctx context.Context, q repository.ProfileSearch) ([]model.Profile, error) {
	found, err := s.repo.SearchProfiles(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("service/profile: searching %q: %w", q.Query, err)
	}
	return found, nil
}

// Evict drops a cached profile. Called on sign-out.
func (s *ProfileService) Evict(id string) {
	s.cache.Remove(id)
}

// ensure returns the user's profile, creating it from the account record
// when it does not exist yet (lazy creation on first login).
func (s *ProfileService) ensure(ctx context.Context, user *model.User) (*model.Profile, error) {
	p, err := s.Get(ctx, user.ID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	p = profileFromUser(user)
	if err := s.Upsert(ctx, p); err != nil {
		if p.Username == "" || !(errors.Is(err, apperror.ErrConflict) || errors.Is(err, apperror.ErrValidation)) {
			return nil, err
		}
		// The username is taken, or it came from GitHub and breaks our
		// rules (GitHub allows 39 characters). Keep the profile, drop the
		// username; the user can pick another.
		s.logger.Warn("username unusable, creating profile without it",
			slog.String("userID", user.ID),
			slog.String("username", p.Username),
			slog.String("error", err.Error()),
		)
		p.Username = ""
		if err := s.Upsert(ctx, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func profileFromUser(u *model.User) *model.Profile {
	return &model.Profile{
		ID:       u.ID,
		Username: strings.TrimSpace(u.Username),
		Name:     strings.TrimSpace(u.Name),
		Email:    u.Email,
	}
}

func validateUsername(username string) error {
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	}
	if strings.ContainsAny(username, " \t\n@,") {
		return apperror.ValidationFailed("username", "username cannot contain spaces, commas or @")
	}
	return nil
}
