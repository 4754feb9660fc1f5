// Package repository declares the persistence interfaces the service layer
// depends on. The sqlstore package implements all of them; service tests use
// hand-written in-memory fakes.
//
// ERROR CONTRACT:
//   - a missing row is apperror.ErrNotFound
//   - a unique-constraint violation is apperror.ErrConflict
//   - anything else from the driver is apperror.ErrTransient
package repository

import (
	"context"

	"github.com/sakif/lunchbox/internal/model"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UpsertGitHubUser creates the user on first login or refreshes
	// name/email on later logins. user.ID is populated on return; created
	// reports whether this call inserted the row.
	UpsertGitHubUser(ctx context.Context, user *model.User) (created bool, err error)
}

type ProfileRepository interface {
	// UpsertProfile creates or updates the profile keyed by profile.ID.
	UpsertProfile(ctx context.Context, profile *model.Profile) error
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	GetProfiles(ctx context.Context, ids []string) (map[string]model.Profile, error)
	SearchProfiles(ctx context.Context, q ProfileSearch) ([]model.Profile, error)
}

// SearchField selects which profile column a search matches against.
type SearchField string

const (
	SearchByUsername SearchField = "username"
	SearchByEmail    SearchField = "email"
)

// ProfileSearch is a case-insensitive substring search over one column.
type ProfileSearch struct {
	Query   string
	By      SearchField
	Exclude []string // profile ids to leave out (the searcher and their friends)
	Limit   int
}

type FriendRequestRepository interface {
	// CreateFriendRequest inserts a pending request. It returns ErrConflict
	// when a pending or accepted request already exists for the pair.
	CreateFriendRequest(ctx context.Context, req *model.FriendRequest) error
	GetFriendRequest(ctx context.Context, id string) (*model.FriendRequest, error)
	// FindActiveBetween returns the pending or accepted request between a and
	// b in either direction, or ErrNotFound.
	FindActiveBetween(ctx context.Context, a, b string) (*model.FriendRequest, error)
	// ListForUser returns every request where userID is either side,
	// newest first.
	ListForUser(ctx context.Context, userID string) ([]model.FriendRequest, error)
	// TransitionFriendRequest moves a pending request to next. It returns
	// ErrInvalidState if the request is no longer pending.
	TransitionFriendRequest(ctx context.Context, id string, next model.FriendStatus) (*model.FriendRequest, error)
}

type ListRepository interface {
	CreateList(ctx context.Context, list *model.List) error
	GetList(ctx context.Context, id string) (*model.List, error)
	// ListLists returns all lists newest first; a non-empty creatorID limits
	// the result to that creator.
	ListLists(ctx context.Context, creatorID string) ([]model.List, error)
	UpdateList(ctx context.Context, list *model.List) error
	DeleteList(ctx context.Context, id string) error
}

type RestaurantRepository interface {
	CreateRestaurant(ctx context.Context, r *model.Restaurant) error
	GetRestaurant(ctx context.Context, id string) (*model.Restaurant, error)
	ListRestaurants(ctx context.Context, listID string) ([]model.Restaurant, error)
	UpdateRestaurant(ctx context.Context, r *model.Restaurant) error
	DeleteRestaurant(ctx context.Context, id string) error
}

type CommentRepository interface {
	CreateComment(ctx context.Context, c *model.Comment) error
	ListComments(ctx context.Context, restaurantID string) ([]model.Comment, error)
}
