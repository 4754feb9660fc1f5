package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/lunchbox/internal/apperror"
	"github.com/sakif/lunchbox/internal/events"
	"github.com/sakif/lunchbox/internal/metrics"
	"github.com/sakif/lunchbox/internal/model"
	"github.com/sakif/lunchbox/internal/policy"
	"github.com/sakif/lunchbox/internal/repository"
)

const MaxCommentLength = 2000

// CommentService gates comments on restaurants.
//
// Anyone may read a restaurant's comments. Writing is limited to the person
// who added the restaurant and their friends. The asymmetry is intentional.
// Comments cannot be edited or deleted once posted.
type CommentService struct {
	restaurants repository.RestaurantRepository
	comments    repository.CommentRepository
	friends     *FriendService
	profiles    *ProfileService
	authz       Authorizer
	events      *events.Emitter
	logger      *slog.Logger
}

func NewCommentService(
	restaurants repository.RestaurantRepository,
	comments repository.CommentRepository,
	friends *FriendService,
	profiles *ProfileService,
	authz Authorizer,
	emitter *events.Emitter,
	logger *slog.Logger,
) *CommentService {
	return &CommentService{
		restaurants: restaurants,
		comments:    comments,
		friends:     friends,
		profiles:    profiles,
		authz:       authz,
		events:      emitter,
		logger:      logger,
	}
}

// Thread is a restaurant's comments as seen by one viewer.
type Thread struct {
	Comments []model.Comment `json:"comments"`
	CanWrite bool            `json:"canWrite"`
}

// CanRead reports whether viewerID may read comments on r. Always true.
func (s *CommentService) CanRead(ctx context.Context, viewerID string, r *model.Restaurant) (bool, error) {
	return s.authz.Allowed(ctx, s.input(policy.CommentRead, viewerID, r, false))
}

// CanWrite reports whether viewerID may comment on r: they added it, or
// they are friends with whoever did.
func (s *CommentService) CanWrite(ctx context.Context, viewerID string, r *model.Restaurant) (bool, error) {
	friends := false
	if viewerID != "" && viewerID != r.CreatedBy {
		var err error
		if friends, err = s.friends.AreFriends(ctx, viewerID, r.CreatedBy); err != nil {
			return false, err
		}
	}
	return s.authz.Allowed(ctx, s.input(policy.CommentWrite, viewerID, r, friends))
}

// Post adds a comment.
func (s *CommentService) Post(ctx context.Context, viewerID, restaurantID, content string) (*model.Comment, error) {
	r, err := s.restaurants.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("service/comment: fetching restaurant %s: %w", restaurantID, err)
	}
	if viewerID == "" {
		return nil, apperror.Unauthenticated("sign in to comment")
	}

	ok, err := s.CanWrite(ctx, viewerID, r)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn("comment denied",
			slog.String("restaurantID", restaurantID),
			slog.String("viewer", viewerID),
		)
		return nil, apperror.Forbidden("only friends of the person who added this restaurant can comment")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.ValidationFailed("content", "comment cannot be empty")
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("comment must be %d characters or less", MaxCommentLength))
	}

	c := &model.Comment{RestaurantID: restaurantID, AuthorID: viewerID, Content: content}
	if err := s.comments.CreateComment(ctx, c); err != nil {
		return nil, fmt.Errorf("service/comment: creating comment: %w", err)
	}
	if p, err := s.profiles.Get(ctx, viewerID); err == nil {
		c.Author = p
	}

	metrics.IncCommentPosted()
	s.events.Emit(ctx, events.CommentPosted, viewerID, restaurantID, map[string]any{"comment_id": c.ID})
	return c, nil
}

// List returns a restaurant's comments newest first, each with its author's
// profile, and whether viewerID may add one.
func (s *CommentService) List(ctx context.Context, viewerID, restaurantID string) (*Thread, error) {
	r, err := s.restaurants.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("service/comment: fetching restaurant %s: %w", restaurantID, err)
	}
	if ok, err := s.CanRead(ctx, viewerID, r); err != nil {
		return nil, err
	} else if !ok {
		return nil, apperror.Forbidden("you cannot read these comments")
	}

	comments, err := s.comments.ListComments(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("service/comment: listing comments: %w", err)
	}

	ids := make([]string, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.AuthorID)
	}
	authors, err := s.profiles.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]model.Comment, len(comments))
	for i, c := range comments {
		if p, ok := authors[c.AuthorID]; ok {
			c.Author = &p
		}
		out[i] = c
	}

	canWrite, err := s.CanWrite(ctx, viewerID, r)
	if err != nil {
		return nil, err
	}
	return &Thread{Comments: out, CanWrite: canWrite}, nil
}

func (s *CommentService) input(action, viewerID string, r *model.Restaurant, friends bool) policy.Input {
	return policy.Input{
		Action:     action,
		Actor:      viewerID,
		Restaurant: &policy.RestaurantFact{CreatedBy: r.CreatedBy},
		Friends:    friends,
	}
}
