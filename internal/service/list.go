package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/lunchbox/internal/apperror"
	"github.com/sakif/lunchbox/internal/events"
	"github.com/sakif/lunchbox/internal/model"
	"github.com/sakif/lunchbox/internal/policy"
	"github.com/sakif/lunchbox/internal/repository"
	"github.com/sakif/lunchbox/internal/storage"
)

const (
	MaxListTitleLength       = 100
	MaxListDescriptionLength = 1000
)

// ListService manages restaurant lists. Reads are public; only a list's
// creator may change or delete it.
type ListService struct {
	lists       repository.ListRepository
	restaurants repository.RestaurantRepository
	images      storage.ImageStore
	authz       Authorizer
	events      *events.Emitter
	logger      *slog.Logger
}

func NewListService(
	lists repository.ListRepository,
	restaurants repository.RestaurantRepository,
	images storage.ImageStore,
	authz Authorizer,
	emitter *events.Emitter,
	logger *slog.Logger,
) *ListService {
	return &ListService{
		lists:       lists,
		restaurants: restaurants,
		images:      images,
		authz:       authz,
		events:      emitter,
		logger:      logger,
	}
}

// ListPatch is a partial update; nil fields are left alone.
type ListPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// Create makes a new, empty list owned by creatorID.
func (s *ListService) Create(ctx context.Context, creatorID, title, description string) (*model.List, error) {
	if creatorID == "" {
		return nil, apperror.Unauthenticated("sign in to create lists")
	}
	list := &model.List{
		CreatorID:   creatorID,
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
	}
	if err := validateList(list); err != nil {
		return nil, err
	}

	if err := s.lists.CreateList(ctx, list); err != nil {
		return nil, fmt.Errorf("service/list: creating list: %w", err)
	}
	s.logger.Info("list created", slog.String("listID", list.ID), slog.String("creator", creatorID))
	return list, nil
}

// Get returns one list with its restaurant count.
func (s *ListService) Get(ctx context.Context, id string) (*model.List, error) {
	list, err := s.lists.GetList(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/list: fetching %s: %w", id, err)
	}
	return list, nil
}

// List returns every list, newest first.
func (s *ListService) List(ctx context.Context) ([]model.List, error) {
	return s.listLists(ctx, "")
}

// ListByCreator returns one user's lists, newest first.
func (s *ListService) ListByCreator(ctx context.Context, creatorID string) ([]model.List, error) {
	if creatorID == "" {
		return nil, apperror.Unauthenticated("sign in to see your lists")
	}
	return s.listLists(ctx, creatorID)
}

func (s *ListService) listLists(ctx context.Context, creatorID string) ([]model.List, error) {
	lists, err := s.lists.ListLists(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("service/list: listing lists: %w", err)
	}
	if lists == nil {
		lists = []model.List{}
	}
	return lists, nil
}

// Update changes title and/or description. Creator only.
func (s *ListService) Update(ctx context.Context, actorID, id string, patch ListPatch) (*model.List, error) {
	list, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOwner(ctx, policy.ListUpdate, actorID, list); err != nil {
		return nil, err
	}

	if patch.Title != nil {
		list.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		list.Description = strings.TrimSpace(*patch.Description)
	}
	if err := validateList(list); err != nil {
		return nil, err
	}

	if err := s.lists.UpdateList(ctx, list); err != nil {
		return nil, fmt.Errorf("service/list: updating %s: %w", id, err)
	}
	return list, nil
}

// Delete removes a list with its restaurants and their comments. Creator
// only. Uploaded images are removed afterwards; a failed image delete is
// logged and does not undo the list delete.
func (s *ListService) Delete(ctx context.Context, actorID, id string) error {
	list, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorizeOwner(ctx, policy.ListDelete, actorID, list); err != nil {
		return err
	}

	restaurants, err := s.restaurants.ListRestaurants(ctx, id)
	if err != nil {
		return fmt.Errorf("service/list: listing restaurants of %s: %w", id, err)
	}

	if err := s.lists.DeleteList(ctx, id); err != nil {
		return fmt.Errorf("service/list: deleting %s: %w", id, err)
	}

	for _, r := range restaurants {
		if r.ImagePath == "" {
			continue
		}
		if err := s.images.Delete(context.WithoutCancel(ctx), r.ImagePath); err != nil {
			s.logger.Error("image delete failed after list delete",
				slog.String("listID", id),
				slog.String("path", r.ImagePath),
				slog.String("error", err.Error()),
			)
		}
	}

	s.events.Emit(ctx, events.ListDeleted, actorID, id, map[string]any{"restaurants": len(restaurants)})
	s.logger.Info("list deleted", slog.String("listID", id), slog.String("actor", actorID))
	return nil
}

func (s *ListService) authorizeOwner(ctx context.Context, action, actorID string, list *model.List) error {
	in := policy.Input{
		Action: action,
		Actor:  actorID,
		List:   &policy.ListFacts{CreatorID: list.CreatorID},
	}
	return authorize(ctx, s.authz, s.logger, in, "only the list's creator can do that")
}

func validateList(l *model.List) error {
	if l.Title == "" {
		return apperror.ValidationFailed("title", "list title is required")
	}
	if utf8.RuneCountInString(l.Title) > MaxListTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("list title must be %d characters or less", MaxListTitleLength))
	}
	if utf8.RuneCountInString(l.Description) > MaxListDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxListDescriptionLength))
	}
	return nil
}
