package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/sakif/lunchbox/internal/apperror"
	"github.com/sakif/lunchbox/internal/events"
	"github.com/sakif/lunchbox/internal/filter"
	"github.com/sakif/lunchbox/internal/metrics"
	"github.com/sakif/lunchbox/internal/model"
	"github.com/sakif/lunchbox/internal/policy"
	"github.com/sakif/lunchbox/internal/repository"
	"github.com/sakif/lunchbox/internal/storage"
)

const (
	MaxRestaurantNameLength = 200
	MaxRating               = 5.0

	// DefaultMaxImageBytes applies when the service is built with a zero limit.
	DefaultMaxImageBytes = 5 << 20
)

// RestaurantService manages the restaurants inside lists.
//
// PERMISSIONS (see internal/policy/authz.rego):
//   - add, edit: the list's creator
//   - delete:    the list's creator, or whoever added the restaurant
//
// IMAGES:
// An image is either a direct URL or an uploaded file. Uploads are checked
// in memory first (type, size), then written to object storage, then the
// row is written. If the row write fails, the uploaded object is deleted
// again; if even that fails the object is an orphan, and it is logged,
// counted and published so it can be cleaned up by hand.
type RestaurantService struct {
	lists       repository.ListRepository
	restaurants repository.RestaurantRepository
	images      storage.ImageStore
	authz       Authorizer
	events      *events.Emitter
	maxImage    int64
	logger      *slog.Logger
}

func NewRestaurantService(
	lists repository.ListRepository,
	restaurants repository.RestaurantRepository,
	images storage.ImageStore,
	authz Authorizer,
	emitter *events.Emitter,
	maxImageBytes int64,
	logger *slog.Logger,
) *RestaurantService {
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	return &RestaurantService{
		lists:       lists,
		restaurants: restaurants,
		images:      images,
		authz:       authz,
		events:      emitter,
		maxImage:    maxImageBytes,
		logger:      logger,
	}
}

// RestaurantInput is the payload for a new restaurant.
type RestaurantInput struct {
	Name        string     `json:"name"`
	Rating      *float64   `json:"rating"`
	Tags        model.Tags `json:"tags"`
	Address     string     `json:"address"`
	Hours       string     `json:"hours"`
	Description string     `json:"description"`
	ImageURL    string     `json:"imageUrl"`
	ImageAlt    string     `json:"imageAlt"`
	Website     string     `json:"website"`
	MapsLink    string     `json:"mapsLink"`
}

// RestaurantPatch is a partial update; nil fields are left alone.
// ClearRating removes the rating, RemoveImage drops the image.
type RestaurantPatch struct {
	Name        *string     `json:"name"`
	Rating      *float64    `json:"rating"`
	ClearRating bool        `json:"clearRating"`
	Tags        *model.Tags `json:"tags"`
	Address     *string     `json:"address"`
	Hours       *string     `json:"hours"`
	Description *string     `json:"description"`
	ImageURL    *string     `json:"imageUrl"`
	ImageAlt    *string     `json:"imageAlt"`
	RemoveImage bool        `json:"removeImage"`
	Website     *string     `json:"website"`
	MapsLink    *string     `json:"mapsLink"`
}

// ImageFile is an uploaded file as received from the client.
type ImageFile struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Create adds a restaurant to a list. img may be nil.
func (s *RestaurantService) Create(ctx context.Context, actorID, listID string, in RestaurantInput, img *ImageFile) (*model.Restaurant, error) {
	r := &model.Restaurant{
		ListID:      listID,
		CreatedBy:   actorID,
		Name:        strings.TrimSpace(in.Name),
		Rating:      in.Rating,
		Tags:        model.NormalizeTags(in.Tags),
		Address:     strings.TrimSpace(in.Address),
		Hours:       strings.TrimSpace(in.Hours),
		Description: strings.TrimSpace(in.Description),
		ImageURL:    strings.TrimSpace(in.ImageURL),
		ImageAlt:    strings.TrimSpace(in.ImageAlt),
		Website:     strings.TrimSpace(in.Website),
		MapsLink:    strings.TrimSpace(in.MapsLink),
	}
	if err := validateRestaurant(r, img != nil); err != nil {
		return nil, err
	}
	upload, err := s.inspect(img)
	if err != nil {
		return nil, err
	}

	list, err := s.lists.GetList(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("service/restaurant: fetching list %s: %w", listID, err)
	}
	facts := policy.Input{
		Action: policy.RestaurantCreate,
		Actor:  actorID,
		List:   &policy.ListFacts{CreatorID: list.CreatorID},
	}
	if err := authorize(ctx, s.authz, s.logger, facts, "only the list's creator can add restaurants"); err != nil {
		return nil, err
	}

	if upload != nil {
		stored, err := s.upload(ctx, upload)
		if err != nil {
			return nil, err
		}
		r.ImageURL, r.ImagePath = stored.URL, stored.Path
	}

	if err := s.restaurants.CreateRestaurant(ctx, r); err != nil {
		s.discardUpload(ctx, actorID, r.ImagePath)
		return nil, fmt.Errorf("service/restaurant: creating restaurant: %w", err)
	}

	s.logger.Info("restaurant created",
		slog.String("restaurantID", r.ID),
		slog.String("listID", listID),
		slog.String("actor", actorID),
	)
	return r, nil
}

// Get returns one restaurant.
func (s *RestaurantService) Get(ctx context.Context, id string) (*model.Restaurant, error) {
	r, err := s.restaurants.GetRestaurant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/restaurant: fetching %s: %w", id, err)
	}
	return r, nil
}

// ListForList returns the restaurants of a list, filtered and sorted.
func (s *RestaurantService) ListForList(ctx context.Context, listID string, opts filter.Options) ([]model.Restaurant, error) {
	if _, err := s.lists.GetList(ctx, listID); err != nil {
		return nil, fmt.Errorf("service/restaurant: fetching list %s: %w", listID, err)
	}
	all, err := s.restaurants.ListRestaurants(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("service/restaurant: listing restaurants of %s: %w", listID, err)
	}
	return filter.Apply(all, opts), nil
}

// Update applies a patch and optionally a new image. List creator only.
// The previous uploaded image is deleted once the row update succeeds.
func (s *RestaurantService) Update(ctx context.Context, actorID, id string, patch RestaurantPatch, img *ImageFile) (*model.Restaurant, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	list, err := s.lists.GetList(ctx, current.ListID)
	if err != nil {
		return nil, fmt.Errorf("service/restaurant: fetching list %s: %w", current.ListID, err)
	}
	in := policy.Input{
		Action:     policy.RestaurantUpdate,
		Actor:      actorID,
		List:       &policy.ListFacts{CreatorID: list.CreatorID},
		Restaurant: &policy.RestaurantFact{CreatedBy: current.CreatedBy},
	}
	if err := authorize(ctx, s.authz, s.logger, in, "only the list's creator can edit restaurants"); err != nil {
		return nil, err
	}

	next := *current
	applyPatch(&next, patch)
	if img != nil || patch.RemoveImage || (patch.ImageURL != nil && next.ImageURL != current.ImageURL) {
		// the stored object no longer backs the image URL
		next.ImagePath = ""
	}
	if err := validateRestaurant(&next, img != nil); err != nil {
		return nil, err
	}
	upload, err := s.inspect(img)
	if err != nil {
		return nil, err
	}
	if upload != nil {
		stored, err := s.upload(ctx, upload)
		if err != nil {
			return nil, err
		}
		next.ImageURL, next.ImagePath = stored.URL, stored.Path
	}

	if err := s.restaurants.UpdateRestaurant(ctx, &next); err != nil {
		if upload != nil {
			s.discardUpload(ctx, actorID, next.ImagePath)
		}
		return nil, fmt.Errorf("service/restaurant: updating %s: %w", id, err)
	}

	if current.ImagePath != "" && current.ImagePath != next.ImagePath {
		s.deleteImage(ctx, current.ImagePath)
	}
	return &next, nil
}

// Delete removes a restaurant and its comments. Allowed for the list's
// creator and for whoever added the restaurant.
func (s *RestaurantService) Delete(ctx context.Context, actorID, id string) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	list, err := s.lists.GetList(ctx, r.ListID)
	if err != nil {
		return fmt.Errorf("service/restaurant: fetching list %s: %w", r.ListID, err)
	}
	in := policy.Input{
		Action:     policy.RestaurantDelete,
		Actor:      actorID,
		List:       &policy.ListFacts{CreatorID: list.CreatorID},
		Restaurant: &policy.RestaurantFact{CreatedBy: r.CreatedBy},
	}
	if err := authorize(ctx, s.authz, s.logger, in, "only the list's creator or the person who added it can delete this restaurant"); err != nil {
		return err
	}

	if err := s.restaurants.DeleteRestaurant(ctx, id); err != nil {
		return fmt.Errorf("service/restaurant: deleting %s: %w", id, err)
	}
	if r.ImagePath != "" {
		s.deleteImage(ctx, r.ImagePath)
	}
	s.logger.Info("restaurant deleted", slog.String("restaurantID", id), slog.String("actor", actorID))
	return nil
}

func (s *RestaurantService) inspect(img *ImageFile) (*storage.Upload, error) {
	if img == nil {
		return nil, nil
	}
	u, err := storage.Inspect(img.Filename, img.ContentType, img.Body, s.maxImage)
	if err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			metrics.IncImageUpload(metrics.UploadRejected)
		}
		return nil, err
	}
	return u, nil
}

func (s *RestaurantService) upload(ctx context.Context, u *storage.Upload) (*storage.Stored, error) {
	stored, err := s.images.Upload(ctx, u)
	if err != nil {
		metrics.IncImageUpload(metrics.UploadFailed)
		s.logger.Error("image upload failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/restaurant: uploading image: %w", err)
	}
	metrics.IncImageUpload(metrics.UploadOK)
	return stored, nil
}

// discardUpload removes an object whose row write failed.
func (s *RestaurantService) discardUpload(ctx context.Context, actorID, path string) {
	if path == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := s.images.Delete(ctx, path); err != nil {
		metrics.IncOrphanedImage()
		s.logger.Error("orphaned image left in storage",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		s.events.Emit(ctx, events.ImageOrphaned, actorID, path, map[string]any{"error": err.Error()})
	}
}

// deleteImage removes an object no row refers to any more.
func (s *RestaurantService) deleteImage(ctx context.Context, path string) {
	if err := s.images.Delete(context.WithoutCancel(ctx), path); err != nil {
		s.logger.Error("image delete failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

func applyPatch(r *model.Restaurant, p RestaurantPatch) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&r.Name, p.Name)
	set(&r.Address, p.Address)
	set(&r.Hours, p.Hours)
	set(&r.Description, p.Description)
	set(&r.ImageURL, p.ImageURL)
	set(&r.ImageAlt, p.ImageAlt)
	set(&r.Website, p.Website)
	set(&r.MapsLink, p.MapsLink)

	switch {
	case p.ClearRating:
		r.Rating = nil
	case p.Rating != nil:
		v := *p.Rating
		r.Rating = &v
	}
	if p.Tags != nil {
		r.Tags = model.NormalizeTags(*p.Tags)
	}
	if p.RemoveImage {
		r.ImageURL = ""
		r.ImageAlt = ""
	}
}

// validateRestaurant checks a restaurant about to be written. hasUpload
// reports whether a file accompanies it, which also requires alt text.
func validateRestaurant(r *model.Restaurant, hasUpload bool) error {
	if r.Name == "" {
		return apperror.ValidationFailed("name", "restaurant name is required")
	}
	if utf8.RuneCountInString(r.Name) > MaxRestaurantNameLength {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("restaurant name must be %d characters or less", MaxRestaurantNameLength))
	}
	if r.Rating != nil && (math.IsNaN(*r.Rating) || math.IsInf(*r.Rating, 0) || *r.Rating < 0 || *r.Rating > MaxRating) {
		return apperror.ValidationFailed("rating", "rating must be between 0 and 5")
	}
	if (hasUpload || r.ImageURL != "") && r.ImageAlt == "" {
		return apperror.ValidationFailed("imageAlt", "alt text is required when an image is attached")
	}
	links := []struct{ field, value string }{
		{"imageUrl", r.ImageURL},
		{"website", r.Website},
		{"mapsLink", r.MapsLink},
	}
	for _, l := range links {
		if l.value != "" && !isHTTPURL(l.value) {
			return apperror.ValidationFailed(l.field, l.field+" must be an http or https URL")
		}
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
