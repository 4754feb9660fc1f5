package sqlstore

import (
	"context"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/lunchbox/internal/model"
)

const restaurantColumns = `id, list_id, created_by, name, rating, tags, address, hours, description,
	image_url, image_path, image_alt, website, maps_link, created_at, updated_at`

// CreateRestaurant inserts a restaurant. Tags are normalised by Tags.Value on
// the way in, so the column only ever holds the canonical JSON array.
// An unknown list_id is ErrNotFound (foreign key).
func (s *DB) CreateRestaurant(ctx context.Context, r *model.Restaurant) error {
	now := time.Now().UTC()
	r.ID = xid.New().String()
	r.Tags = model.NormalizeTags(r.Tags)
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO restaurants (`+restaurantColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.ListID, r.CreatedBy, r.Name, r.Rating, r.Tags, r.Address, r.Hours, r.Description,
		r.ImageURL, r.ImagePath, r.ImageAlt, r.Website, r.MapsLink, r.CreatedAt, r.UpdatedAt,
	)
	return classify("creating restaurant", err)
}

func (s *DB) GetRestaurant(ctx context.Context, id string) (*model.Restaurant, error) {
	var r model.Restaurant
	err := s.db.GetContext(ctx, &r, s.q(`SELECT `+restaurantColumns+` FROM restaurants WHERE id = ?`), id)
	if err != nil {
		return nil, notFoundOr("restaurant", id, "loading restaurant", err)
	}
	return &r, nil
}

// ListRestaurants returns a list's restaurants newest first. Filtering and
// re-sorting for display is done by the filter package, not in SQL.
func (s *DB) ListRestaurants(ctx context.Context, listID string) ([]model.Restaurant, error) {
	out := []model.Restaurant{}
	err := s.db.SelectContext(ctx, &out, s.q(
		`SELECT `+restaurantColumns+` FROM restaurants WHERE list_id = ? ORDER BY created_at DESC, id DESC`),
		listID,
	)
	if err != nil {
		return nil, classify("listing restaurants", err)
	}
	return out, nil
}

// UpdateRestaurant overwrites every mutable column. list_id and created_by
// never change after creation.
func (s *DB) UpdateRestaurant(ctx context.Context, r *model.Restaurant) error {
	r.Tags = model.NormalizeTags(r.Tags)
	r.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE restaurants SET
			name = ?, rating = ?, tags = ?, address = ?, hours = ?, description = ?,
			image_url = ?, image_path = ?, image_alt = ?, website = ?, maps_link = ?, updated_at = ?
		 WHERE id = ?`),
		r.Name, r.Rating, r.Tags, r.Address, r.Hours, r.Description,
		r.ImageURL, r.ImagePath, r.ImageAlt, r.Website, r.MapsLink, r.UpdatedAt, r.ID,
	)
	if err != nil {
		return classify("updating restaurant", err)
	}
	return requireAffected(res, "restaurant", r.ID)
}

func (s *DB) DeleteRestaurant(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM restaurants WHERE id = ?`), id)
	if err != nil {
		return classify("deleting restaurant", err)
	}
	return requireAffected(res, "restaurant", id)
}
