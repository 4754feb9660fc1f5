package sqlstore

import (
	"context"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/lunchbox/internal/model"
)

// CreateComment appends a comment. Comments are never updated.
func (s *DB) CreateComment(ctx context.Context, c *model.Comment) error {
	c.ID = xid.New().String()
	c.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO comments (id, restaurant_id, author_id, content, created_at) VALUES (?, ?, ?, ?, ?)`),
		c.ID, c.RestaurantID, c.AuthorID, c.Content, c.CreatedAt,
	)
	return classify("creating comment", err)
}

// ListComments returns a restaurant's comments newest first.
func (s *DB) ListComments(ctx context.Context, restaurantID string) ([]model.Comment, error) {
	out := []model.Comment{}
	err := s.db.SelectContext(ctx, &out, s.q(
		`SELECT id, restaurant_id, author_id, content, created_at FROM comments
		 WHERE restaurant_id = ? ORDER BY created_at DESC, id DESC`),
		restaurantID,
	)
	if err != nil {
		return nil, classify("listing comments", err)
	}
	return out, nil
}
