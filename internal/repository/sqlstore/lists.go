package sqlstore

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/rs/xid"

	"github.com/sakif/lunchbox/internal/model"
)

// listSelect selects lists with their derived restaurant count.
func (s *DB) listSelect() squirrel.SelectBuilder {
	return s.sb.Select(
		"l.id", "l.creator_id", "l.title", "l.description", "l.created_at", "l.updated_at",
		"(SELECT COUNT(*) FROM restaurants r WHERE r.list_id = l.id) AS restaurant_count",
	).From("lists l")
}

func (s *DB) CreateList(ctx context.Context, list *model.List) error {
	now := time.Now().UTC()
	list.ID = xid.New().String()
	list.RestaurantCount = 0
	list.CreatedAt = now
	list.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO lists (id, creator_id, title, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		list.ID, list.CreatorID, list.Title, list.Description, list.CreatedAt, list.UpdatedAt,
	)
	return classify("creating list", err)
}

func (s *DB) GetList(ctx context.Context, id string) (*model.List, error) {
	query, args, err := s.listSelect().Where(squirrel.Eq{"l.id": id}).ToSql()
	if err != nil {
		return nil, classify("building list query", err)
	}
	var l model.List
	if err := s.db.GetContext(ctx, &l, query, args...); err != nil {
		return nil, notFoundOr("list", id, "loading list", err)
	}
	return &l, nil
}

// ListLists returns lists newest first. An empty creatorID means all lists.
func (s *DB) ListLists(ctx context.Context, creatorID string) ([]model.List, error) {
	builder := s.listSelect().OrderBy("l.created_at DESC", "l.id DESC")
	if creatorID != "" {
		builder = builder.Where(squirrel.Eq{"l.creator_id": creatorID})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, classify("building lists query", err)
	}

	lists := []model.List{}
	if err := s.db.SelectContext(ctx, &lists, query, args...); err != nil {
		return nil, classify("listing lists", err)
	}
	return lists, nil
}

// UpdateList writes title and description. Last write wins.
func (s *DB) UpdateList(ctx context.Context, list *model.List) error {
	list.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE lists SET title = ?, description = ?, updated_at = ? WHERE id = ?`),
		list.Title, list.Description, list.UpdatedAt, list.ID,
	)
	if err != nil {
		return classify("updating list", err)
	}
	return requireAffected(res, "list", list.ID)
}

// DeleteList removes the list; restaurants and their comments go with it
// through ON DELETE CASCADE.
func (s *DB) DeleteList(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM lists WHERE id = ?`), id)
	if err != nil {
		return classify("deleting list", err)
	}
	return requireAffected(res, "list", id)
}
