package sqlstore

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/rs/xid"

	"github.com/sakif/lunchbox/internal/apperror"
	"github.com/sakif/lunchbox/internal/model"
)

const friendRequestColumns = `id, requester_id, addressee_id, status, created_at, updated_at`

// CreateFriendRequest inserts a pending request. The partial unique index on
// (user_low, user_high) rejects a second live request for the same pair no
// matter which direction it goes; that surfaces here as ErrConflict.
func (s *DB) CreateFriendRequest(ctx context.Context, req *model.FriendRequest) error {
	now := time.Now().UTC()
	req.ID = xid.New().String()
	req.Status = model.FriendPending
	req.CreatedAt = now
	req.UpdatedAt = now
	low, high := model.PairKey(req.RequesterID, req.AddresseeID)

	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO friend_requests (id, requester_id, addressee_id, user_low, user_high, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		req.ID, req.RequesterID, req.AddresseeID, low, high, req.Status, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ConflictMessage("a friend request between these users already exists")
		}
		return classify("creating friend request", err)
	}
	return nil
}

func (s *DB) GetFriendRequest(ctx context.Context, id string) (*model.FriendRequest, error) {
	var r model.FriendRequest
	err := s.db.GetContext(ctx, &r, s.q(`SELECT `+friendRequestColumns+` FROM friend_requests WHERE id = ?`), id)
	if err != nil {
		return nil, notFoundOr("friend request", id, "loading friend request", err)
	}
	return &r, nil
}

// FindActiveBetween uses the canonical pair columns, so direction does not matter.
func (s *DB) FindActiveBetween(ctx context.Context, a, b string) (*model.FriendRequest, error) {
	low, high := model.PairKey(a, b)
	query, args, err := s.sb.Select(friendRequestColumns).
		From("friend_requests").
		Where(squirrel.Eq{
			"user_low":  low,
			"user_high": high,
			"status":    []string{string(model.FriendPending), string(model.FriendAccepted)},
		}).
		OrderBy("created_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, classify("building friend request query", err)
	}

	var r model.FriendRequest
	if err := s.db.GetContext(ctx, &r, query, args...); err != nil {
		return nil, notFoundOr("friend request", a+"/"+b, "loading friend request", err)
	}
	return &r, nil
}

// ListForUser returns every request touching userID, newest first.
func (s *DB) ListForUser(ctx context.Context, userID string) ([]model.FriendRequest, error) {
	reqs := []model.FriendRequest{}
	err := s.db.SelectContext(ctx, &reqs, s.q(
		`SELECT `+friendRequestColumns+` FROM friend_requests
		 WHERE requester_id = ? OR addressee_id = ?
		 ORDER BY created_at DESC, id DESC`),
		userID, userID,
	)
	if err != nil {
		return nil, classify("listing friend requests", err)
	}
	return reqs, nil
}

// TransitionFriendRequest is a compare-and-set on status: the UPDATE only
// matches a pending row, so two concurrent responses cannot both win.
func (s *DB) TransitionFriendRequest(ctx context.Context, id string, next model.FriendStatus) (*model.FriendRequest, error) {
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE friend_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`),
		next, time.Now().UTC(), id, model.FriendPending,
	)
	if err != nil {
		return nil, classify("updating friend request", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, apperror.Transient("updating friend request", err)
	}

	current, err := s.GetFriendRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperror.InvalidState("friend request is already " + string(current.Status))
	}
	return current, nil
}
