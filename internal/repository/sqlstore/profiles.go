package sqlstore

import (
	"context"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/sakif/lunchbox/internal/apperror"
	"github.com/sakif/lunchbox/internal/model"
	"github.com/sakif/lunchbox/internal/repository"
)

// username is nullable so that many profiles can exist without one while
// the unique index still applies to the ones that have it.
var profileColumns = []string{
	"id", "COALESCE(username, '') AS username", "name", "email", "created_at", "updated_at",
}

// UpsertProfile creates the profile or updates username/name/email in place.
// created_at is preserved across updates. A username already taken by
// another profile (case-insensitive) is ErrConflict.
func (s *DB) UpsertProfile(ctx context.Context, p *model.Profile) error {
	now := time.Now().UTC()
	p.Username = strings.TrimSpace(p.Username)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO profiles (id, username, name, email, created_at, updated_at)
		 VALUES (?, NULLIF(?, ''), ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			username   = excluded.username,
			name       = excluded.name,
			email      = excluded.email,
			updated_at = excluded.updated_at`),
		p.ID, p.Username, p.Name, p.Email, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ConflictMessage("that username is already taken")
		}
		return classify("saving profile", err)
	}
	return nil
}

// GetProfile returns ErrNotFound when the user has never had a profile.
func (s *DB) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	query, args, err := s.sb.Select(profileColumns...).From("profiles").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, classify("building profile query", err)
	}
	var p model.Profile
	if err := s.db.GetContext(ctx, &p, query, args...); err != nil {
		return nil, notFoundOr("profile", id, "loading profile", err)
	}
	return &p, nil
}

// GetProfiles loads many profiles with one IN query. Missing ids are simply
// absent from the map.
func (s *DB) GetProfiles(ctx context.Context, ids []string) (map[string]model.Profile, error) {
	out := make(map[string]model.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := s.sb.Select(profileColumns...).From("profiles").Where(squirrel.Eq{"id": ids}).ToSql()
	if err != nil {
		return nil, classify("building profiles query", err)
	}
	var rows []model.Profile
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classify("loading profiles", err)
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

// SearchProfiles does a case-insensitive substring match on one column.
func (s *DB) SearchProfiles(ctx context.Context, search repository.ProfileSearch) ([]model.Profile, error) {
	column := "username"
	if search.By == repository.SearchByEmail {
		column = "email"
	}

	builder := s.sb.Select(profileColumns...).
		From("profiles").
		Where(squirrel.Expr("LOWER("+column+") LIKE ? ESCAPE '\\'", lowerLike(search.Query))).
		OrderBy(column, "id")
	if len(search.Exclude) > 0 {
		builder = builder.Where(squirrel.NotEq{"id": search.Exclude})
	}
	if search.Limit > 0 {
		builder = builder.Limit(uint64(search.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, classify("building search query", err)
	}
	profiles := []model.Profile{}
	if err := s.db.SelectContext(ctx, &profiles, query, args...); err != nil {
		return nil, classify("searching profiles", err)
	}
	return profiles, nil
}
