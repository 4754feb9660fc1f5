package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/lunchbox/internal/apperror"
	"github.com/sakif/lunchbox/internal/model"
)

const userColumns = `id, email, password_hash, name, username, github_id, created_at, updated_at`

// CreateUser inserts a new email/password account. ID and timestamps are
// assigned here. A duplicate email (case-insensitive) is ErrConflict.
func (s *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.Email = strings.TrimSpace(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		user.ID, user.Email, user.PasswordHash, user.Name, user.Username, user.GitHubID,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ConflictMessage("an account with this email already exists")
		}
		return classify("creating user", err)
	}
	return nil
}

// GetUserByID returns apperror.ErrNotFound if no user exists with that ID.
func (s *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, s.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		return nil, notFoundOr("user", id, "loading user", err)
	}
	return &u, nil
}

// GetUserByEmail matches case-insensitively.
func (s *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u,
		s.q(`SELECT `+userColumns+` FROM users WHERE LOWER(email) = ? AND email <> ''`),
		strings.ToLower(strings.TrimSpace(email)),
	)
	if err != nil {
		return nil, notFoundOr("user", email, "loading user", err)
	}
	return &u, nil
}

// UpsertGitHubUser keeps the internal ID stable across logins: look up by
// github_id first, UPDATE if found, INSERT otherwise.
func (s *DB) UpsertGitHubUser(ctx context.Context, user *model.User) (bool, error) {
	if user.GitHubID == nil {
		return false, apperror.ValidationFailed("githubId", "github id is required")
	}

	var existingID string
	err := s.db.GetContext(ctx, &existingID, s.q(`SELECT id FROM users WHERE github_id = ?`), *user.GitHubID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, classify("looking up github user", err)
	}

	now := time.Now().UTC()
	if existingID != "" {
		user.ID = existingID
		user.UpdatedAt = now
		_, err = s.db.ExecContext(ctx, s.q(
			`UPDATE users SET name = ?, username = ?, email = CASE WHEN ? <> '' THEN ? ELSE email END, updated_at = ?
			 WHERE id = ?`),
			user.Name, user.Username, user.Email, user.Email, user.UpdatedAt, user.ID,
		)
		if err != nil {
			return false, classify("updating github user", err)
		}
		if err := s.db.GetContext(ctx, user, s.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), user.ID); err != nil {
			return false, classify("reloading github user", err)
		}
		return false, nil
	}

	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	_, err = s.db.ExecContext(ctx, s.q(
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		user.ID, user.Email, user.PasswordHash, user.Name, user.Username, user.GitHubID,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, apperror.ConflictMessage("an account with this email already exists")
		}
		return false, classify("creating github user", err)
	}
	return true, nil
}
