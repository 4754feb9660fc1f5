package service

// Authentication business logic.
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT)         ↘ ProfileService
//
// Two ways in: email + password, or GitHub OAuth. Both end the same way, with
// a profile for the user and a signed session token.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/sakif/lunchbox/internal/apperror"
	"github.com/sakif/lunchbox/internal/auth"
	"github.com/sakif/lunchbox/internal/events"
	"github.com/sakif/lunchbox/internal/model"
	"github.com/sakif/lunchbox/internal/repository"
)

// errBadCredentials is used for unknown email and wrong password alike, so a
// caller cannot probe which emails have accounts.
const errBadCredentials = "invalid email or password"

// AuthService handles sign-up, sign-in and sign-out.
//
// tokens is nil when no JWT secret is configured. Every method that would
// issue a session then returns a configuration error instead of panicking;
// the rest of the API keeps working read-only.
type AuthService struct {
	users     repository.UserRepository
	profiles  *ProfileService
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	events    *events.Emitter
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	profiles *ProfileService,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	emitter *events.Emitter,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		profiles:  profiles,
		tokens:    tokens,
		passwords: passwords,
		events:    emitter,
		logger:    logger,
	}
}

// AuthResult bundles the user and the issued JWT so the handler can set the
// cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// SignUpInput is the sign-up form.
type SignUpInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// SignUp creates an account and signs the user in.
//
// The profile is written after the account. If that write fails the error is
// logged and sign-up still succeeds: the profile is created lazily on the
// next sign-in.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (*AuthResult, error) {
	if err := s.requireTokens(); err != nil {
		return nil, err
	}

	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < auth.MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength))
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}
	username := strings.TrimSpace(in.Username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		Username:     username,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	if err := s.profiles.Upsert(ctx, profileFromUser(user)); err != nil {
		s.logger.Error("profile upsert failed during sign-up",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("user signed up", slog.String("userID", user.ID))
	s.events.Emit(ctx, events.UserSignedUp, user.ID, user.ID, map[string]any{"method": "password"})

	return s.issue(user)
}

// SignIn checks email + password and issues a session. The profile is
// created here if the user has none yet.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	if err := s.requireTokens(); err != nil {
		return nil, err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperror.Unauthenticated(errBadCredentials)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated(errBadCredentials)
		}
		return nil, fmt.Errorf("service/auth: fetching user: %w", err)
	}
	// GitHub-only accounts have no password.
	if user.PasswordHash == "" {
		return nil, apperror.Unauthenticated(errBadCredentials)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.Unauthenticated(errBadCredentials)
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	if _, err := s.profiles.ensure(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: ensuring profile: %w", err)
	}

	s.logger.Info("user signed in", slog.String("userID", user.ID))
	return s.issue(user)
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback: upsert the user
// by GitHub id, make sure a profile exists, issue a token.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if err := s.requireTokens(); err != nil {
		return nil, err
	}
	if gh == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	ghID := gh.ID
	user := &model.User{
		Email:    strings.ToLower(strings.TrimSpace(gh.Email)),
		Name:     gh.Name,
		Username: gh.Login,
		GitHubID: &ghID,
	}
	created, err := s.users.UpsertGitHubUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", gh.ID, err)
	}

	if _, err := s.profiles.ensure(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: ensuring profile: %w", err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", gh.Login),
	)
	if created {
		s.events.Emit(ctx, events.UserSignedUp, user.ID, user.ID, map[string]any{"method": "github"})
	}
	return s.issue(user)
}

// SignOut clears server-side state derived from the session. Tokens are
// stateless, so the handler clearing the cookie ends the session itself.
func (s *AuthService) SignOut(_ context.Context, userID string) {
	if userID == "" {
		return
	}
	s.profiles.Evict(userID)
	s.logger.Info("user signed out", slog.String("userID", userID))
}

// Me returns the signed-in user's profile, creating it if missing.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.Profile, error) {
	if userID == "" {
		return nil, apperror.Unauthenticated("sign in to continue")
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// token for a user that no longer exists
			return nil, apperror.Unauthenticated("session is no longer valid")
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	p, err := s.profiles.ensure(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("service/auth: ensuring profile: %w", err)
	}
	return p, nil
}

// TokenTTL is how long issued sessions last; the handler uses it for the
// cookie's Max-Age.
func (s *AuthService) TokenTTL() int {
	if s.tokens == nil {
		return 0
	}
	return int(s.tokens.TTL().Seconds())
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) requireTokens() error {
	if s.tokens == nil {
		return apperror.Configuration("authentication is not configured; set JWT_SECRET to enable sign-in")
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "email address is not valid")
	}
	return email, nil
}
