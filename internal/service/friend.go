package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/lunchbox/internal/apperror"
	"github.com/sakif/lunchbox/internal/events"
	"github.com/sakif/lunchbox/internal/metrics"
	"github.com/sakif/lunchbox/internal/model"
	"github.com/sakif/lunchbox/internal/policy"
	"github.com/sakif/lunchbox/internal/repository"
)

// MaxSearchResults caps friend search.
const MaxSearchResults = 10

// FriendService is the friend relationship engine.
//
// STATE MACHINE:
//
//	pending ──Respond(accepted)──▶ accepted
//	        └─Respond(declined)──▶ declined
//
// accepted and declined are terminal. Only the addressee moves a request.
// Friendship is derived: a and b are friends iff an accepted request exists
// between them in either direction.
//
// ONE ACTIVE REQUEST PER PAIR:
// The store allows at most one pending-or-accepted request per unordered
// pair. If B already asked A and A now asks B, SendRequest accepts B's
// request instead of creating a second one. Declined requests stay as
// history and do not block a new request.
type FriendService struct {
	requests repository.FriendRequestRepository
	profiles *ProfileService
	authz    Authorizer
	events   *events.Emitter
	logger   *slog.Logger
}

func NewFriendService(
	requests repository.FriendRequestRepository,
	profiles *ProfileService,
	authz Authorizer,
	emitter *events.Emitter,
	logger *slog.Logger,
) *FriendService {
	return &FriendService{
		requests: requests,
		profiles: profiles,
		authz:    authz,
		events:   emitter,
		logger:   logger,
	}
}

// SendRequest asks addresseeID to be friends with requesterID.
func (s *FriendService) SendRequest(ctx context.Context, requesterID, addresseeID string) (*model.FriendRequest, error) {
	addresseeID = strings.TrimSpace(addresseeID)
	if requesterID == "" {
		return nil, apperror.Unauthenticated("sign in to send friend requests")
	}
	if addresseeID == "" {
		return nil, apperror.ValidationFailed("addresseeId", "addressee is required")
	}
	if addresseeID == requesterID {
		return nil, apperror.ValidationFailed("addresseeId", "you cannot send a friend request to yourself")
	}

	if _, err := s.profiles.Get(ctx, addresseeID); err != nil {
		return nil, err
	}

	existing, err := s.requests.FindActiveBetween(ctx, requesterID, addresseeID)
	switch {
	case err == nil:
		return s.resolveExisting(ctx, requesterID, existing)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/friend: checking existing request: %w", err)
	}

	req := &model.FriendRequest{RequesterID: requesterID, AddresseeID: addresseeID}
	if err := s.requests.CreateFriendRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("service/friend: creating request: %w", err)
	}

	metrics.IncFriendRequest(metrics.OutcomeSent)
	s.events.Emit(ctx, events.FriendRequestSent, requesterID, req.ID, map[string]any{"addressee_id": addresseeID})
	s.logger.Info("friend request sent",
		slog.String("requestID", req.ID),
		slog.String("requester", requesterID),
		slog.String("addressee", addresseeID),
	)
	return req, nil
}

// resolveExisting handles a SendRequest for a pair that already has an
// active request.
func (s *FriendService) resolveExisting(ctx context.Context, requesterID string, existing *model.FriendRequest) (*model.FriendRequest, error) {
	switch {
	case existing.Status == model.FriendAccepted:
		return nil, apperror.ConflictMessage("you are already friends")
	case existing.RequesterID == requesterID:
		return nil, apperror.ConflictMessage("friend request already sent")
	default:
		// the other side asked first: accept their request
		return s.transition(ctx, requesterID, existing, model.FriendAccepted)
	}
}

// Respond moves a pending request to accepted or declined.
func (s *FriendService) Respond(ctx context.Context, actorID, requestID string, next model.FriendStatus) (*model.FriendRequest, error) {
	if next != model.FriendAccepted && next != model.FriendDeclined {
		return nil, apperror.ValidationFailed("status", "status must be accepted or declined")
	}

	req, err := s.requests.GetFriendRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("service/friend: fetching request %s: %w", requestID, err)
	}

	in := policy.Input{Action: policy.FriendRespond, Actor: actorID, Target: req.AddresseeID}
	if err := authorize(ctx, s.authz, s.logger, in, "only the recipient can respond to a friend request"); err != nil {
		return nil, err
	}

	if req.Status.Terminal() {
		return nil, apperror.InvalidState(fmt.Sprintf("friend request is already %s", req.Status))
	}
	return s.transition(ctx, actorID, req, next)
}

func (s *FriendService) transition(ctx context.Context, actorID string, req *model.FriendRequest, next model.FriendStatus) (*model.FriendRequest, error) {
	// conditional on status = pending in the store, so a concurrent
	// response loses with ErrInvalidState
	updated, err := s.requests.TransitionFriendRequest(ctx, req.ID, next)
	if err != nil {
		return nil, fmt.Errorf("service/friend: updating request %s: %w", req.ID, err)
	}

	outcome, event := metrics.OutcomeDeclined, events.FriendRequestDeclined
	if next == model.FriendAccepted {
		outcome, event = metrics.OutcomeAccepted, events.FriendRequestAccepted
	}
	metrics.IncFriendRequest(outcome)
	s.events.Emit(ctx, event, actorID, updated.ID, map[string]any{
		"requester_id": updated.RequesterID,
		"addressee_id": updated.AddresseeID,
	})
	s.logger.Info("friend request "+string(next),
		slog.String("requestID", updated.ID),
		slog.String("actor", actorID),
	)
	return updated, nil
}

// ListRelationships returns the user's friends, outgoing pending requests
// and incoming pending requests, each newest first and hydrated with the
// other user's profile. Declined requests are not shown.
func (s *FriendService) ListRelationships(ctx context.Context, userID string) (*model.Relationships, error) {
	reqs, err := s.requests.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/friend: listing requests: %w", err)
	}

	ids := make([]string, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.Counterpart(userID))
	}
	profiles, err := s.profiles.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := &model.Relationships{
		Friends:  []model.Relationship{},
		Outgoing: []model.Relationship{},
		Incoming: []model.Relationship{},
	}
	seenFriend := make(map[string]bool)
	for _, r := range reqs {
		other := r.Counterpart(userID)
		p, ok := profiles[other]
		if !ok {
			p = model.Profile{ID: other}
		}
		rel := model.Relationship{Request: r, Profile: p}

		switch {
		case r.Status == model.FriendAccepted:
			if seenFriend[other] {
				continue
			}
			seenFriend[other] = true
			out.Friends = append(out.Friends, rel)
		case r.Status == model.FriendPending && r.RequesterID == userID:
			out.Outgoing = append(out.Outgoing, rel)
		case r.Status == model.FriendPending:
			out.Incoming = append(out.Incoming, rel)
		}
	}
	return out, nil
}

// Search finds users to befriend by username or email substring. The
// searching user and their existing friends are left out.
func (s *FriendService) Search(ctx context.Context, userID, query string, by repository.SearchField) ([]model.Profile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.ValidationFailed("q", "search query is required")
	}
	switch by {
	case "":
		by = repository.SearchByUsername
	case repository.SearchByUsername, repository.SearchByEmail:
	default:
		return nil, apperror.ValidationFailed("by", "search must be by username or email")
	}

	friends, err := s.friendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	exclude := append([]string{userID}, friends...)

	return s.profiles.Search(ctx, repository.ProfileSearch{
		Query:   query,
		By:      by,
		Exclude: exclude,
		Limit:   MaxSearchResults,
	})
}

// AreFriends is symmetric: AreFriends(a, b) == AreFriends(b, a).
func (s *FriendService) AreFriends(ctx context.Context, a, b string) (bool, error) {
	if a == "" || b == "" || a == b {
		return false, nil
	}
	req, err := s.requests.FindActiveBetween(ctx, a, b)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("service/friend: checking friendship: %w", err)
	}
	return req.Status == model.FriendAccepted, nil
}

func (s *FriendService) friendIDs(ctx context.Context, userID string) ([]string, error) {
	reqs, err := s.requests.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/friend: listing requests: %w", err)
	}
	var ids []string
	for _, r := range reqs {
		if r.Status == model.FriendAccepted {
			ids = append(ids, r.Counterpart(userID))
		}
	}
	return ids, nil
}
