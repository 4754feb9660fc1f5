package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/lunchbox/internal/apperror"
	"github.com/sakif/lunchbox/internal/auth"
	"github.com/sakif/lunchbox/internal/model"
	"github.com/sakif/lunchbox/internal/policy"
	"github.com/sakif/lunchbox/internal/repository"
	"github.com/sakif/lunchbox/internal/storage"
)

// =========================================================================
// IN-MEMORY STORE
// =========================================================================
//
// fakeStore implements every repository interface with maps and slices.
// It follows the same error contract as sqlstore (ErrNotFound, ErrConflict,
// ErrInvalidState) so services see realistic failures. Set the *Err fields
// to simulate a store outage for one operation.

type fakeStore struct {
	mu    sync.Mutex
	seq   int
	clock time.Time

	users       map[string]*model.User
	profiles    map[string]model.Profile
	requests    []*model.FriendRequest
	lists       map[string]*model.List
	restaurants map[string]*model.Restaurant
	comments    []model.Comment

	profileReads     int
	upsertProfileErr error
	createRestErr    error
	updateRestErr    error
	createCommentErr error
}

var (
	_ repository.UserRepository          = (*fakeStore)(nil)
	_ repository.ProfileRepository       = (*fakeStore)(nil)
	_ repository.FriendRequestRepository = (*fakeStore)(nil)
	_ repository.ListRepository          = (*fakeStore)(nil)
	_ repository.RestaurantRepository    = (*fakeStore)(nil)
	_ repository.CommentRepository       = (*fakeStore)(nil)
)

func newFakeStore() *fakeStore {
	return &fakeStore{
		clock:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		users:       map[string]*model.User{},
		profiles:    map[string]model.Profile{},
		lists:       map[string]*model.List{},
		restaurants: map[string]*model.Restaurant{},
	}
}

// next returns a fresh id and a strictly increasing timestamp.
func (f *fakeStore) next(prefix string) (string, time.Time) {
	f.seq++
	f.clock = f.clock.Add(time.Second)
	return fmt.Sprintf("%s-%d", prefix, f.seq), f.clock
}

// ---- users ----

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return apperror.ConflictMessage("an account with this email already exists")
		}
	}
	u.ID, u.CreatedAt = f.next("user")
	u.UpdatedAt = u.CreatedAt
	stored := *u
	f.users[u.ID] = &stored
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	out := *u
	return &out, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			out := *u
			return &out, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeStore) UpsertGitHubUser(_ context.Context, u *model.User) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.GitHubID != nil && *existing.GitHubID == *u.GitHubID {
			_, now := f.next("tick")
			existing.Name, existing.Username, existing.UpdatedAt = u.Name, u.Username, now
			*u = *existing
			return false, nil
		}
	}
	u.ID, u.CreatedAt = f.next("user")
	u.UpdatedAt = u.CreatedAt
	stored := *u
	f.users[u.ID] = &stored
	return true, nil
}

// ---- profiles ----

func (f *fakeStore) UpsertProfile(_ context.Context, p *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertProfileErr != nil {
		return f.upsertProfileErr
	}
	if p.Username != "" {
		for id, other := range f.profiles {
			if id != p.ID && strings.EqualFold(other.Username, p.Username) {
				return apperror.ConflictMessage("that username is already taken")
			}
		}
	}
	if existing, ok := f.profiles[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		_, p.CreatedAt = f.next("tick")
	}
	p.UpdatedAt = p.CreatedAt
	f.profiles[p.ID] = *p
	return nil
}

func (f *fakeStore) GetProfile(_ context.Context, id string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileReads++
	p, ok := f.profiles[id]
	if !ok {
		return nil, apperror.NotFound("profile", id)
	}
	return &p, nil
}

func (f *fakeStore) GetProfiles(_ context.Context, ids []string) (map[string]model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileReads++
	out := map[string]model.Profile{}
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeStore) SearchProfiles(_ context.Context, q repository.ProfileSearch) ([]model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	excluded := map[string]bool{}
	for _, id := range q.Exclude {
		excluded[id] = true
	}
	needle := strings.ToLower(q.Query)
	var out []model.Profile
	for _, p := range f.profiles {
		field := p.Username
		if q.By == repository.SearchByEmail {
			field = p.Email
		}
		if excluded[p.ID] || !strings.Contains(strings.ToLower(field), needle) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// ---- friend requests ----

func (f *fakeStore) CreateFriendRequest(_ context.Context, r *model.FriendRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeBetween(r.RequesterID, r.AddresseeID) != nil {
		return apperror.ConflictMessage("a friend request already exists between these users")
	}
	r.ID, r.CreatedAt = f.next("req")
	r.UpdatedAt = r.CreatedAt
	r.Status = model.FriendPending
	stored := *r
	f.requests = append(f.requests, &stored)
	return nil
}

func (f *fakeStore) GetFriendRequest(_ context.Context, id string) (*model.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.ID == id {
			out := *r
			return &out, nil
		}
	}
	return nil, apperror.NotFound("friend request", id)
}

func (f *fakeStore) activeBetween(a, b string) *model.FriendRequest {
	for _, r := range f.requests {
		pair := (r.RequesterID == a && r.AddresseeID == b) || (r.RequesterID == b && r.AddresseeID == a)
		if pair && (r.Status == model.FriendPending || r.Status == model.FriendAccepted) {
			return r
		}
	}
	return nil
}

func (f *fakeStore) FindActiveBetween(_ context.Context, a, b string) (*model.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r := f.activeBetween(a, b); r != nil {
		out := *r
		return &out, nil
	}
	return nil, apperror.NotFound("friend request", a+"/"+b)
}

func (f *fakeStore) ListForUser(_ context.Context, userID string) ([]model.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.FriendRequest
	for i := len(f.requests) - 1; i >= 0; i-- {
		r := f.requests[i]
		if r.RequesterID == userID || r.AddresseeID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) TransitionFriendRequest(_ context.Context, id string, next model.FriendStatus) (*model.FriendRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.ID != id {
			continue
		}
		if r.Status != model.FriendPending {
			return nil, apperror.InvalidState("friend request is already " + string(r.Status))
		}
		r.Status = next
		_, r.UpdatedAt = f.next("tick")
		out := *r
		return &out, nil
	}
	return nil, apperror.NotFound("friend request", id)
}

// ---- lists ----

func (f *fakeStore) CreateList(_ context.Context, l *model.List) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l.ID, l.CreatedAt = f.next("list")
	l.UpdatedAt = l.CreatedAt
	stored := *l
	f.lists[l.ID] = &stored
	return nil
}

func (f *fakeStore) GetList(_ context.Context, id string) (*model.List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lists[id]
	if !ok {
		return nil, apperror.NotFound("list", id)
	}
	out := *l
	out.RestaurantCount = f.countRestaurants(id)
	return &out, nil
}

func (f *fakeStore) countRestaurants(listID string) int {
	n := 0
	for _, r := range f.restaurants {
		if r.ListID == listID {
			n++
		}
	}
	return n
}

func (f *fakeStore) ListLists(_ context.Context, creatorID string) ([]model.List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.List
	for _, l := range f.lists {
		if creatorID != "" && l.CreatorID != creatorID {
			continue
		}
		c := *l
		c.RestaurantCount = f.countRestaurants(l.ID)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) UpdateList(_ context.Context, l *model.List) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.lists[l.ID]; !ok {
		return apperror.NotFound("list", l.ID)
	}
	_, l.UpdatedAt = f.next("tick")
	stored := *l
	f.lists[l.ID] = &stored
	return nil
}

func (f *fakeStore) DeleteList(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.lists[id]; !ok {
		return apperror.NotFound("list", id)
	}
	delete(f.lists, id)
	for rid, r := range f.restaurants {
		if r.ListID == id {
			f.deleteRestaurant(rid)
		}
	}
	return nil
}

// ---- restaurants ----

func (f *fakeStore) CreateRestaurant(_ context.Context, r *model.Restaurant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createRestErr != nil {
		return f.createRestErr
	}
	if _, ok := f.lists[r.ListID]; !ok {
		return apperror.NotFound("list", r.ListID)
	}
	r.ID, r.CreatedAt = f.next("rest")
	r.UpdatedAt = r.CreatedAt
	r.Tags = model.NormalizeTags(r.Tags)
	stored := *r
	f.restaurants[r.ID] = &stored
	return nil
}

func (f *fakeStore) GetRestaurant(_ context.Context, id string) (*model.Restaurant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.restaurants[id]
	if !ok {
		return nil, apperror.NotFound("restaurant", id)
	}
	out := *r
	return &out, nil
}

func (f *fakeStore) ListRestaurants(_ context.Context, listID string) ([]model.Restaurant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Restaurant
	for _, r := range f.restaurants {
		if r.ListID == listID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) UpdateRestaurant(_ context.Context, r *model.Restaurant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateRestErr != nil {
		return f.updateRestErr
	}
	if _, ok := f.restaurants[r.ID]; !ok {
		return apperror.NotFound("restaurant", r.ID)
	}
	_, r.UpdatedAt = f.next("tick")
	stored := *r
	f.restaurants[r.ID] = &stored
	return nil
}

func (f *fakeStore) DeleteRestaurant(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.restaurants[id]; !ok {
		return apperror.NotFound("restaurant", id)
	}
	f.deleteRestaurant(id)
	return nil
}

func (f *fakeStore) deleteRestaurant(id string) {
	delete(f.restaurants, id)
	kept := f.comments[:0]
	for _, c := range f.comments {
		if c.RestaurantID != id {
			kept = append(kept, c)
		}
	}
	f.comments = kept
}

// ---- comments ----

func (f *fakeStore) CreateComment(_ context.Context, c *model.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createCommentErr != nil {
		return f.createCommentErr
	}
	c.ID, c.CreatedAt = f.next("comment")
	f.comments = append(f.comments, *c)
	return nil
}

func (f *fakeStore) ListComments(_ context.Context, restaurantID string) ([]model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Comment
	for i := len(f.comments) - 1; i >= 0; i-- {
		if f.comments[i].RestaurantID == restaurantID {
			out = append(out, f.comments[i])
		}
	}
	return out, nil
}

// =========================================================================
// IMAGE STORE
// =========================================================================

type fakeImages struct {
	uploads   []string
	deletes   []string
	uploadErr error
	deleteErr error
}

var _ storage.ImageStore = (*fakeImages)(nil)

func (f *fakeImages) Upload(_ context.Context, u *storage.Upload) (*storage.Stored, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	path := fmt.Sprintf("restaurants/img-%d.%s", len(f.uploads)+1, u.Ext)
	f.uploads = append(f.uploads, path)
	return &storage.Stored{URL: "https://cdn.test/" + path, Path: path}, nil
}

func (f *fakeImages) Delete(_ context.Context, path string) error {
	f.deletes = append(f.deletes, path)
	return f.deleteErr
}

// =========================================================================
// WIRING
// =========================================================================

type testEnv struct {
	store       *fakeStore
	images      *fakeImages
	profiles    *ProfileService
	auth        *AuthService
	friends     *FriendService
	lists       *ListService
	restaurants *RestaurantService
	comments    *CommentService
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	policyOnce   sync.Once
	sharedPolicy *policy.Engine
	policyErr    error
)

// testPolicy compiles the real Rego policy once per test binary.
func testPolicy(t *testing.T) *policy.Engine {
	t.Helper()
	policyOnce.Do(func() {
		sharedPolicy, policyErr = policy.New(context.Background())
	})
	if policyErr != nil {
		t.Fatalf("policy.New: %v", policyErr)
	}
	return sharedPolicy
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := testLogger()
	store := newFakeStore()
	images := &fakeImages{}
	authz := testPolicy(t)

	profiles, err := NewProfileService(store, authz, 16, logger)
	if err != nil {
		t.Fatalf("NewProfileService: %v", err)
	}
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	friends := NewFriendService(store, profiles, authz, nil, logger)

	return &testEnv{
		store:       store,
		images:      images,
		profiles:    profiles,
		auth:        NewAuthService(store, profiles, tokens, auth.NewPasswordServiceForTest(4), nil, logger),
		friends:     friends,
		lists:       NewListService(store, store, images, authz, nil, logger),
		restaurants: NewRestaurantService(store, store, images, authz, nil, 1<<20, logger),
		comments:    NewCommentService(store, store, friends, profiles, authz, nil, logger),
	}
}

// addUser creates a user with a profile and returns its id.
func (e *testEnv) addUser(t *testing.T, username string) string {
	t.Helper()
	res, err := e.auth.SignUp(context.Background(), SignUpInput{
		Email:    username + "@example.com",
		Password: "correct horse",
		Username: username,
	})
	if err != nil {
		t.Fatalf("SignUp(%s): %v", username, err)
	}
	return res.User.ID
}

// befriend makes a and b friends.
func (e *testEnv) befriend(t *testing.T, a, b string) {
	t.Helper()
	ctx := context.Background()
	req, err := e.friends.SendRequest(ctx, a, b)
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if _, err := e.friends.Respond(ctx, b, req.ID, model.FriendAccepted); err != nil {
		t.Fatalf("Respond: %v", err)
	}
}

func (e *testEnv) addList(t *testing.T, owner, title string) *model.List {
	t.Helper()
	l, err := e.lists.Create(context.Background(), owner, title, "")
	if err != nil {
		t.Fatalf("Create list: %v", err)
	}
	return l
}

func (e *testEnv) addRestaurant(t *testing.T, owner, listID, name string) *model.Restaurant {
	t.Helper()
	r, err := e.restaurants.Create(context.Background(), owner, listID, RestaurantInput{Name: name}, nil)
	if err != nil {
		t.Fatalf("Create restaurant: %v", err)
	}
	return r
}
