package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/lunchbox/internal/auth"
	"github.com/sakif/lunchbox/internal/config"
	"github.com/sakif/lunchbox/internal/handler"
	"github.com/sakif/lunchbox/internal/model"
	"github.com/sakif/lunchbox/internal/policy"
	"github.com/sakif/lunchbox/internal/repository/sqlstore"
	"github.com/sakif/lunchbox/internal/service"
	"github.com/sakif/lunchbox/internal/storage"
)

// =============================================================================
// Test environment
// =============================================================================

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// memImages is an in-memory ImageStore.
type memImages struct {
	mu      sync.Mutex
	uploads []string
	deletes []string
}

func (m *memImages) Upload(_ context.Context, u *storage.Upload) (*storage.Stored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path := "restaurants/" + strings.Repeat("x", len(m.uploads)+1) + "." + u.Ext
	m.uploads = append(m.uploads, path)
	return &storage.Stored{URL: "https://img.test/" + path, Path: path}, nil
}

func (m *memImages) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, path)
	return nil
}

type env struct {
	images      *memImages
	auth        *handler.AuthHandler
	profiles    *handler.ProfileHandler
	lists       *handler.ListHandler
	restaurants *handler.RestaurantHandler
	comments    *handler.CommentHandler
	friends     *handler.FriendHandler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := sqlstore.Open(ctx, config.DriverSQLite, ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	authz, err := policy.New(ctx)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	images := &memImages{}
	profileSvc, err := service.NewProfileService(store, authz, 16, logger)
	require.NoError(t, err)
	authSvc := service.NewAuthService(store, profileSvc, tokens, auth.NewPasswordServiceForTest(4), nil, logger)
	friendSvc := service.NewFriendService(store, profileSvc, authz, nil, logger)
	listSvc := service.NewListService(store, store, images, authz, nil, logger)
	restSvc := service.NewRestaurantService(store, store, images, authz, nil, 1<<20, logger)
	commentSvc := service.NewCommentService(store, store, friendSvc, profileSvc, authz, nil, logger)

	return &env{
		images:      images,
		auth:        handler.NewAuthHandler(authSvc, nil, false, logger),
		profiles:    handler.NewProfileHandler(authSvc, profileSvc, logger),
		lists:       handler.NewListHandler(listSvc, logger),
		restaurants: handler.NewRestaurantHandler(restSvc, 1<<20, logger),
		comments:    handler.NewCommentHandler(commentSvc, logger),
		friends:     handler.NewFriendHandler(friendSvc, logger),
	}
}

// call runs h with an optional signed-in user and path id.
func call(h http.HandlerFunc, method, target, userID, id string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if id != "" {
		req.SetPathValue("id", id)
	}
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func callJSON(h http.HandlerFunc, method, target, userID, id, body string) *httptest.ResponseRecorder {
	return call(h, method, target, userID, id, strings.NewReader(body), "application/json")
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

func (e *env) signUp(t *testing.T, username string) string {
	t.Helper()
	rr := callJSON(e.auth.HandleSignUp, http.MethodPost, "/auth/signup", "", "",
		`{"email":"`+username+`@example.com","password":"correct horse","username":"`+username+`"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	res := decode[struct {
		User  model.User `json:"user"`
		Token string     `json:"token"`
	}](t, rr)
	return res.User.ID
}

func (e *env) createList(t *testing.T, userID, title string) model.List {
	t.Helper()
	rr := callJSON(e.lists.HandleCreate, http.MethodPost, "/api/lists", userID, "", `{"title":"`+title+`"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[model.List](t, rr)
}

func (e *env) createRestaurant(t *testing.T, userID, listID, body string) model.Restaurant {
	t.Helper()
	rr := callJSON(e.restaurants.HandleCreate, http.MethodPost, "/api/lists/"+listID+"/restaurants", userID, listID, body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[model.Restaurant](t, rr)
}

func multipartBody(t *testing.T, fields map[string]string, filename string, file []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
		hdr.Set("Content-Type", "application/octet-stream")
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

// =============================================================================
// Auth
// =============================================================================

func TestAuthHandler_SignUpSetsCookie(t *testing.T) {
	e := newEnv(t)

	rr := callJSON(e.auth.HandleSignUp, http.MethodPost, "/auth/signup", "", "",
		`{"email":"Ana@Example.com","password":"correct horse","username":"ana"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "session cookie not set")
	assert.True(t, cookie.HttpOnly)
	assert.NotEmpty(t, cookie.Value)
	assert.NotContains(t, rr.Body.String(), "password")
}

func TestAuthHandler_SignUpDuplicateEmail(t *testing.T) {
	e := newEnv(t)
	e.signUp(t, "ana")

	rr := callJSON(e.auth.HandleSignUp, http.MethodPost, "/auth/signup", "", "",
		`{"email":"ana@example.com","password":"another one","username":"ana2"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "conflict", decode[handler.ErrorResponse](t, rr).Error)
}

func TestAuthHandler_SignIn(t *testing.T) {
	e := newEnv(t)
	e.signUp(t, "ana")

	t.Run("correct password", func(t *testing.T) {
		rr := callJSON(e.auth.HandleSignIn, http.MethodPost, "/auth/signin", "", "",
			`{"email":"ana@example.com","password":"correct horse"}`)
		assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	})

	t.Run("wrong password", func(t *testing.T) {
		rr := callJSON(e.auth.HandleSignIn, http.MethodPost, "/auth/signin", "", "",
			`{"email":"ana@example.com","password":"wrong horse"}`)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		rr := callJSON(e.auth.HandleSignIn, http.MethodPost, "/auth/signin", "", "",
			`{"email":"ana@example.com","pasword":"typo"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAuthHandler_SignOutClearsCookie(t *testing.T) {
	e := newEnv(t)
	rr := call(e.auth.HandleSignOut, http.MethodPost, "/auth/signout", "", "", nil, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestAuthHandler_GitHubNotConfigured(t *testing.T) {
	e := newEnv(t)
	rr := call(e.auth.HandleGitHubLogin, http.MethodGet, "/auth/github/login", "", "", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

// =============================================================================
// Profiles
// =============================================================================

func TestProfileHandler_MeAndUpdate(t *testing.T) {
	e := newEnv(t)
	ana := e.signUp(t, "ana")

	rr := call(e.profiles.HandleMe, http.MethodGet, "/api/me", ana, "", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ana", decode[model.Profile](t, rr).Username)

	rr = callJSON(e.profiles.HandleUpdateMe, http.MethodPatch, "/api/me", ana, "", `{"name":"Ana Lima"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Ana Lima", decode[model.Profile](t, rr).Name)

	rr = callJSON(e.profiles.HandleUpdateMe, http.MethodPatch, "/api/me", ana, "", `{"username":"has space"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(e.profiles.HandleGet, http.MethodGet, "/api/profiles/"+ana, "", ana, nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = call(e.profiles.HandleGet, http.MethodGet, "/api/profiles/nope", "", "nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// =============================================================================
// Lists
// =============================================================================

func TestListHandler_Lifecycle(t *testing.T) {
	e := newEnv(t)
	ana := e.signUp(t, "ana")
	bo := e.signUp(t, "bo")

	list := e.createList(t, ana, "Tacos")
	assert.Equal(t, ana, list.CreatorID)

	rr := callJSON(e.lists.HandleCreate, http.MethodPost, "/api/lists", ana, "", `{"title":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(e.lists.HandleList, http.MethodGet, "/api/lists", "", "", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.List](t, rr), 1)

	rr = call(e.lists.HandleMine, http.MethodGet, "/api/me/lists", bo, "", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]model.List](t, rr))

	rr = callJSON(e.lists.HandleUpdate, http.MethodPatch, "/api/lists/"+list.ID, bo, list.ID, `{"title":"Mine now"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = callJSON(e.lists.HandleUpdate, http.MethodPatch, "/api/lists/"+list.ID, ana, list.ID, `{"title":"Best Tacos"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Best Tacos", decode[model.List](t, rr).Title)

	rr = call(e.lists.HandleDelete, http.MethodDelete, "/api/lists/"+list.ID, bo, list.ID, nil, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = call(e.lists.HandleDelete, http.MethodDelete, "/api/lists/"+list.ID, ana, list.ID, nil, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = call(e.lists.HandleGet, http.MethodGet, "/api/lists/"+list.ID, "", list.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// =============================================================================
// Restaurants
// =============================================================================

func TestRestaurantHandler_FilterAndSort(t *testing.T) {
	e := newEnv(t)
	ana := e.signUp(t, "ana")
	list := e.createList(t, ana, "Dinner")

	e.createRestaurant(t, ana, list.ID, `{"name":"Taqueria","rating":4.5,"tags":["Mexican","Cheap"]}`)
	e.createRestaurant(t, ana, list.ID, `{"name":"burger barn","rating":3,"tags":["American"]}`)
	e.createRestaurant(t, ana, list.ID, `{"name":"Casa Azul","rating":5,"tags":["Mexican"]}`)

	get := func(query string) *httptest.ResponseRecorder {
		return call(e.restaurants.HandleListForList, http.MethodGet,
			"/api/lists/"+list.ID+"/restaurants"+query, "", list.ID, nil, "")
	}
	names := func(rr *httptest.ResponseRecorder) []string {
		var out []string
		for _, r := range decode[[]model.Restaurant](t, rr) {
			out = append(out, r.Name)
		}
		return out
	}

	rr := get("?tag=Mexican&sort=rating")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"Casa Azul", "Taqueria"}, names(rr))

	rr = get("?sort=name")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"burger barn", "Casa Azul", "Taqueria"}, names(rr))

	rr = get("?minRating=4.5&q=TAQ")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"Taqueria"}, names(rr))

	assert.Equal(t, http.StatusBadRequest, get("?minRating=9").Code)
	assert.Equal(t, http.StatusBadRequest, get("?sort=price").Code)

	rr = call(e.restaurants.HandleListForList, http.MethodGet, "/api/lists/missing/restaurants", "", "missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRestaurantHandler_CreateValidation(t *testing.T) {
	e := newEnv(t)
	ana := e.signUp(t, "ana")
	bo := e.signUp(t, "bo")
	list := e.createList(t, ana, "Dinner")
	path := "/api/lists/" + list.ID + "/restaurants"

	tests := []struct {
		name   string
		user   string
		body   string
		status int
	}{
		{"missing name", ana, `{"rating":3}`, http.StatusBadRequest},
		{"rating too high", ana, `{"name":"X","rating":6}`, http.StatusBadRequest},
		{"bad website", ana, `{"name":"X","website":"ftp://x"}`, http.StatusBadRequest},
		{"not the owner", bo, `{"name":"X"}`, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := callJSON(e.restaurants.HandleCreate, http.MethodPost, path, tt.user, list.ID, tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
		})
	}
}

func TestRestaurantHandler_MultipartUpload(t *testing.T) {
	e := newEnv(t)
	ana := e.signUp(t, "ana")
	list := e.createList(t, ana, "Dinner")
	path := "/api/lists/" + list.ID + "/restaurants"

	t.Run("png is stored", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"name": "Casa Azul", "rating": "4", "tags": "Mexican, Cheap ,Mexican", "imageAlt": "Blue storefront"}, "front.png", pngBytes)
		rr := call(e.restaurants.HandleCreate, http.MethodPost, path, ana, list.ID, body, ct)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		r := decode[model.Restaurant](t, rr)
		assert.True(t, strings.HasPrefix(r.ImageURL, "https://img.test/"), r.ImageURL)
		assert.Equal(t, model.Tags{"Mexican", "Cheap"}, r.Tags)
		require.NotNil(t, r.Rating)
		assert.Equal(t, 4.0, *r.Rating)
	})

	t.Run("gif is rejected before upload", func(t *testing.T) {
		before := len(e.images.uploads)
		body, ct := multipartBody(t, map[string]string{"name": "Gif Place", "imageAlt": "A cat"}, "cat.gif", []byte("GIF89a...."))
		rr := call(e.restaurants.HandleCreate, http.MethodPost, path, ana, list.ID, body, ct)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "image", decode[handler.ErrorResponse](t, rr).Field)
		assert.Len(t, e.images.uploads, before)
	})

	t.Run("image without alt text", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"name": "No Alt"}, "front.png", pngBytes)
		rr := call(e.restaurants.HandleCreate, http.MethodPost, path, ana, list.ID, body, ct)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "imageAlt", decode[handler.ErrorResponse](t, rr).Field)
	})

	t.Run("no image part", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"name": "Plain"}, "", nil)
		rr := call(e.restaurants.HandleCreate, http.MethodPost, path, ana, list.ID, body, ct)
		assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	})

	t.Run("non-numeric rating", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"name": "X", "rating": "great"}, "", nil)
		rr := call(e.restaurants.HandleCreate, http.MethodPost, path, ana, list.ID, body, ct)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("NaN rating", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"name": "X", "rating": "NaN"}, "", nil)
		rr := call(e.restaurants.HandleCreate, http.MethodPost, path, ana, list.ID, body, ct)
		require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		assert.Contains(t, rr.Body.String(), `"field":"rating"`)
	})
}

func TestRestaurantHandler_UpdateAndDelete(t *testing.T) {
	e := newEnv(t)
	ana := e.signUp(t, "ana")
	bo := e.signUp(t, "bo")
	list := e.createList(t, ana, "Dinner")
	r := e.createRestaurant(t, ana, list.ID, `{"name":"Casa","rating":3}`)

	rr := callJSON(e.restaurants.HandleUpdate, http.MethodPatch, "/api/restaurants/"+r.ID, ana, r.ID, `{"clearRating":true,"hours":"9-5"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[model.Restaurant](t, rr)
	assert.Nil(t, updated.Rating)
	assert.Equal(t, "9-5", updated.Hours)
	assert.Equal(t, "Casa", updated.Name)

	// multipart patch: absent fields are untouched
	body, ct := multipartBody(t, map[string]string{"rating": "5", "imageAlt": "Front door"}, "new.png", pngBytes)
	rr = call(e.restaurants.HandleUpdate, http.MethodPatch, "/api/restaurants/"+r.ID, ana, r.ID, body, ct)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated = decode[model.Restaurant](t, rr)
	require.NotNil(t, updated.Rating)
	assert.Equal(t, 5.0, *updated.Rating)
	assert.Equal(t, "9-5", updated.Hours)
	assert.NotEmpty(t, updated.ImageURL)

	rr = call(e.restaurants.HandleDelete, http.MethodDelete, "/api/restaurants/"+r.ID, bo, r.ID, nil, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = call(e.restaurants.HandleDelete, http.MethodDelete, "/api/restaurants/"+r.ID, ana, r.ID, nil, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.NotEmpty(t, e.images.deletes, "uploaded image should be removed with the restaurant")

	rr = call(e.restaurants.HandleGet, http.MethodGet, "/api/restaurants/"+r.ID, "", r.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// =============================================================================
// Friends + comments
// =============================================================================

func TestFriendAndCommentFlow(t *testing.T) {
	e := newEnv(t)
	ana := e.signUp(t, "ana")
	bo := e.signUp(t, "bo")
	cy := e.signUp(t, "cy")

	list := e.createList(t, ana, "Dinner")
	r := e.createRestaurant(t, ana, list.ID, `{"name":"Casa"}`)
	commentsPath := "/api/restaurants/" + r.ID + "/comments"

	// bo is a stranger: cannot comment
	rr := callJSON(e.comments.HandlePost, http.MethodPost, commentsPath, bo, r.ID, `{"content":"hi"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// search finds bo by username, never ana herself
	rr = call(e.friends.HandleSearch, http.MethodGet, "/api/friends/search?q=b&by=username", ana, "", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	found := decode[[]model.Profile](t, rr)
	require.Len(t, found, 1)
	assert.Equal(t, bo, found[0].ID)

	rr = call(e.friends.HandleSearch, http.MethodGet, "/api/friends/search?q=", ana, "", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// ana -> bo
	rr = callJSON(e.friends.HandleSend, http.MethodPost, "/api/friends/requests", ana, "", `{"addresseeId":"`+bo+`"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	req := decode[model.FriendRequest](t, rr)
	assert.Equal(t, model.FriendPending, req.Status)

	rr = callJSON(e.friends.HandleSend, http.MethodPost, "/api/friends/requests", ana, "", `{"addresseeId":"`+bo+`"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = callJSON(e.friends.HandleSend, http.MethodPost, "/api/friends/requests", ana, "", `{"addresseeId":"`+ana+`"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// only the addressee may respond
	respondPath := "/api/friends/requests/" + req.ID + "/respond"
	rr = callJSON(e.friends.HandleRespond, http.MethodPost, respondPath, ana, req.ID, `{"status":"accepted"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = callJSON(e.friends.HandleRespond, http.MethodPost, respondPath, bo, req.ID, `{"status":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = callJSON(e.friends.HandleRespond, http.MethodPost, respondPath, bo, req.ID, `{"status":"accepted"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = callJSON(e.friends.HandleRespond, http.MethodPost, respondPath, bo, req.ID, `{"status":"declined"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "invalid_state", decode[handler.ErrorResponse](t, rr).Error)

	rr = call(e.friends.HandleList, http.MethodGet, "/api/friends", bo, "", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	rel := decode[model.Relationships](t, rr)
	require.Len(t, rel.Friends, 1)
	assert.Equal(t, ana, rel.Friends[0].Profile.ID)
	assert.Empty(t, rel.Incoming)

	// now bo can comment; cy still cannot
	rr = callJSON(e.comments.HandlePost, http.MethodPost, commentsPath, bo, r.ID, `{"content":"  love it  "}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "love it", decode[model.Comment](t, rr).Content)

	rr = callJSON(e.comments.HandlePost, http.MethodPost, commentsPath, cy, r.ID, `{"content":"me too"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = callJSON(e.comments.HandlePost, http.MethodPost, commentsPath, bo, r.ID, `{"content":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// anyone can read; canWrite depends on the viewer
	thread := func(viewer string) service.Thread {
		rr := call(e.comments.HandleList, http.MethodGet, commentsPath, viewer, r.ID, nil, "")
		require.Equal(t, http.StatusOK, rr.Code)
		return decode[service.Thread](t, rr)
	}
	anon := thread("")
	require.Len(t, anon.Comments, 1)
	require.NotNil(t, anon.Comments[0].Author)
	assert.Equal(t, "bo", anon.Comments[0].Author.Username)
	assert.False(t, anon.CanWrite)
	assert.True(t, thread(ana).CanWrite)
	assert.True(t, thread(bo).CanWrite)
	assert.False(t, thread(cy).CanWrite)
}
