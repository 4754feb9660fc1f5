package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/lunchbox/internal/model"
	"github.com/sakif/lunchbox/internal/repository"
	"github.com/sakif/lunchbox/internal/service"
)

// FriendHandler serves the friend graph: search, requests, responses.
type FriendHandler struct {
	friends *service.FriendService
	logger  *slog.Logger
}

func NewFriendHandler(friends *service.FriendService, logger *slog.Logger) *FriendHandler {
	return &FriendHandler{friends: friends, logger: logger}
}

type sendRequestBody struct {
	AddresseeID string `json:"addresseeId"`
}

type respondBody struct {
	Status model.FriendStatus `json:"status"`
}

// HandleList returns friends, outgoing and incoming pending requests.
//
// HTTP: GET /api/friends
func (h *FriendHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	rel, err := h.friends.ListRelationships(r.Context(), viewerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

// HandleSearch finds people to befriend.
//
// HTTP: GET /api/friends/search?q=ali&by=username|email
func (h *FriendHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	results, err := h.friends.Search(r.Context(), viewerID(r), q.Get("q"), repository.SearchField(q.Get("by")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// HandleSend sends a friend request. If the addressee already asked the
// caller, the two become friends instead.
//
// HTTP: POST /api/friends/requests
// BODY: {"addresseeId":"..."}
func (h *FriendHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var body sendRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	req, err := h.friends.SendRequest(r.Context(), viewerID(r), body.AddresseeID)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if req.Status == model.FriendAccepted {
		status = http.StatusOK
	}
	writeJSON(w, status, req)
}

// HandleRespond accepts or declines a pending request addressed to the caller.
//
// HTTP: POST /api/friends/requests/{id}/respond
// BODY: {"status":"accepted"}
func (h *FriendHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	var body respondBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	req, err := h.friends.Respond(r.Context(), viewerID(r), r.PathValue("id"), body.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
