package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/lunchbox/internal/service"
)

// ListHandler serves restaurant lists.
type ListHandler struct {
	lists  *service.ListService
	logger *slog.Logger
}

func NewListHandler(lists *service.ListService, logger *slog.Logger) *ListHandler {
	return &ListHandler{lists: lists, logger: logger}
}

type createListRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// HandleList returns every list, newest first. Lists are public.
//
// HTTP: GET /api/lists
func (h *ListHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	lists, err := h.lists.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

// HandleMine returns the signed-in user's lists.
//
// HTTP: GET /api/me/lists
func (h *ListHandler) HandleMine(w http.ResponseWriter, r *http.Request) {
	lists, err := h.lists.ListByCreator(r.Context(), viewerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

// HandleGet returns one list.
//
// HTTP: GET /api/lists/{id}
func (h *ListHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	list, err := h.lists.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleCreate makes a list owned by the caller.
//
// HTTP: POST /api/lists
// BODY: {"title":"Tacos","description":"..."}
func (h *ListHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createListRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	list, err := h.lists.Create(r.Context(), viewerID(r), req.Title, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

// HandleUpdate patches title and/or description. Owner only.
//
// HTTP: PATCH /api/lists/{id}
func (h *ListHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch service.ListPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}
	list, err := h.lists.Update(r.Context(), viewerID(r), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleDelete removes a list and everything in it. Owner only.
//
// HTTP: DELETE /api/lists/{id}
func (h *ListHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.lists.Delete(r.Context(), viewerID(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
