package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/lunchbox/internal/service"
)

type CommentHandler struct {
	comments *service.CommentService
	logger   *slog.Logger
}

func NewCommentHandler(comments *service.CommentService, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{comments: comments, logger: logger}
}

type postCommentRequest struct {
	Content string `json:"content"`
}

// HandleList returns a restaurant's comments, newest first, plus whether
// the caller may post.
//
// HTTP: GET /api/restaurants/{id}/comments
func (h *CommentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	thread, err := h.comments.List(r.Context(), viewerID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// HandlePost adds a comment. Only the restaurant's creator and their
// friends may post.
//
// HTTP: POST /api/restaurants/{id}/comments
// BODY: {"content":"great tacos"}
func (h *CommentHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	var req postCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.comments.Post(r.Context(), viewerID(r), r.PathValue("id"), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
