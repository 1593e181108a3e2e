package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/Will-Jameson/portfolio-website/internal/auth"
	"github.com/Will-Jameson/portfolio-website/internal/blog"
	"github.com/Will-Jameson/portfolio-website/internal/clock"
	"github.com/Will-Jameson/portfolio-website/internal/middleware"
	"github.com/Will-Jameson/portfolio-website/internal/models"
)

// maxImportBytes bounds uploaded exports; posts live in a 5 MiB store.
const maxImportBytes = 8 << 20

type PostsHandler struct {
	store *blog.Store
	gate  *auth.Gate
	clock clock.Clock
}

type PostsResponse struct {
	Data  interface{} `json:"data"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
	Total int         `json:"total"`
}

type PublicStats struct {
	TotalPosts int `json:"totalPosts"`
}

func NewPostsHandler(store *blog.Store, gate *auth.Gate, clk clock.Clock) *PostsHandler {
	if clk == nil {
		clk = clock.System{}
	}
	return &PostsHandler{store: store, gate: gate, clock: clk}
}

// ListPublic pages through published posts, optionally within a category.
// An empty store is seeded first.
func (h *PostsHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if len(h.store.GetAllPosts(ctx)) == 0 {
		h.store.LoadFromFallback(ctx)
	}

	settings := h.store.GetSettings(ctx)
	page := parsePositiveInt(r.URL.Query().Get("page"), 1)
	limit := parsePositiveInt(r.URL.Query().Get("limit"), settings.PostsPerPage)
	if limit <= 0 {
		limit = models.DefaultSettings().PostsPerPage
	}
	if limit > 100 {
		limit = 100
	}

	var posts []models.Post
	if category := r.URL.Query().Get("category"); category != "" {
		posts = h.store.GetPostsByCategory(ctx, category)
	} else {
		posts = h.store.GetPublishedPosts(ctx)
	}

	respondJSON(w, http.StatusOK, PostsResponse{
		Data:  paginate(posts, page, limit),
		Page:  page,
		Limit: limit,
		Total: len(posts),
	})
}

// GetByID serves ?id=, which may be an id or a slug. Drafts are only
// visible to the logged-in admin.
func (h *PostsHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing id")
		return
	}
	post := h.store.GetPostByID(r.Context(), id)
	if post == nil || (!post.Published && !h.gate.Authenticate(r.Context(), middleware.SessionToken(r))) {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	respondJSON(w, http.StatusOK, post)
}

func (h *PostsHandler) Drafts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.GetDrafts(r.Context()))
}

// Save creates or updates a post (JSON body, partial fields allowed).
func (h *PostsHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req models.PostInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	isUpdate := false
	if req.ID != nil {
		existing := h.store.GetPostByID(r.Context(), *req.ID)
		isUpdate = existing != nil && existing.ID == *req.ID
	}

	saved, err := h.store.SavePost(r.Context(), req)
	if err != nil {
		respondStoreError(w, "failed to save post", err)
		return
	}
	status := http.StatusCreated
	if isUpdate {
		status = http.StatusOK
	}
	respondJSON(w, status, saved)
}

func (h *PostsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing id")
		return
	}
	deleted, err := h.store.DeletePost(r.Context(), id)
	if err != nil {
		respondStoreError(w, "failed to delete post", err)
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export downloads the whole collection as a timestamped JSON file.
func (h *PostsHandler) Export(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.ExportToJSON(r.Context())
	if err != nil {
		respondStoreError(w, "failed to export posts", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", blog.ExportFilename(h.clock.Now())))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}

// Import replaces every stored post with the uploaded export.
func (h *PostsHandler) Import(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "import file too large")
		return
	}
	n, err := h.store.ImportFromJSON(r.Context(), string(body))
	if err != nil {
		respondStoreError(w, "failed to import posts", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"imported": n})
}

func (h *PostsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.store.GetStorageStats(r.Context())
	respondJSON(w, http.StatusOK, PublicStats{TotalPosts: stats.PublishedPosts})
}

func (h *PostsHandler) Storage(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.GetStorageStats(r.Context()))
}

func (h *PostsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.GetSettings(r.Context()))
}

func (h *PostsHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	settings := h.store.GetSettings(r.Context())
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if settings.PostsPerPage <= 0 {
		respondError(w, http.StatusBadRequest, "postsPerPage must be positive")
		return
	}
	if err := h.store.SaveSettings(r.Context(), settings); err != nil {
		respondStoreError(w, "failed to save settings", err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func paginate(posts []models.Post, page, limit int) []models.Post {
	start := (page - 1) * limit
	if start >= len(posts) {
		return []models.Post{}
	}
	end := start + limit
	if end > len(posts) {
		end = len(posts)
	}
	return posts[start:end]
}

// respondStoreError maps content store errors onto statuses the editor can
// act on.
func respondStoreError(w http.ResponseWriter, fallback string, err error) {
	switch {
	case errors.Is(err, blog.ErrValidation), errors.Is(err, blog.ErrFormat):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, blog.ErrCapacity):
		respondError(w, http.StatusInsufficientStorage, blog.ErrCapacity.Error())
	default:
		log.Printf("[http] %s: %v", fallback, err)
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

func parsePositiveInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
