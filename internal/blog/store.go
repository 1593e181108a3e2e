package blog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Will-Jameson/portfolio-website/internal/clock"
	"github.com/Will-Jameson/portfolio-website/internal/db"
	"github.com/Will-Jameson/portfolio-website/internal/models"
)

const (
	postsKey    = "blog_posts"
	settingsKey = "blog_settings"
)

var (
	ErrValidation = errors.New("invalid post")
	ErrFormat     = errors.New("invalid blog export format")
	// ErrCapacity is returned when the backing store is out of space.
	ErrCapacity = errors.New("storage is full: delete some posts or host large images externally instead of embedding them")
)

// Store owns the post collection, kept as one JSON array under postsKey.
// Read paths never fail: missing or corrupt data reads as empty.
type Store struct {
	// mu serialises read-modify-write cycles within this process. Other
	// processes sharing the backend still race, last write wins.
	mu      sync.Mutex
	backend db.Backend
	clock   clock.Clock
	seed    Seeder
}

func NewStore(backend db.Backend, clk clock.Clock, seed Seeder) *Store {
	if clk == nil {
		clk = clock.System{}
	}
	if seed == nil {
		seed = EmbeddedSeed{}
	}
	return &Store{backend: backend, clock: clk, seed: seed}
}

// load distinguishes a backend failure from absent or corrupt data, which
// both read as an empty collection.
func (s *Store) load(ctx context.Context) ([]models.Post, error) {
	raw, ok, err := s.backend.Get(ctx, postsKey)
	if err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}
	if !ok || raw == "" {
		return []models.Post{}, nil
	}
	var posts []models.Post
	if err := json.Unmarshal([]byte(raw), &posts); err != nil {
		log.Printf("[blog] stored posts are corrupt, treating as empty: %v", err)
		return []models.Post{}, nil
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return posts, nil
}

func (s *Store) persist(ctx context.Context, posts []models.Post) error {
	payload, err := json.Marshal(posts)
	if err != nil {
		return fmt.Errorf("encode posts: %w", err)
	}
	if err := s.backend.Set(ctx, postsKey, string(payload)); err != nil {
		if errors.Is(err, db.ErrQuotaExceeded) {
			return fmt.Errorf("%w: %w", ErrCapacity, err)
		}
		return fmt.Errorf("save posts: %w", err)
	}
	return nil
}

func (s *Store) GetAllPosts(ctx context.Context) []models.Post {
	posts, err := s.load(ctx)
	if err != nil {
		log.Printf("[blog] %v", err)
		return []models.Post{}
	}
	return posts
}

// GetPublishedPosts returns live posts, newest first.
func (s *Store) GetPublishedPosts(ctx context.Context) []models.Post {
	out := filterPosts(s.GetAllPosts(ctx), func(p models.Post) bool { return p.Published })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out
}

// GetDrafts returns unpublished posts, most recently edited first.
func (s *Store) GetDrafts(ctx context.Context) []models.Post {
	out := filterPosts(s.GetAllPosts(ctx), func(p models.Post) bool { return !p.Published })
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out
}

func (s *Store) GetPostsByCategory(ctx context.Context, category string) []models.Post {
	return filterPosts(s.GetPublishedPosts(ctx), func(p models.Post) bool { return p.Category == category })
}

// GetPostByID matches key against id or slug and returns nil when nothing
// matches.
func (s *Store) GetPostByID(ctx context.Context, key string) *models.Post {
	for _, p := range s.GetAllPosts(ctx) {
		if p.ID == key || p.Slug == key {
			post := p
			return &post
		}
	}
	return nil
}

// SavePost inserts in as a new post, or merges it over the existing post
// with the same id.
func (s *Store) SavePost(ctx context.Context, in models.PostInput) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := s.load(ctx)
	if err != nil {
		return models.Post{}, err
	}
	settings := s.GetSettings(ctx)
	now := s.clock.Now().UnixMilli()

	idx := -1
	if in.ID != nil && *in.ID != "" {
		idx = slices.IndexFunc(posts, func(p models.Post) bool { return p.ID == *in.ID })
	}

	var post models.Post
	if idx >= 0 {
		post = mergePost(posts[idx], in, settings, now)
	} else {
		post = newPost(in, settings, now)
		post.ID = uniquePostID(posts, post.Title, now)
	}
	if err := validatePost(post, in, settings); err != nil {
		return models.Post{}, err
	}

	if idx >= 0 {
		posts[idx] = post
	} else {
		posts = append(posts, post)
	}
	if err := s.persist(ctx, posts); err != nil {
		return models.Post{}, err
	}
	return post, nil
}

func newPost(in models.PostInput, settings models.Settings, now int64) models.Post {
	post := models.Post{CreatedAt: now, UpdatedAt: now}
	applyInput(&post, in)
	if post.Slug == "" {
		post.Slug = GenerateSlug(post.Title)
	}
	if in.Author == nil {
		post.Author = settings.AuthorName
	}
	if post.Category == "" {
		post.Category = settings.DefaultCategory
	}
	if post.Excerpt == "" {
		post.Excerpt = GenerateExcerpt(post.Content)
	}
	if post.ReadTime <= 0 {
		post.ReadTime = CalculateReadTime(post.Content)
	}
	return post
}

func mergePost(existing models.Post, in models.PostInput, settings models.Settings, now int64) models.Post {
	post := existing
	titleChanged := in.Title != nil && *in.Title != existing.Title
	contentChanged := in.Content != nil && *in.Content != existing.Content
	applyInput(&post, in)

	post.ID = existing.ID
	post.CreatedAt = existing.CreatedAt
	post.UpdatedAt = now
	if post.UpdatedAt <= existing.UpdatedAt {
		post.UpdatedAt = existing.UpdatedAt + 1
	}
	if titleChanged && in.Slug == nil {
		post.Slug = GenerateSlug(post.Title)
	}
	if contentChanged && in.Excerpt == nil {
		post.Excerpt = GenerateExcerpt(post.Content)
	}
	if contentChanged && in.ReadTime == nil {
		post.ReadTime = CalculateReadTime(post.Content)
	}
	if in.Author == nil {
		post.Author = settings.AuthorName
	}
	return post
}

func applyInput(post *models.Post, in models.PostInput) {
	if in.Slug != nil {
		post.Slug = *in.Slug
	}
	if in.Title != nil {
		post.Title = *in.Title
	}
	if in.Content != nil {
		post.Content = *in.Content
	}
	if in.Excerpt != nil {
		post.Excerpt = *in.Excerpt
	}
	if in.Category != nil {
		post.Category = *in.Category
	}
	if in.FeaturedImage != nil {
		post.FeaturedImage = *in.FeaturedImage
	}
	if in.Published != nil {
		post.Published = *in.Published
	}
	if in.Author != nil {
		post.Author = *in.Author
	}
	if in.ReadTime != nil {
		post.ReadTime = *in.ReadTime
	}
}

func validatePost(post models.Post, in models.PostInput, settings models.Settings) error {
	if strings.TrimSpace(post.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if post.Published && strings.TrimSpace(post.Content) == "" {
		return fmt.Errorf("%w: content is required to publish", ErrValidation)
	}
	if in.Category != nil && *in.Category != "" && len(settings.Categories) > 0 &&
		!slices.Contains(settings.Categories, *in.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, *in.Category)
	}
	return nil
}

// DeletePost reports false when no post has the given id.
func (s *Store) DeletePost(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	idx := slices.IndexFunc(posts, func(p models.Post) bool { return p.ID == id })
	if idx < 0 {
		return false, nil
	}
	posts = slices.Delete(posts, idx, idx+1)
	if err := s.persist(ctx, posts); err != nil {
		return false, err
	}
	return true, nil
}

type exportDocument struct {
	Posts []models.Post `json:"posts"`
}

// LoadFromFallback seeds an empty store from the configured seed and
// returns what is stored afterwards. Seed failures are the normal cold
// start path and yield an empty list.
func (s *Store) LoadFromFallback(ctx context.Context) []models.Post {
	existing, err := s.load(ctx)
	if err != nil {
		log.Printf("[blog] not seeding, stored posts unreadable: %v", err)
		return []models.Post{}
	}
	if len(existing) > 0 {
		return existing
	}
	payload, err := s.seed.Fetch(ctx)
	if err != nil {
		log.Printf("[blog] no seed data: %v", err)
		return []models.Post{}
	}
	var doc exportDocument
	if err := json.Unmarshal(payload, &doc); err != nil || doc.Posts == nil {
		log.Printf("[blog] seed data unreadable: %v", err)
		return []models.Post{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Posts may have been written while the seed was in flight.
	existing, err = s.load(ctx)
	if err != nil {
		log.Printf("[blog] not seeding, stored posts unreadable: %v", err)
		return []models.Post{}
	}
	if len(existing) > 0 {
		return existing
	}
	if err := s.persist(ctx, doc.Posts); err != nil {
		log.Printf("[blog] could not store seed data: %v", err)
	}
	return doc.Posts
}

func (s *Store) ExportToJSON(ctx context.Context) (string, error) {
	posts, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	payload, err := json.MarshalIndent(exportDocument{Posts: posts}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}
	return string(payload), nil
}

// ExportFilename names an export file after the moment it was taken.
func ExportFilename(at time.Time) string {
	return "blog-export-" + at.UTC().Format("2006-01-02-150405") + ".json"
}

// ImportFromJSON replaces the whole collection with the posts in data.
func (s *Store) ImportFromJSON(ctx context.Context, data string) (int, error) {
	var doc struct {
		Posts json.RawMessage `json:"posts"`
	}
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(doc.Posts) == 0 || string(doc.Posts) == "null" {
		return 0, fmt.Errorf("%w: missing posts array", ErrFormat)
	}
	var posts []models.Post
	if err := json.Unmarshal(doc.Posts, &posts); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(ctx, posts); err != nil {
		return 0, err
	}
	return len(posts), nil
}

// GetStorageStats measures the stored collection against the fixed 5 MiB
// ceiling, not the backend's real quota.
func (s *Store) GetStorageStats(ctx context.Context) models.StorageStats {
	posts := s.GetAllPosts(ctx)
	size := 0
	if raw, ok, err := s.backend.Get(ctx, postsKey); err == nil && ok {
		size = len(raw)
	}
	published := 0
	for _, p := range posts {
		if p.Published {
			published++
		}
	}
	return models.StorageStats{
		TotalPosts:     len(posts),
		PublishedPosts: published,
		DraftPosts:     len(posts) - published,
		SizeInBytes:    size,
		SizeInKB:       round2(float64(size) / 1024),
		SizeInMB:       round2(float64(size) / (1024 * 1024)),
		PercentUsed:    round2(float64(size) / db.DefaultQuota * 100),
	}
}

func (s *Store) GetSettings(ctx context.Context) models.Settings {
	raw, ok, err := s.backend.Get(ctx, settingsKey)
	if err != nil {
		log.Printf("[blog] load settings: %v", err)
		return models.DefaultSettings()
	}
	if !ok {
		return models.DefaultSettings()
	}
	settings := models.DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		log.Printf("[blog] stored settings are corrupt, using defaults: %v", err)
		return models.DefaultSettings()
	}
	return settings
}

func (s *Store) SaveSettings(ctx context.Context, settings models.Settings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.backend.Set(ctx, settingsKey, string(payload)); err != nil {
		if errors.Is(err, db.ErrQuotaExceeded) {
			return fmt.Errorf("%w: %w", ErrCapacity, err)
		}
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func filterPosts(posts []models.Post, keep func(models.Post) bool) []models.Post {
	out := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
