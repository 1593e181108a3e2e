package models

type Post struct {
	ID            string `json:"id"`
	Slug          string `json:"slug"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	Excerpt       string `json:"excerpt"`
	Category      string `json:"category"`
	FeaturedImage string `json:"featuredImage,omitempty"`
	// Published is false for drafts.
	Published bool   `json:"published"`
	Author    string `json:"author"`
	ReadTime  int    `json:"readTime"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// PostInput is a partial post used for upserts. Nil fields are left
// untouched on update and derived or defaulted on create.
type PostInput struct {
	ID            *string `json:"id,omitempty"`
	Slug          *string `json:"slug,omitempty"`
	Title         *string `json:"title,omitempty"`
	Content       *string `json:"content,omitempty"`
	Excerpt       *string `json:"excerpt,omitempty"`
	Category      *string `json:"category,omitempty"`
	FeaturedImage *string `json:"featuredImage,omitempty"`
	Published     *bool   `json:"published,omitempty"`
	Author        *string `json:"author,omitempty"`
	ReadTime      *int    `json:"readTime,omitempty"`
}

type Settings struct {
	AuthorName      string   `json:"authorName"`
	PostsPerPage    int      `json:"postsPerPage"`
	Categories      []string `json:"categories"`
	DefaultCategory string   `json:"defaultCategory"`
}

func DefaultSettings() Settings {
	return Settings{
		AuthorName:      "Admin",
		PostsPerPage:    10,
		Categories:      []string{"Technology", "Design", "Development", "Personal", "Tutorial"},
		DefaultCategory: "Technology",
	}
}

type StorageStats struct {
	TotalPosts     int     `json:"totalPosts"`
	PublishedPosts int     `json:"publishedPosts"`
	DraftPosts     int     `json:"draftPosts"`
	SizeInBytes    int     `json:"sizeInBytes"`
	SizeInKB       float64 `json:"sizeInKB"`
	SizeInMB       float64 `json:"sizeInMB"`
	PercentUsed    float64 `json:"percentUsed"`
}

// Session is the login record kept in one storage tier.
type Session struct {
	Authenticated bool  `json:"authenticated"`
	Timestamp     int64 `json:"timestamp"`
	ExpiresAt     int64 `json:"expiresAt"`
}
