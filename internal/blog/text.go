package blog

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/Will-Jameson/portfolio-website/internal/models"
)

const (
	maxSlugLength  = 60
	excerptLength  = 150
	wordsPerMinute = 200
)

// Whitespace as browsers' regex engines see it, not only ASCII.
const spaceClass = `\s\v\x{00A0}\x{FEFF}\x{2028}\x{2029}\p{Zs}`

var (
	disallowedSlugChars = regexp.MustCompile(`[^\w` + spaceClass + `-]`)
	slugSpaces          = regexp.MustCompile(`[` + spaceClass + `]+`)
	repeatedHyphens     = regexp.MustCompile(`-+`)
)

// GenerateSlug derives the URL path segment for a title. The output feeds
// URLs, so it must not change between releases.
func GenerateSlug(title string) string {
	s := strings.TrimFunc(strings.ToLower(title), isSlugSpace)
	s = disallowedSlugChars.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	s = repeatedHyphens.ReplaceAllString(s, "-")
	if len(s) > maxSlugLength {
		s = s[:maxSlugLength]
	}
	return s
}

// isSlugSpace matches the runes of spaceClass. unicode.IsSpace misses the BOM.
func isSlugSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

func CalculateReadTime(content string) int {
	words := len(strings.Fields(stripMarkup(content)))
	minutes := (words + wordsPerMinute - 1) / wordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}

func GenerateExcerpt(content string) string {
	text := []rune(strings.TrimSpace(stripMarkup(content)))
	if len(text) <= excerptLength {
		return string(text)
	}
	return string(text[:excerptLength]) + "..."
}

// stripMarkup keeps only the text nodes of content, with entities decoded.
func stripMarkup(content string) string {
	z := html.NewTokenizer(strings.NewReader(content))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}

func newPostID(title string, createdAt int64) string {
	base := GenerateSlug(title)
	if base == "" {
		base = "post"
	}
	return base + "-" + strconv.FormatInt(createdAt, 36)
}

// uniquePostID bumps the time component of the id until no post in posts
// carries it.
func uniquePostID(posts []models.Post, title string, createdAt int64) string {
	taken := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		taken[p.ID] = struct{}{}
	}
	for ts := createdAt; ; ts++ {
		id := newPostID(title, ts)
		if _, ok := taken[id]; !ok {
			return id
		}
	}
}
