package blog

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

//go:embed seed/posts.json
var embeddedSeed []byte

// Seeder supplies the bootstrap document used when the store is empty.
type Seeder interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// NewSeeder picks a seed source: the bundled document for "", an HTTP
// fetch for http(s) URLs, a file read otherwise.
func NewSeeder(source string) Seeder {
	switch {
	case source == "":
		return EmbeddedSeed{}
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return HTTPSeed{URL: source}
	default:
		return FileSeed{Path: strings.TrimPrefix(source, "file://")}
	}
}

type EmbeddedSeed struct{}

func (EmbeddedSeed) Fetch(context.Context) ([]byte, error) {
	return embeddedSeed, nil
}

type FileSeed struct {
	Path string
}

func (f FileSeed) Fetch(context.Context) ([]byte, error) {
	return os.ReadFile(f.Path)
}

// HTTPSeed fetches the seed over HTTP. No timeout is set on the request;
// the caller's context bounds it.
type HTTPSeed struct {
	URL    string
	Client *http.Client
}

func (h HTTPSeed) Fetch(ctx context.Context) ([]byte, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch seed: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
