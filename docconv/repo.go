package docconv

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
)

// repoTextExts are file extensions pulled from a repository. Binary blobs
// are never fetched.
var repoTextExts = map[string]bool{
	".md": true, ".markdown": true, ".txt": true, ".rst": true,
	".go": true, ".py": true, ".js": true, ".ts": true, ".java": true,
	".rb": true, ".rs": true, ".c": true, ".h": true, ".cpp": true,
	".sh": true, ".yaml": true, ".yml": true, ".toml": true, ".json": true,
	".sql": true, ".proto": true, ".html": true, ".css": true,
}

// RepoConfig configures the repository source adapter.
type RepoConfig struct {
	// Token authenticates against the GitHub API. Empty = anonymous
	// (public repositories, low rate limit).
	Token string

	// MaxFiles caps how many files one conversion pulls. Default: 100.
	MaxFiles int

	// MaxFileBytes skips blobs larger than this. Default: 1MB.
	MaxFileBytes int64

	// BaseURL points at a GitHub Enterprise instance. Empty = github.com.
	BaseURL string
}

func (c *RepoConfig) defaults() {
	if c.MaxFiles <= 0 {
		c.MaxFiles = 100
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = 1 << 20
	}
}

// RepoClient pulls repository content as text through the GitHub API.
type RepoClient struct {
	cfg    RepoConfig
	client *github.Client
}

// NewRepoClient creates a repository adapter.
func NewRepoClient(ctx context.Context, cfg RepoConfig) (*RepoClient, error) {
	cfg.defaults()

	var httpClient *http.Client
	if cfg.Token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: cfg.Token},
		))
	}
	client := github.NewClient(httpClient)
	if cfg.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("repo: enterprise url: %w", err)
		}
	}
	return &RepoClient{cfg: cfg, client: client}, nil
}

// convertRepo pulls readme and text files from a repository and concatenates
// them with per-file markers. In.Name carries the locator:
// "repo://owner/name" or "owner/name".
func (r *Registry) convertRepo(ctx context.Context, in Input, _ Options) (*Result, error) {
	if r.cfg.Repo == nil {
		return nil, fmt.Errorf("%w: no repository client configured", ErrUnsupportedFormat)
	}

	owner, name, err := splitRepoLocator(in.Name)
	if err != nil {
		return nil, err
	}

	content, err := r.cfg.Repo.fetchAll(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("repo %s/%s: %w", owner, name, err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrNoTextExtracted
	}
	return &Result{
		Title:       owner + "/" + name,
		Content:     content,
		ChunkSource: "repo://" + owner + "/" + name,
	}, nil
}

func (rc *RepoClient) fetchAll(ctx context.Context, owner, name string) (string, error) {
	repo, _, err := rc.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return "", fmt.Errorf("get repository: %w", err)
	}
	branch := repo.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}

	tree, _, err := rc.client.Git.GetTree(ctx, owner, name, branch, true)
	if err != nil {
		return "", fmt.Errorf("get tree %s: %w", branch, err)
	}

	var sb strings.Builder
	fetched := 0
	for _, entry := range tree.Entries {
		if fetched >= rc.cfg.MaxFiles {
			break
		}
		if entry.GetType() != "blob" {
			continue
		}
		path := entry.GetPath()
		if !repoTextExts[strings.ToLower(filepath.Ext(path))] && !isReadme(path) {
			continue
		}
		if int64(entry.GetSize()) > rc.cfg.MaxFileBytes {
			continue
		}

		blob, _, err := rc.client.Git.GetBlobRaw(ctx, owner, name, entry.GetSHA())
		if err != nil {
			return "", fmt.Errorf("get blob %s: %w", path, err)
		}
		if !utf8.Valid(blob) {
			continue
		}

		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("=== " + path + " ===\n")
		sb.Write(blob)
		fetched++
	}
	return sb.String(), nil
}

func isReadme(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	return strings.HasPrefix(base, "readme")
}

// splitRepoLocator parses "repo://owner/name" or "owner/name".
func splitRepoLocator(locator string) (owner, name string, err error) {
	s := strings.TrimPrefix(locator, "repo://")
	s = strings.TrimSuffix(strings.TrimSpace(s), "/")
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: bad repository locator %q", ErrUnsupportedFormat, locator)
	}
	return parts[0], parts[1], nil
}
