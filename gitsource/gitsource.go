// Package gitsource reads the history of a file from a git repository so it
// can be replayed as document revisions.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var (
	ErrInvalidName = errors.New("invalid repository name")
	ErrNoHistory   = errors.New("file has no history")
)

// Revision is the content of a file as of one commit that changed it.
type Revision struct {
	Hash    string
	Author  string
	Message string
	When    time.Time
	Content string
}

type Source struct {
	repo *git.Repository
}

// Open reads the repository at path.
func Open(path string) (*Source, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}
	return &Source{repo: repo}, nil
}

// FileHistory returns path's content at every commit reachable from ref that
// changed it, oldest first. An empty ref means HEAD. A commit that deleted
// the file yields an empty Content.
func (s *Source) FileHistory(ref, path string) ([]Revision, error) {
	from, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	iter, err := s.repo.Log(&git.LogOptions{From: from, FileName: &path})
	if err != nil {
		return nil, fmt.Errorf("log %s: %w", path, err)
	}
	defer iter.Close()

	var revs []Revision
	err = iter.ForEach(func(c *object.Commit) error {
		content, err := fileContent(c, path)
		if err != nil {
			return err
		}
		revs = append(revs, Revision{
			Hash:    c.Hash.String(),
			Author:  c.Author.Name,
			Message: strings.TrimSpace(c.Message),
			When:    c.Author.When,
			Content: content,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, fmt.Errorf("%s at %q: %w", path, ref, ErrNoHistory)
	}
	// The log walks from the newest commit.
	for i, j := 0, len(revs)-1; i < j; i, j = i+1, j-1 {
		revs[i], revs[j] = revs[j], revs[i]
	}
	return revs, nil
}

func (s *Source) resolve(ref string) (plumbing.Hash, error) {
	if ref == "" {
		head, err := s.repo.Head()
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("resolve HEAD: %w", err)
		}
		return head.Hash(), nil
	}
	hash, err := s.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve %q: %w", ref, err)
	}
	return *hash, nil
}

func fileContent(c *object.Commit, path string) (string, error) {
	f, err := c.File(path)
	if errors.Is(err, object.ErrFileNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s at %s: %w", path, c.Hash, err)
	}
	return f.Contents()
}

// TextAt numbers history the way an imported document does: revision 0 is
// the empty text and revision v is the content after the v-th commit.
func TextAt(revs []Revision, version int) (string, error) {
	if version < 0 || version > len(revs) {
		return "", fmt.Errorf("revision %d outside 0..%d", version, len(revs))
	}
	if version == 0 {
		return "", nil
	}
	return revs[version-1].Content, nil
}

// Cache keeps clones of remote repositories under dir, one per org/repo.
type Cache struct {
	dir    string
	remote string

	mu sync.Mutex
}

// NewCache clones from remote, e.g. https://github.com, into dir.
func NewCache(dir, remote string) *Cache {
	return &Cache{dir: dir, remote: strings.TrimSuffix(remote, "/")}
}

// Open returns the cached clone of org/repo, cloning it on first use.
func (c *Cache) Open(ctx context.Context, org, repo string) (*Source, error) {
	if !validName(org) || !validName(repo) {
		return nil, fmt.Errorf("%q/%q: %w", org, repo, ErrInvalidName)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	path := filepath.Join(c.dir, org, repo)
	r, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		url := c.remote + "/" + org + "/" + repo
		log.Printf("gitsource: cloning %s into %s", url, path)
		r, err = git.PlainCloneContext(ctx, path, false, &git.CloneOptions{URL: url})
		if err != nil {
			return nil, fmt.Errorf("clone %s: %w", url, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open %s/%s: %w", org, repo, err)
	}
	return &Source{repo: r}, nil
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
