package gitsource

import (
	"context"
	"fmt"
	"time"

	"github.com/alimasry/typing-replay/replay"
	"github.com/alimasry/typing-replay/store"
)

// Imported pairs a commit with the document revision holding its content.
type Imported struct {
	Hash    string    `json:"hash"`
	Author  string    `json:"author"`
	Message string    `json:"message"`
	When    time.Time `json:"when"`
	Version int       `json:"version"`
}

// Import creates document id with empty content and commits every revision
// to it in order, so play{from, to} can replay any span of the history.
// A commit that leaves the text unchanged shares the previous version.
func Import(ctx context.Context, st store.DocumentStore, id string, revs []Revision, diff func(before, after string) replay.Sequence) ([]Imported, error) {
	if err := st.Create(ctx, id, ""); err != nil {
		return nil, err
	}
	out := make([]Imported, 0, len(revs))
	for _, rev := range revs {
		info, err := store.Commit(ctx, st, id, rev.Content, diff)
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", rev.Hash, err)
		}
		out = append(out, Imported{
			Hash:    rev.Hash,
			Author:  rev.Author,
			Message: rev.Message,
			When:    rev.When,
			Version: info.Version,
		})
	}
	return out, nil
}
