package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alimasry/typing-replay/replay"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrExists   = errors.New("document already exists")
	// ErrConflict reports an appended revision that does not directly follow
	// the stored history, usually because another writer got there first.
	ErrConflict = errors.New("revision conflict")
)

// DocumentInfo holds document metadata and its latest content.
type DocumentInfo struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DocumentStore persists documents and their revision history. Revision v of
// a document is reached by replaying the first v operations from its initial
// content; operation v-1 turns revision v-1 into revision v.
type DocumentStore interface {
	Create(ctx context.Context, id, content string) error
	Get(ctx context.Context, id string) (*DocumentInfo, error)
	List(ctx context.Context) ([]DocumentInfo, error)
	UpdateContent(ctx context.Context, id, content string, version int) error
	AppendOperation(ctx context.Context, id string, seq replay.Sequence, version int) error
	GetOperations(ctx context.Context, id string, fromVersion int) ([]replay.Sequence, error)
}

func notFound(id string) error { return fmt.Errorf("document %q: %w", id, ErrNotFound) }
func exists(id string) error   { return fmt.Errorf("document %q: %w", id, ErrExists) }

func conflict(id string, version, latest int) error {
	return fmt.Errorf("document %q: revision %d does not follow %d: %w", id, version, latest, ErrConflict)
}

// Commit records a new revision of id whose text is content. It diffs the
// current content against the new one with diff and stores the resulting
// sequence. A content identical to the current one creates no revision.
func Commit(ctx context.Context, st DocumentStore, id, content string, diff func(before, after string) replay.Sequence) (*DocumentInfo, error) {
	info, err := st.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if info.Content == content {
		return info, nil
	}
	seq := diff(info.Content, content)
	version := info.Version + 1
	// Operation first, so a crash between the writes leaves a replayable history.
	if err := st.AppendOperation(ctx, id, seq, version); err != nil {
		return nil, fmt.Errorf("append revision %d of %q: %w", version, id, err)
	}
	if err := st.UpdateContent(ctx, id, content, version); err != nil {
		return nil, fmt.Errorf("update content of %q: %w", id, err)
	}
	return st.Get(ctx, id)
}

// RevisionText returns the text of revision version of id.
func RevisionText(ctx context.Context, st DocumentStore, id string, version int) (string, error) {
	info, err := st.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if version < 0 || version > info.Version {
		return "", fmt.Errorf("document %q has no revision %d (latest %d)", id, version, info.Version)
	}
	if version == info.Version {
		return info.Content, nil
	}
	// Each stored sequence carries both sides of its diff.
	ops, err := st.GetOperations(ctx, id, version)
	if err != nil {
		return "", err
	}
	if len(ops) == 0 {
		return "", fmt.Errorf("document %q: history missing revision %d", id, version)
	}
	return ops[0].Before(), nil
}
