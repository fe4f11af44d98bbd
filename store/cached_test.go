package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commitTo appends revision version turning before into after, as Commit does.
func commitTo(t *testing.T, st DocumentStore, id, before, after string, version int) {
	t.Helper()
	require.NoError(t, st.AppendOperation(ctx(), id, seqOf(before, after), version))
	require.NoError(t, st.UpdateContent(ctx(), id, after, version))
}

func TestCachedStore_ReadThrough(t *testing.T) {
	backing := NewMemoryStore()
	require.NoError(t, backing.Create(ctx(), "doc1", "hello"))
	commitTo(t, backing, "doc1", "hello", "hello world", 1)

	cs := NewCachedStore(backing, time.Hour)
	defer cs.Close()

	info, err := cs.Get(ctx(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, "hello world", info.Content)
	assert.Equal(t, 1, info.Version)

	ops, err := cs.GetOperations(ctx(), "doc1", 0)
	require.NoError(t, err)
	assert.Len(t, ops, 1)
}

func TestCachedStore_WriteBehind(t *testing.T) {
	backing := NewMemoryStore()
	cs := NewCachedStore(backing, 20*time.Millisecond)
	defer cs.Close()

	require.NoError(t, cs.Create(ctx(), "doc1", "hello"))

	_, err := backing.Get(ctx(), "doc1")
	require.ErrorIs(t, err, ErrNotFound, "backing has the document before a flush")

	require.Eventually(t, func() bool {
		info, err := backing.Get(ctx(), "doc1")
		return err == nil && info.Content == "hello"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCachedStore_OperationFlushTracking(t *testing.T) {
	backing := NewMemoryStore()
	cs := NewCachedStore(backing, 20*time.Millisecond)
	defer cs.Close()

	require.NoError(t, cs.Create(ctx(), "doc1", "r0"))
	texts := []string{"r0", "r1", "r2", "r3", "r4", "r5"}
	for v := 1; v <= 3; v++ {
		commitTo(t, cs, "doc1", texts[v-1], texts[v], v)
	}

	flushedOps := func(n int) func() bool {
		return func() bool {
			ops, err := backing.GetOperations(ctx(), "doc1", 0)
			return err == nil && len(ops) == n
		}
	}
	require.Eventually(t, flushedOps(3), 2*time.Second, 10*time.Millisecond)

	for v := 4; v <= 5; v++ {
		commitTo(t, cs, "doc1", texts[v-1], texts[v], v)
	}
	require.Eventually(t, flushedOps(5), 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		info, err := backing.Get(ctx(), "doc1")
		return err == nil && info.Content == "r5" && info.Version == 5
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCachedStore_CloseFlushes(t *testing.T) {
	backing := NewMemoryStore()
	cs := NewCachedStore(backing, time.Hour)

	require.NoError(t, cs.Create(ctx(), "doc1", "hello"))
	commitTo(t, cs, "doc1", "hello", "hello world", 1)
	cs.Close()

	info, err := backing.Get(ctx(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, "hello world", info.Content)
	assert.Equal(t, 1, info.Version)

	ops, err := backing.GetOperations(ctx(), "doc1", 0)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "hello", ops[0].Before())
}

func TestCachedStore_PreloadedDocNoDuplicates(t *testing.T) {
	backing := NewMemoryStore()
	require.NoError(t, backing.Create(ctx(), "doc1", "a"))
	commitTo(t, backing, "doc1", "a", "ab", 1)
	commitTo(t, backing, "doc1", "ab", "abc", 2)

	cs := NewCachedStore(backing, time.Hour)
	_, err := cs.Get(ctx(), "doc1")
	require.NoError(t, err)
	commitTo(t, cs, "doc1", "abc", "abcd", 3)
	cs.Close()

	ops, err := backing.GetOperations(ctx(), "doc1", 0)
	require.NoError(t, err)
	assert.Len(t, ops, 3)

	text, err := RevisionText(ctx(), backing, "doc1", 2)
	require.NoError(t, err)
	assert.Equal(t, "abc", text)
}

func TestCachedStore_CreateSeesBacking(t *testing.T) {
	backing := NewMemoryStore()
	require.NoError(t, backing.Create(ctx(), "doc1", "stored"))

	cs := NewCachedStore(backing, time.Hour)
	defer cs.Close()

	assert.ErrorIs(t, cs.Create(ctx(), "doc1", "other"), ErrExists)
}

func TestCachedStore_ListMergesCache(t *testing.T) {
	backing := NewMemoryStore()
	require.NoError(t, backing.Create(ctx(), "a", ""))
	require.NoError(t, backing.Create(ctx(), "b", ""))

	cs := NewCachedStore(backing, time.Hour)
	defer cs.Close()
	require.NoError(t, cs.Create(ctx(), "c", ""))

	docs, err := cs.List(ctx())
	require.NoError(t, err)
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}
