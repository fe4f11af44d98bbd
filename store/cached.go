package store

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/alimasry/typing-replay/replay"
)

// pending tracks what a cached document still owes the backing store.
type pending struct {
	created      bool // exists only in the cache so far
	contentDirty bool // content/version not yet written
	flushedOps   int  // history prefix already in the backing store
	writes       int  // bumped by every cached write
}

// CachedStore serves all reads and writes from memory and flushes dirty
// documents to a backing DocumentStore every flushInterval.
type CachedStore struct {
	cache         *MemoryStore
	backing       DocumentStore
	flushInterval time.Duration

	mu    sync.Mutex
	dirty map[string]*pending

	stop chan struct{}
	done chan struct{}
}

func NewCachedStore(backing DocumentStore, flushInterval time.Duration) *CachedStore {
	cs := &CachedStore{
		cache:         NewMemoryStore(),
		backing:       backing,
		flushInterval: flushInterval,
		dirty:         make(map[string]*pending),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go cs.flushLoop()
	return cs
}

func (cs *CachedStore) Create(ctx context.Context, id, content string) error {
	// The backing store may already know the id even if the cache does not.
	_, err := cs.Get(ctx, id)
	if err == nil {
		return exists(id)
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := cs.cache.Create(ctx, id, content); err != nil {
		return err
	}
	cs.markDirty(id, 0, func(p *pending) {
		p.created = true
		p.contentDirty = true
	})
	return nil
}

func (cs *CachedStore) Get(ctx context.Context, id string) (*DocumentInfo, error) {
	if info, err := cs.cache.Get(ctx, id); err == nil {
		return info, nil
	}
	if err := cs.loadFromBacking(ctx, id); err != nil {
		return nil, err
	}
	return cs.cache.Get(ctx, id)
}

// List merges the backing store's documents with cached ones, which may be
// newer or not flushed yet.
func (cs *CachedStore) List(ctx context.Context) ([]DocumentInfo, error) {
	backed, err := cs.backing.List(ctx)
	if err != nil {
		return nil, err
	}
	cached, _ := cs.cache.List(ctx)
	byID := make(map[string]DocumentInfo, len(backed)+len(cached))
	for _, info := range backed {
		byID[info.ID] = info
	}
	for _, info := range cached {
		byID[info.ID] = info
	}
	result := make([]DocumentInfo, 0, len(byID))
	for _, info := range byID {
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (cs *CachedStore) UpdateContent(ctx context.Context, id, content string, version int) error {
	if _, err := cs.Get(ctx, id); err != nil {
		return err
	}
	if err := cs.cache.UpdateContent(ctx, id, content, version); err != nil {
		return err
	}
	cs.markDirty(id, cs.cache.historyLen(id), func(p *pending) { p.contentDirty = true })
	return nil
}

func (cs *CachedStore) AppendOperation(ctx context.Context, id string, seq replay.Sequence, version int) error {
	if _, err := cs.Get(ctx, id); err != nil {
		return err
	}
	prev := cs.cache.historyLen(id)
	if err := cs.cache.AppendOperation(ctx, id, seq, version); err != nil {
		return err
	}
	cs.markDirty(id, prev, func(*pending) {})
	return nil
}

func (cs *CachedStore) GetOperations(ctx context.Context, id string, fromVersion int) ([]replay.Sequence, error) {
	if _, err := cs.Get(ctx, id); err != nil {
		return nil, err
	}
	return cs.cache.GetOperations(ctx, id, fromVersion)
}

// markDirty applies fn to id's pending state. A document that was clean
// starts with flushed ops already in the backing store.
func (cs *CachedStore) markDirty(id string, flushed int, fn func(p *pending)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	p := cs.dirty[id]
	if p == nil {
		p = &pending{flushedOps: flushed}
		cs.dirty[id] = p
	}
	p.writes++
	fn(p)
}

func (cs *CachedStore) loadFromBacking(ctx context.Context, id string) error {
	info, err := cs.backing.Get(ctx, id)
	if err != nil {
		return err
	}
	ops, err := cs.backing.GetOperations(ctx, id, 0)
	if err != nil {
		return err
	}
	cs.cache.load(*info, ops)
	return nil
}

func (cs *CachedStore) flushLoop() {
	ticker := time.NewTicker(cs.flushInterval)
	defer ticker.Stop()
	defer close(cs.done)

	for {
		select {
		case <-ticker.C:
			cs.flush()
		case <-cs.stop:
			cs.flush()
			return
		}
	}
}

// flush writes every dirty document to the backing store.
func (cs *CachedStore) flush() {
	cs.mu.Lock()
	work := make(map[string]pending, len(cs.dirty))
	for id, p := range cs.dirty {
		work[id] = *p
	}
	cs.mu.Unlock()

	ctx := context.Background()
	for id, p := range work {
		cs.flushDoc(ctx, id, p)
	}
}

func (cs *CachedStore) flushDoc(ctx context.Context, id string, p pending) {
	info, ops, total, ok := cs.cache.snapshot(id, p.flushedOps)
	if !ok {
		return
	}

	if p.created {
		if err := cs.backing.Create(ctx, id, ""); err != nil {
			log.Printf("cached store: create %q in backing store: %v", id, err)
			return
		}
	}

	// Ops before content, so the backing history never trails its content.
	flushed := p.flushedOps
	for _, seq := range ops {
		if err := cs.backing.AppendOperation(ctx, id, seq, flushed+1); err != nil {
			log.Printf("cached store: flush revision %d of %q: %v", flushed+1, id, err)
			break
		}
		flushed++
	}

	contentDirty := p.contentDirty
	if contentDirty && flushed == total {
		if err := cs.backing.UpdateContent(ctx, id, info.Content, info.Version); err != nil {
			log.Printf("cached store: flush content of %q: %v", id, err)
		} else {
			contentDirty = false
		}
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	cur := cs.dirty[id]
	if cur == nil {
		return
	}
	cur.created = false
	cur.flushedOps = flushed
	// A write that raced this flush keeps the document dirty.
	if !contentDirty && cur.writes == p.writes {
		cur.contentDirty = false
	}
	if !cur.contentDirty && cur.flushedOps >= cs.cache.historyLen(id) {
		delete(cs.dirty, id)
	}
}

// Close performs a final flush and stops the flush loop.
func (cs *CachedStore) Close() {
	close(cs.stop)
	<-cs.done
}
