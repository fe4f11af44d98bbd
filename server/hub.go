package server

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/alimasry/typing-replay/driver"
	"github.com/alimasry/typing-replay/gitsource"
	"github.com/alimasry/typing-replay/replay"
	"github.com/alimasry/typing-replay/store"
)

// DiffFunc computes the sequence that turns before into after.
type DiffFunc func(before, after string) replay.Sequence

type joinRequest struct {
	client *Client
	docID  string
}

// Hub manages document sessions and routes clients to the right session.
type Hub struct {
	store      store.DocumentStore
	diff       DiffFunc
	driverOpts []driver.Option
	repos      *gitsource.Cache
	sessions   map[string]*Session
	mu         sync.RWMutex

	joinDoc chan joinRequest
}

// NewHub creates a hub over st. diff produces the sequences replayed between
// revisions and opts configure every session's driver.
func NewHub(st store.DocumentStore, diff DiffFunc, opts ...driver.Option) *Hub {
	return &Hub{
		store:      st,
		diff:       diff,
		driverOpts: opts,
		sessions:   make(map[string]*Session),
		joinDoc:    make(chan joinRequest, 64),
	}
}

// SetRepos enables importing file histories from the repositories in c.
// Call it before serving requests.
func (h *Hub) SetRepos(c *gitsource.Cache) {
	h.repos = c
}

// Run is the hub's main loop.
func (h *Hub) Run() {
	for req := range h.joinDoc {
		h.handleJoinDoc(req)
	}
}

func (h *Hub) handleJoinDoc(req joinRequest) {
	if req.docID == "" {
		req.client.sendError("missing docId")
		return
	}

	h.mu.Lock()
	s, ok := h.sessions[req.docID]
	if !ok {
		// Create document in store if it doesn't exist.
		ctx := context.Background()
		err := h.store.Create(ctx, req.docID, "")
		if err != nil && !errors.Is(err, store.ErrExists) {
			log.Printf("hub: failed to create doc %q: %v", req.docID, err)
			h.mu.Unlock()
			req.client.sendError("failed to create document")
			return
		}

		s = newSession(req.docID, h.store, h.diff, h.driverOpts...)
		h.sessions[req.docID] = s
		go s.Run()
	}
	h.mu.Unlock()

	s.join <- req.client
}

// GetSession returns the session for a document, if active.
func (h *Hub) GetSession(docID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[docID]
}

// Close stops every session.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		close(s.stop)
		delete(h.sessions, id)
	}
}
