package server

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/alimasry/typing-replay/driver"
	"github.com/alimasry/typing-replay/store"
)

type playMessage struct {
	client *Client
	msg    ClientMessage
}

// Session manages playback for a single document. Joins, leaves and play
// requests are serialized through the session goroutine; frames reach the
// viewers from the driver goroutine.
type Session struct {
	docID  string
	store  store.DocumentStore
	diff   DiffFunc
	driver *driver.Driver

	// Written by the session goroutine, read by the driver's sink.
	mu      sync.RWMutex
	clients map[*Client]bool

	incoming chan playMessage
	join     chan *Client
	leave    chan *Client
	stop     chan struct{}
}

func newSession(docID string, st store.DocumentStore, diff DiffFunc, opts ...driver.Option) *Session {
	s := &Session{
		docID:    docID,
		store:    st,
		diff:     diff,
		clients:  make(map[*Client]bool),
		incoming: make(chan playMessage, 64),
		join:     make(chan *Client, 16),
		leave:    make(chan *Client, 16),
		stop:     make(chan struct{}),
	}
	s.driver = driver.New(driver.SinkFunc(s.broadcastFrame), opts...)
	return s
}

// Run is the session's main loop. The driver runs until the session stops.
func (s *Session) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.driver.Run(ctx)

	for {
		select {
		case c := <-s.join:
			s.handleJoin(c)
		case c := <-s.leave:
			s.handleLeave(c)
		case pm := <-s.incoming:
			s.handleMessage(pm)
		case <-s.stop:
			return
		}
	}
}

func (s *Session) handleJoin(c *Client) {
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	info, err := s.store.Get(context.Background(), s.docID)
	if err != nil {
		log.Printf("session %s: load error: %v", s.docID, err)
		c.sendError("failed to load document")
		return
	}

	// Late joiners see whatever is on screen for everyone else.
	content := info.Content
	if f := s.driver.Snapshot(); f.Generation > 0 {
		content = f.Text
	}
	c.sendMsg(ServerMessage{
		Type:     MsgDoc,
		DocID:    s.docID,
		Content:  content,
		Revision: info.Version,
		Clients:  s.clientInfos(),
	})

	s.broadcast(ServerMessage{
		Type:     MsgJoin,
		ClientID: c.ID,
		Name:     c.Name,
		Color:    c.Color,
	}, c)
}

func (s *Session) handleLeave(c *Client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c)
	close(c.send)
	remaining := len(s.clients)
	s.mu.Unlock()

	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	if remaining == 0 {
		s.driver.Cancel()
		return
	}
	s.broadcast(ServerMessage{Type: MsgLeave, ClientID: c.ID}, nil)
}

func (s *Session) handleMessage(pm playMessage) {
	s.mu.RLock()
	joined := s.clients[pm.client]
	s.mu.RUnlock()
	if !joined {
		// Sent just before the client left.
		return
	}

	switch pm.msg.Type {
	case MsgPlay:
		if err := s.play(pm.msg); err != nil {
			log.Printf("session %s: play error: %v", s.docID, err)
			pm.client.sendError("play error: " + err.Error())
		}
	case MsgStop:
		s.driver.Cancel()
		s.broadcast(ServerMessage{Type: MsgStop, DocID: s.docID, ClientID: pm.client.ID}, nil)
	}
}

// play restarts the animation for every viewer.
func (s *Session) play(msg ClientMessage) error {
	if msg.Ops != nil {
		s.driver.Start(msg.Content, *msg.Ops)
		return nil
	}

	ctx := context.Background()
	info, err := s.store.Get(ctx, s.docID)
	if err != nil {
		return err
	}
	from, to := 0, info.Version
	if msg.From != nil {
		from = *msg.From
	}
	if msg.To != nil {
		to = *msg.To
	}
	if from < 0 || from > info.Version || to < 0 || to > info.Version {
		return fmt.Errorf("revisions %d..%d outside 0..%d", from, to, info.Version)
	}

	before, err := store.RevisionText(ctx, s.store, s.docID, from)
	if err != nil {
		return err
	}
	after, err := store.RevisionText(ctx, s.store, s.docID, to)
	if err != nil {
		return err
	}
	s.driver.Start(before, s.diff(before, after))
	return nil
}

func (s *Session) broadcastFrame(f driver.Frame) {
	s.broadcast(frameMessage(s.docID, f), nil)
}

// broadcast sends msg to every client except skip.
func (s *Session) broadcast(msg ServerMessage, skip *Client) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		if c != skip {
			c.sendMsg(msg)
		}
	}
}

func (s *Session) clientInfos() []ClientInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]ClientInfo, 0, len(s.clients))
	for c := range s.clients {
		infos = append(infos, c.Info())
	}
	return infos
}
