package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alimasry/typing-replay/driver"
	"github.com/alimasry/typing-replay/store"
)

func startHub(t *testing.T, st store.DocumentStore) *Hub {
	t.Helper()
	hub := NewHub(st, diff, driver.WithSpeed(1000))
	go hub.Run()
	t.Cleanup(hub.Close)
	return hub
}

func TestHub_CreateSessionOnJoin(t *testing.T) {
	st := store.NewMemoryStore()
	hub := startHub(t, st)

	c := mockClient("c1")
	c.hub = hub
	hub.joinDoc <- joinRequest{client: c, docID: "new-doc"}

	msg := recvMsg(t, c)
	assert.Equal(t, MsgDoc, msg.Type)
	assert.Equal(t, "new-doc", msg.DocID)

	assert.NotNil(t, hub.GetSession("new-doc"), "session not created")
	_, err := st.Get(ctx(), "new-doc")
	assert.NoError(t, err)
}

func TestHub_JoinExistingDoc(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.Create(ctx(), "existing", "hello world"))
	hub := startHub(t, st)

	c := mockClient("c1")
	c.hub = hub
	hub.joinDoc <- joinRequest{client: c, docID: "existing"}

	msg := recvMsg(t, c)
	assert.Equal(t, "hello world", msg.Content)
}

func TestHub_SharedSession(t *testing.T) {
	hub := startHub(t, store.NewMemoryStore())

	c1 := mockClient("c1")
	c2 := mockClient("c2")
	hub.joinDoc <- joinRequest{client: c1, docID: "shared"}
	recvMsg(t, c1)
	hub.joinDoc <- joinRequest{client: c2, docID: "shared"}
	doc := recvMsg(t, c2)

	assert.Len(t, doc.Clients, 2)
	assert.Equal(t, MsgJoin, recvMsg(t, c1).Type)
}

func TestHub_JoinWithoutDocID(t *testing.T) {
	hub := startHub(t, store.NewMemoryStore())

	c := mockClient("c1")
	hub.joinDoc <- joinRequest{client: c}

	msg := recvMsg(t, c)
	assert.Equal(t, MsgError, msg.Type)
	assert.Equal(t, "missing docId", msg.Message)
}
